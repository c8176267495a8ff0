package transcriber

import (
	"os"
	"regexp"
	"strings"
)

// The three backends return wildly different result shapes: raw strings,
// arrays, {"data": ...} wrappers, objects pointing at an output file on
// disk. ExtractText probes each recognized shape in a fixed order and
// returns the embedded text, trimmed. Unrecognized shapes yield the empty
// string, never an error.
func ExtractText(v any) string {
	switch r := v.(type) {
	case string:
		return strings.TrimSpace(readIfFile(r))

	case []any:
		// The first element usually carries the text; status codes and
		// other non-text elements are skipped.
		for _, el := range r {
			if text := elementText(el); text != "" {
				return strings.TrimSpace(text)
			}
		}
		return ""

	case map[string]any:
		if data, ok := r["data"]; ok {
			// Some responses nest the payload one array deeper; elementText
			// unwraps that.
			if arr, ok := data.([]any); ok && len(arr) > 0 {
				if text := elementText(arr[0]); text != "" {
					return strings.TrimSpace(text)
				}
			}
		}
		if text, ok := r["text"].(string); ok && text != "" {
			return strings.TrimSpace(text)
		}
		if text, ok := r["transcription"].(string); ok && text != "" {
			return strings.TrimSpace(text)
		}
		if data, ok := r["data"].(map[string]any); ok {
			if text, ok := data["text"].(string); ok && text != "" {
				return strings.TrimSpace(text)
			}
		}
		for _, key := range []string{"output_file", "output_path"} {
			if path, ok := r[key].(string); ok && path != "" {
				return strings.TrimSpace(readIfFile(path))
			}
		}
	}

	return ""
}

// elementText pulls text out of a single array element: a plain string, an
// object with a "text" field, or an array nested one level deeper.
func elementText(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		if text, ok := e["text"].(string); ok {
			return text
		}
	case []any:
		if len(e) > 0 {
			return elementText(e[0])
		}
	}
	return ""
}

// readIfFile returns the contents of s when it names an existing file,
// otherwise s verbatim. Backends that write subtitle files to disk report
// the path instead of the transcript.
func readIfFile(s string) string {
	if info, err := os.Stat(s); err == nil && !info.IsDir() {
		if data, err := os.ReadFile(s); err == nil {
			return string(data)
		}
	}
	return s
}

var (
	leadingStampPattern = regexp.MustCompile(`^\d{10,}-\d{6,}\s*`)
	sequenceLinePattern = regexp.MustCompile(`^\d+$`)
	timeRangePattern    = regexp.MustCompile(`^\d{2}:\d{2}:\d{2},\d{3}\s*-->\s*\d{2}:\d{2}:\d{2},\d{3}`)
)

const bannerSeparator = "----------"

// CleanSubtitleText flattens a transcript rendered as an SRT-style subtitle
// file into plain prose: the numeric job stamp prefix, sequence numbers,
// timestamp ranges and banner lines are dropped and the remaining lines are
// joined with single spaces. Plain text passes through unchanged, so the
// cleanup is idempotent and applied unconditionally after every backend.
func CleanSubtitleText(text string) string {
	text = leadingStampPattern.ReplaceAllString(strings.TrimSpace(text), "")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" ||
			sequenceLinePattern.MatchString(line) ||
			timeRangePattern.MatchString(line) ||
			strings.HasPrefix(line, "Done in ") ||
			strings.HasPrefix(line, bannerSeparator) {
			continue
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, " ")
}
