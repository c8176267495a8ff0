package transcriber

import "strings"

// DefaultModel is used when the request carries no model hint.
const DefaultModel = "base"

// Request describes one transcription call. It is immutable for the duration
// of the orchestrated fallback chain; every backend sees the same values.
type Request struct {
	FilePath string

	// Model and Language are hints; each backend falls back to its own
	// configured defaults when they are empty.
	Model    string
	Language string

	// Decoding tuning, consumed by the remote batch backend.
	Device                        string
	ComputeType                   string
	InitialPrompt                 string
	Prefix                        string
	Hotwords                      string
	MaxNewTokens                  int
	HallucinationSilenceThreshold float64
}

// NormalizeModel maps user-supplied model names onto the canonical
// faster-whisper names. The hyphenated form (large-v2) is canonical; the
// underscored form is accepted as an input alias only. Idempotent.
func NormalizeModel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return DefaultModel
	case "mid":
		return "medium"
	case "large_v2", "largev2":
		return "large-v2"
	default:
		return name
	}
}

// NormalizeDevice maps any spelling of a GPU request onto "cuda" and
// everything else, including the empty string, onto "cpu".
func NormalizeDevice(device string) string {
	switch strings.ToLower(strings.TrimSpace(device)) {
	case "gpu", "cuda":
		return "cuda"
	default:
		return "cpu"
	}
}
