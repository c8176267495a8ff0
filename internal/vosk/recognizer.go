package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	voskapi "github.com/alphacep/vosk-api/go"

	"skribe/internal/transcriber"
	"skribe/pkg/logger"

	"go.uber.org/zap"
)

const (
	// SampleRate the streaming decoder is opened with. Callers are expected
	// to hand over 16 kHz mono audio; resampling is out of scope.
	SampleRate = 16000

	chunkSize = 4096
)

// ErrModelMissing means the offline model directory does not exist. Since
// the offline recognizer is the last resort, this is fatal for the process:
// the default exit hook terminates it instead of degrading silently.
var ErrModelMissing = errors.New("vosk model directory not found")

// Session is one streaming decode pass over a single audio file. Exactly
// one call owns a session; Free must run on every exit path.
type Session interface {
	AcceptWaveform(chunk []byte) error
	FinalResult() (string, error)
	Free()
}

// Recognizer streams local audio files through the Vosk engine. The model
// handle is loaded lazily exactly once, under a mutex, and lives for the
// rest of the process.
type Recognizer struct {
	modelDir string

	mu      sync.Mutex
	model   *voskapi.VoskModel
	loadErr error
	tried   bool

	// open and exit are swappable in tests; open produces a fresh decoding
	// session, exit handles the fatal missing-model condition.
	open func() (Session, error)
	exit func(code int)
}

// NewRecognizer creates the offline backend for the given model directory.
// The model is not touched until the first transcription call.
func NewRecognizer(modelDir string) *Recognizer {
	r := &Recognizer{
		modelDir: modelDir,
		exit:     os.Exit,
	}
	r.open = r.openNative
	return r
}

// Name identifies the backend in fallback logs.
func (r *Recognizer) Name() string { return "vosk" }

// Transcribe feeds the audio file to a fresh recognizer session in 4 KiB
// chunks, in byte-stream order, and returns the trimmed best alternative.
// An empty transcript is the non-error "no speech detected" result.
func (r *Recognizer) Transcribe(ctx context.Context, req transcriber.Request) (string, error) {
	f, err := os.Open(req.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	sess, err := r.open()
	if err != nil {
		return "", err
	}
	defer sess.Free()

	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			if err := sess.AcceptWaveform(buf[:n]); err != nil {
				return "", fmt.Errorf("recognizer rejected waveform chunk: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("failed to read audio stream: %w", readErr)
		}
	}

	raw, err := sess.FinalResult()
	if err != nil {
		return "", fmt.Errorf("failed to decode final result: %w", err)
	}

	text := strings.TrimSpace(bestText(raw))
	if text == "" {
		logger.Info("No speech detected in audio",
			zap.String("file", req.FilePath))
		return "", nil
	}

	return text, nil
}

// loadModel performs the single-flight lazy load. Only one load attempt is
// ever made; later callers see the memoized handle or the memoized error.
func (r *Recognizer) loadModel() (*voskapi.VoskModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tried {
		return r.model, r.loadErr
	}
	r.tried = true

	if info, err := os.Stat(r.modelDir); err != nil || !info.IsDir() {
		logger.Error("Vosk model directory is missing, offline transcription is unavailable",
			zap.String("model_dir", r.modelDir))
		r.loadErr = fmt.Errorf("%w: %s", ErrModelMissing, r.modelDir)
		r.exit(1)
		return nil, r.loadErr
	}

	voskapi.SetLogLevel(-1)

	model, err := voskapi.NewModel(r.modelDir)
	if err != nil {
		r.loadErr = fmt.Errorf("failed to load vosk model: %w", err)
		return nil, r.loadErr
	}

	logger.Info("Vosk model loaded",
		zap.String("model_dir", r.modelDir))

	r.model = model
	return r.model, nil
}

// openNative builds a session backed by the native engine: one best
// alternative, word-level timing requested (consumed by the engine only,
// not surfaced).
func (r *Recognizer) openNative() (Session, error) {
	model, err := r.loadModel()
	if err != nil {
		return nil, err
	}

	rec, err := voskapi.NewRecognizer(model, SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer session: %w", err)
	}
	rec.SetMaxAlternatives(1)
	rec.SetWords(1)

	return &nativeSession{rec: rec}, nil
}

type nativeSession struct {
	rec *voskapi.VoskRecognizer
}

func (s *nativeSession) AcceptWaveform(chunk []byte) error {
	s.rec.AcceptWaveform(chunk)
	return nil
}

func (s *nativeSession) FinalResult() (string, error) {
	return s.rec.FinalResult(), nil
}

func (s *nativeSession) Free() {
	s.rec.Free()
}

// bestText extracts the best alternative from the engine's final-result
// JSON. With max-alternatives enabled the text sits inside "alternatives";
// older model builds answer with a flat "text" field.
func bestText(raw string) string {
	var result struct {
		Text         string `json:"text"`
		Alternatives []struct {
			Text string `json:"text"`
		} `json:"alternatives"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return ""
	}
	if len(result.Alternatives) > 0 {
		return result.Alternatives[0].Text
	}
	return result.Text
}
