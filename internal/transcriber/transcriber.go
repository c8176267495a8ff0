package transcriber

import (
	"context"
	"errors"
	"skribe/pkg/logger"

	"go.uber.org/zap"
)

// ErrNoBackends is returned when the service was built without any backend.
var ErrNoBackends = errors.New("no transcription backends configured")

// Backend is a single transcription provider. A backend either returns the
// transcript (possibly empty, when the audio contains no speech) or an error
// that makes the service move on to the next backend.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (string, error)
}

// Service runs the backends strictly in order and returns the first result
// that did not error. Backends are never tried concurrently.
type Service struct {
	backends []Backend
}

// NewService creates a transcription service. Backend order is priority order.
func NewService(backends ...Backend) *Service {
	return &Service{backends: backends}
}

// Transcribe tries each backend in turn. An error from one backend only
// triggers the next attempt; the error of the last backend is the one the
// caller sees. An empty transcript without an error is a valid final answer
// (no speech detected) and stops the chain.
func (s *Service) Transcribe(ctx context.Context, req Request) (string, error) {
	text, _, err := s.TranscribeWithBackend(ctx, req)
	return text, err
}

// TranscribeWithBackend behaves like Transcribe and also reports the name of
// the backend that produced the transcript.
func (s *Service) TranscribeWithBackend(ctx context.Context, req Request) (string, string, error) {
	if len(s.backends) == 0 {
		return "", "", ErrNoBackends
	}

	var lastErr error
	for _, b := range s.backends {
		text, err := b.Transcribe(ctx, req)
		if err != nil {
			logger.Warn("Transcription backend failed, falling back",
				zap.String("backend", b.Name()),
				zap.String("file", req.FilePath),
				zap.Error(err))
			lastErr = err
			continue
		}

		logger.Info("Transcription completed",
			zap.String("backend", b.Name()),
			zap.Int("text_length", len(text)))

		return text, b.Name(), nil
	}

	return "", "", lastErr
}
