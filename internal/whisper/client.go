package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"skribe/internal/transcriber"
	"skribe/pkg/logger"

	"go.uber.org/zap"
)

const (
	// DefaultURL is the directly hosted transcription endpoint used when no
	// URL is configured.
	DefaultURL = "http://localhost:8080/v1/audio/transcriptions"

	requestTimeout = 120 * time.Second
)

// ErrEmptyResult is returned when the service answered 2xx but the response
// carried no usable text field.
var ErrEmptyResult = errors.New("whisper response contains no text")

// Client talks to a directly hosted whisper-compatible HTTP service with a
// single multipart request. No retries; a failure here means the caller
// falls back to the next backend.
type Client struct {
	url    string
	model  string
	client *http.Client
}

// NewClient creates a primary-service client. An empty url falls back to
// DefaultURL, an empty model to the canonical default model name.
func NewClient(url, model string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:   url,
		model: transcriber.NormalizeModel(model),
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Name identifies the backend in fallback logs.
func (c *Client) Name() string { return "whisper" }

// Transcribe uploads the audio file and reads the transcript from the JSON
// response, accepting any of the text field spellings the service versions
// have used over time.
func (c *Client) Transcribe(ctx context.Context, req transcriber.Request) (string, error) {
	audio, err := os.ReadFile(req.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}

	model := c.model
	if req.Model != "" {
		model = transcriber.NormalizeModel(req.Model)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	_ = writer.WriteField("model", model)
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	logger.Debug("Sending audio to primary whisper service",
		zap.String("url", c.url),
		zap.String("model", model),
		zap.Int("size", len(audio)))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("transcription request failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result struct {
		Text          string `json:"text"`
		Transcript    string `json:"transcript"`
		Transcription string `json:"transcription"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	for _, text := range []string{result.Text, result.Transcript, result.Transcription} {
		if text != "" {
			return transcriber.CleanSubtitleText(text), nil
		}
	}

	return "", ErrEmptyResult
}
