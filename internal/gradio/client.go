package gradio

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
	"strings"
	"time"

	"skribe/internal/transcriber"
	"skribe/pkg/logger"

	"go.uber.org/zap"
)

// DefaultAPIName is the endpoint name of the batch transcription job.
const DefaultAPIName = "/transcribe_file"

const requestTimeout = 10 * time.Minute

var (
	// ErrNoBaseURL means the batch service endpoint is not configured; the
	// backend is skipped without any network traffic.
	ErrNoBaseURL = errors.New("gradio base URL is not configured")

	ErrUpload   = errors.New("gradio upload failed")
	ErrCall     = errors.New("gradio call failed")
	ErrEvent    = errors.New("gradio event poll failed")
	ErrProtocol = errors.New("unexpected gradio response shape")
)

var mimeByExtension = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
}

// Client implements the three-step protocol of a remote Gradio batch
// transcription service: upload the file, submit a named job with the
// positional parameter vector, then consume the job's event stream. No
// step is retried; any failure hands control back to the fallback chain.
type Client struct {
	baseURL string
	apiName string
	model   string
	device  string
	client  *http.Client
}

// NewClient creates a batch-service client. apiName defaults to
// DefaultAPIName; model and device are defaults a request can override.
func NewClient(baseURL, apiName, model, device string) *Client {
	if apiName == "" {
		apiName = DefaultAPIName
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiName: apiName,
		model:   model,
		device:  device,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Name identifies the backend in fallback logs.
func (c *Client) Name() string { return "gradio" }

// Transcribe runs upload, call and event poll in sequence and normalizes
// whatever payload the final event carries into plain text.
func (c *Client) Transcribe(ctx context.Context, req transcriber.Request) (string, error) {
	if c.baseURL == "" {
		return "", ErrNoBaseURL
	}

	serverPath, err := c.upload(ctx, req.FilePath)
	if err != nil {
		return "", err
	}

	eventID, err := c.call(ctx, serverPath, req)
	if err != nil {
		return "", err
	}

	payload, err := c.pollEvent(ctx, eventID)
	if err != nil {
		return "", err
	}

	// A [result, file] pair means the transcript was written as a subtitle
	// file the service serves over HTTP; fetch it instead of the inline data.
	if url := subtitleURL(payload); url != "" {
		body, err := c.fetch(ctx, url)
		if err != nil {
			return "", err
		}
		return transcriber.CleanSubtitleText(body), nil
	}

	return transcriber.CleanSubtitleText(transcriber.ExtractText(payload)), nil
}

// upload POSTs the audio file as a multipart form and returns the
// server-assigned path token, consumed exactly once by the following call.
func (c *Client) upload(ctx context.Context, filePath string) (string, error) {
	audio, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read audio file: %v", ErrUpload, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="files"; filename="%s"`, filepath.Base(filePath))}
	header["Content-Type"] = []string{mimeType(filePath)}

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create form part: %v", ErrUpload, err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("%w: failed to write audio data: %v", ErrUpload, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to finalize form: %v", ErrUpload, err)
	}

	uploadURL := c.baseURL + "/gradio_api/upload"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrUpload, err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	logger.Debug("Uploading audio to gradio service",
		zap.String("url", uploadURL),
		zap.Int("size", len(audio)))

	body, status, err := c.do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("%w: status=%d, body=%s", ErrUpload, status, string(body))
	}

	var paths []string
	if err := json.Unmarshal(body, &paths); err != nil || len(paths) == 0 {
		return "", fmt.Errorf("%w: upload response carries no server path", ErrProtocol)
	}

	return paths[0], nil
}

// call submits the transcription job and returns the event identifier used
// to poll for the result.
func (c *Client) call(ctx context.Context, serverPath string, req transcriber.Request) (string, error) {
	params := defaultCallParams()
	params.Model = transcriber.NormalizeModel(c.model)
	params.Device = transcriber.NormalizeDevice(c.device)
	params.DiarizationDevice = params.Device
	params.apply(req)
	params.Files = []fileData{newFileData(serverPath, filepath.Base(req.FilePath))}

	payload, err := json.Marshal(map[string]any{"data": params.vector()})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal call payload: %v", ErrCall, err)
	}

	callURL := c.baseURL + "/gradio_api/call" + c.apiName
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrCall, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logger.Debug("Submitting gradio transcription job",
		zap.String("url", callURL),
		zap.String("model", params.Model),
		zap.String("device", params.Device))

	body, status, err := c.do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCall, err)
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("%w: status=%d, body=%s", ErrCall, status, string(body))
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: call response is not JSON: %v", ErrProtocol, err)
	}

	for _, key := range []string{"event_id", "eventId", "id"} {
		if id, ok := resp[key].(string); ok && id != "" {
			return id, nil
		}
	}

	return "", fmt.Errorf("%w: call response carries no event id", ErrProtocol)
}

// pollEvent issues a single GET against the event endpoint. The service
// blocks until the job finishes, so there is no polling loop; the body is a
// newline-delimited event stream where the last data: line is authoritative.
func (c *Client) pollEvent(ctx context.Context, eventID string) (any, error) {
	eventURL := c.baseURL + "/gradio_api/call" + c.apiName + "/" + eventID

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, eventURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrEvent, err)
	}

	logger.Debug("Polling gradio event stream",
		zap.String("url", eventURL),
		zap.String("event_id", eventID))

	body, status, err := c.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvent, err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: status=%d, body=%s", ErrEvent, status, string(body))
	}

	var last string
	var found bool
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "data:") {
			last = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: event stream carries no data lines", ErrEvent)
	}

	var payload any
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		// Not JSON; the raw line is the transcript.
		return last, nil
	}
	return payload, nil
}

// fetch downloads a subtitle file the service produced instead of inline
// text.
func (c *Client) fetch(ctx context.Context, url string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrEvent, err)
	}

	body, status, err := c.do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEvent, err)
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("%w: subtitle fetch failed: status=%d", ErrEvent, status)
	}

	return string(body), nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %v", err)
	}
	return body, resp.StatusCode, nil
}

// subtitleURL recognizes the [status, file] payload pair whose second
// element points at a downloadable subtitle file. Returns "" for every
// other shape.
func subtitleURL(payload any) string {
	pair, ok := payload.([]any)
	if !ok || len(pair) != 2 {
		return ""
	}

	switch second := pair[1].(type) {
	case string:
		if strings.HasPrefix(second, "http://") || strings.HasPrefix(second, "https://") {
			return second
		}
	case map[string]any:
		if url, ok := second["url"].(string); ok && strings.HasPrefix(url, "http") {
			return url
		}
	case []any:
		if len(second) > 0 {
			return subtitleURL([]any{nil, second[0]})
		}
	}
	return ""
}

func mimeType(filePath string) string {
	if mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(filePath))]; ok {
		return mime
	}
	return "application/octet-stream"
}
