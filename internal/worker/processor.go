package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"skribe/internal/queue"
	"skribe/internal/transcriber"
	"skribe/pkg/cache"
	"skribe/pkg/logger"
	"skribe/pkg/model"
	"skribe/pkg/resilience"

	"github.com/google/uuid"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// TaskStore is the slice of storage the processor needs
type TaskStore interface {
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) error
	CreateTranscript(ctx context.Context, transcript *model.Transcript) error
}

// ObjectStore archives the original audio
type ObjectStore interface {
	GenerateKey(taskID, extension string) string
	UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// Transcriber produces text from an audio file, reporting which backend won
type Transcriber interface {
	TranscribeWithBackend(ctx context.Context, req transcriber.Request) (string, string, error)
}

type Processor struct {
	db          TaskStore
	s3          ObjectStore
	transcriber Transcriber
	cache       cache.Cache
	bot         *tele.Bot
	httpClient  *http.Client
	s3Breaker   *resilience.CircuitBreaker
	retryConfig *resilience.RetryConfig

	// indirection points, swapped out in tests
	download func(fileID string) ([]byte, error)
	send     func(chatID, replyToMessageID int64, text string) error
}

// NewProcessor creates a new worker processor
func NewProcessor(
	db TaskStore,
	s3 ObjectStore,
	svc Transcriber,
	redisCache cache.Cache,
	bot *tele.Bot,
) *Processor {
	p := &Processor{
		db:          db,
		s3:          s3,
		transcriber: svc,
		cache:       redisCache,
		bot:         bot,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		s3Breaker:   resilience.NewCircuitBreaker(5, 30*time.Second),
		retryConfig: resilience.DefaultRetryConfig(),
	}
	p.download = p.downloadTelegramFile
	p.send = p.sendResultToUser
	return p
}

// ProcessJob processes one transcription job from the queue
func (p *Processor) ProcessJob(jobData []byte) error {
	var job queue.TranscriptionJob
	if err := json.Unmarshal(jobData, &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	logger.Info("Processing transcription job",
		zap.String("task_id", job.TaskID),
		zap.Int64("chat_id", job.ChatID))

	ctx := context.Background()

	task, err := p.db.GetTaskByID(ctx, job.TaskID)
	if err != nil {
		return fmt.Errorf("failed to get task from db: %w", err)
	}

	task.SetInProgress()
	if err := p.db.UpdateTask(ctx, task); err != nil {
		logger.Error("Failed to update task status", zap.Error(err))
	}

	// Download file from Telegram, with retries
	var fileData []byte
	err = resilience.RetryWithExponentialBackoff(ctx, p.retryConfig, func() error {
		var dlErr error
		fileData, dlErr = p.download(job.FileID)
		return dlErr
	})
	if err != nil {
		p.handleTaskError(ctx, task, fmt.Sprintf("Failed to download file: %v", err))
		return err
	}

	logger.Info("File downloaded from Telegram",
		zap.String("task_id", task.ID),
		zap.Int("size", len(fileData)))

	extension := extFromMime(job.MimeType)

	// Archive the original audio in object storage. Archiving failures are
	// logged but do not fail the job; the transcript matters more.
	s3Key := p.s3.GenerateKey(task.ID, extension)
	err = p.s3Breaker.Execute(func() error {
		_, upErr := p.s3.UploadFile(ctx, s3Key, bytes.NewReader(fileData), job.MimeType)
		return upErr
	})
	if err != nil {
		logger.Warn("Failed to archive audio in S3",
			zap.String("task_id", task.ID),
			zap.Error(err))
	} else {
		task.SetAudioKey(s3Key)
		if err := p.db.UpdateTask(ctx, task); err != nil {
			logger.Error("Failed to update audio key", zap.Error(err))
		}
	}

	// The transcription backends want a local file path
	audioPath, cleanup, err := writeTempAudio(fileData, extension)
	if err != nil {
		p.handleTaskError(ctx, task, fmt.Sprintf("Failed to stage audio file: %v", err))
		return err
	}
	defer cleanup()

	text, backend, err := p.transcriber.TranscribeWithBackend(ctx, transcriber.Request{
		FilePath: audioPath,
		Model:    job.Model,
		Language: job.Language,
	})
	if err != nil {
		p.handleTaskError(ctx, task, fmt.Sprintf("Transcription failed: %v", err))
		return err
	}

	logger.Info("Transcription finished",
		zap.String("task_id", task.ID),
		zap.String("backend", backend),
		zap.Int("text_length", len(text)))

	transcript := &model.Transcript{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Text:      text,
		Backend:   backend,
		CreatedAt: time.Now(),
	}

	if err := p.db.CreateTranscript(ctx, transcript); err != nil {
		logger.Error("Failed to save transcript", zap.Error(err))
	}

	if p.cache != nil {
		key := cache.TranscriptCacheKey(task.ID)
		if err := p.cache.SetWithTTL(ctx, key, transcript, 24*time.Hour); err != nil {
			logger.Error("Failed to cache transcript", zap.Error(err))
		}
	}

	task.SetCompleted(backend)
	if err := p.db.UpdateTask(ctx, task); err != nil {
		logger.Error("Failed to update task status to done", zap.Error(err))
	}

	reply := text
	if reply == "" {
		reply = "No speech detected in this audio."
	}

	if err := p.send(job.ChatID, job.MessageID, reply); err != nil {
		logger.Error("Failed to send result to user", zap.Error(err))
		// Don't return error - task is completed anyway
	}

	logger.Info("Task completed successfully",
		zap.String("task_id", task.ID),
		zap.String("backend", backend))

	return nil
}

// downloadTelegramFile downloads file from Telegram
func (p *Processor) downloadTelegramFile(fileID string) ([]byte, error) {
	file, err := p.bot.FileByID(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	fileURL := p.bot.URL + "/file/bot" + p.bot.Token + "/" + file.FilePath

	resp, err := p.httpClient.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status=%d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}

	return data, nil
}

// sendResultToUser sends the transcript back as a reply
func (p *Processor) sendResultToUser(chatID, replyToMessageID int64, text string) error {
	chat := &tele.Chat{ID: chatID}

	_, err := p.bot.Send(chat, text, &tele.SendOptions{
		ReplyTo: &tele.Message{ID: int(replyToMessageID)},
	})

	return err
}

// handleTaskError handles task error
func (p *Processor) handleTaskError(ctx context.Context, task *model.Task, errorMsg string) {
	logger.Error("Task processing error",
		zap.String("task_id", task.ID),
		zap.String("error", errorMsg))

	task.SetError(errorMsg)
	task.IncrementAttempts()

	if err := p.db.UpdateTask(ctx, task); err != nil {
		logger.Error("Failed to update task error", zap.Error(err))
	}

	if task.Attempts >= 3 && p.bot != nil {
		chat := &tele.Chat{ID: task.ChatID}
		message := "Could not transcribe this audio after several attempts."
		p.bot.Send(chat, message, &tele.SendOptions{
			ReplyTo: &tele.Message{ID: int(task.MessageID)},
		})
	}
}

// writeTempAudio stages audio bytes in a temp file and returns its path
// together with a cleanup func
func writeTempAudio(data []byte, extension string) (string, func(), error) {
	f, err := os.CreateTemp("", "skribe-*"+extension)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	cleanup := func() { os.Remove(f.Name()) }
	return f.Name(), cleanup, nil
}

// extFromMime maps a MIME type to a file extension the backends recognize
func extFromMime(mimeType string) string {
	switch mimeType {
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a", "audio/m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/aac":
		return ".aac"
	default:
		return ".ogg"
	}
}
