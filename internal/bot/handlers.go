package bot

import (
	"context"
	"time"

	"skribe/internal/queue"
	"skribe/pkg/logger"
	"skribe/pkg/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

func (b *Bot) handleVoice(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Voice == nil {
		return c.Reply("Error: voice message not found")
	}

	return b.enqueueAudio(c, msg.Voice.FileID, msg.Voice.Duration, msg.Voice.FileSize, msg.Voice.MIME)
}

func (b *Bot) handleAudio(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Audio == nil {
		return c.Reply("Error: audio file not found")
	}

	return b.enqueueAudio(c, msg.Audio.FileID, msg.Audio.Duration, msg.Audio.FileSize, msg.Audio.MIME)
}

// enqueueAudio records a task and hands it to the worker queue
func (b *Bot) enqueueAudio(c tele.Context, fileID string, duration int, fileSize int64, mimeType string) error {
	msg := c.Message()

	if !b.isActive(msg.Chat.ID) {
		logger.Info("Ignoring audio from inactive chat",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int("message_id", msg.ID))

		return nil
	}

	if !b.limiter.Allow() {
		logger.Warn("Rate limit hit",
			zap.Int64("chat_id", msg.Chat.ID))
		return c.Reply("Too many requests, please try again in a moment")
	}

	if err := c.Reply("Transcribing..."); err != nil {
		logger.Error("Failed to send processing message", zap.Error(err))
	}

	task := model.Task{
		ID:        uuid.New().String(),
		MessageID: int64(msg.ID),
		ChatID:    msg.Chat.ID,
		FileID:    fileID,
		Status:    model.TaskStatusQueued,
		Attempts:  0,
		ErrorText: nil,
		Meta: model.JSONB{
			"duration":  duration,
			"file_size": fileSize,
			"mime_type": mimeType,
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	ctx := context.Background()
	if err := b.storage.CreateTask(ctx, &task); err != nil {
		logger.Error("Failed to create task in database",
			zap.Error(err),
			zap.String("task_id", task.ID))
		return c.Reply("Error: failed to save the task")
	}

	logger.Info("Task created in database",
		zap.String("task_id", task.ID),
		zap.Int64("message_id", task.MessageID),
		zap.Int64("chat_id", task.ChatID))

	if b.q != nil {
		job := &queue.TranscriptionJob{
			TaskID:    task.ID,
			ChatID:    task.ChatID,
			MessageID: task.MessageID,
			FileID:    task.FileID,
			Duration:  duration,
			FileSize:  fileSize,
			MimeType:  mimeType,
			Model:     b.cfg.Whisper.Model,
			Language:  b.cfg.Whisper.Language,
			CreatedAt: task.CreatedAt,
		}

		if err := b.q.PublishJob(job); err != nil {
			logger.Error("Failed to publish job to queue",
				zap.Error(err),
				zap.String("task_id", task.ID))
			return c.Reply("Error: failed to queue the task")
		}

		logger.Info("Job published to queue",
			zap.String("task_id", task.ID))
	}

	return nil
}
