package bot

import (
	"context"
	"time"

	"skribe/internal/config"
	"skribe/internal/queue"
	"skribe/internal/storage"
	"skribe/pkg/cache"
	"skribe/pkg/logger"
	"skribe/pkg/resilience"

	tele "gopkg.in/telebot.v4"

	"go.uber.org/zap"
)

type QueuePublisher interface {
	Publish(queueName string, body []byte) error
	PublishJob(job *queue.TranscriptionJob) error
}

type Bot struct {
	cfg     *config.Config
	tb      *tele.Bot
	q       QueuePublisher
	storage *storage.PostgresStorage
	cache   cache.Cache
	limiter *resilience.RateLimiter
}

func NewBot(cfg *config.Config, db *storage.PostgresStorage, q QueuePublisher, redisCache cache.Cache) (*Bot, error) {
	logger.Info("Starting bot initialization")

	pref := tele.Settings{
		Token: cfg.Telegram.Token,
		Poller: &tele.LongPoller{
			Timeout: 10 * time.Second,
		},
	}

	if pref.Token == "" {
		logger.Fatal("TELEGRAM_BOT_TOKEN environment variable is required")
		return nil, nil
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
		return nil, err
	}

	logger.Info("Bot created successfully")

	bot := &Bot{
		cfg:     cfg,
		tb:      tb,
		storage: db,
		q:       q,
		cache:   redisCache,
		limiter: resilience.NewRateLimiter(20, time.Second),
	}

	bot.registerHandlers()
	return bot, nil
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/stop", b.handleStop)
	b.tb.Handle(tele.OnVoice, b.handleVoice)
	b.tb.Handle(tele.OnAudio, b.handleAudio)
}

// handleStart enables transcription for this chat
func (b *Bot) handleStart(c tele.Context) error {
	chatID := c.Chat().ID
	ctx := context.Background()

	// Keep the chat active for 30 days of inactivity
	key := cache.ChatActiveCacheKey(chatID)
	if err := b.cache.SetWithTTL(ctx, key, "true", 30*24*time.Hour); err != nil {
		logger.Error("Failed to save chat active state to cache", zap.Error(err))
	}

	logger.Info("Bot activated for chat",
		zap.Int64("chat_id", chatID))

	return c.Send("Transcription enabled. Send a voice message or an audio file.")
}

// handleStop disables transcription for this chat
func (b *Bot) handleStop(c tele.Context) error {
	chatID := c.Chat().ID
	ctx := context.Background()

	key := cache.ChatActiveCacheKey(chatID)
	if err := b.cache.Delete(ctx, key); err != nil {
		logger.Error("Failed to delete chat active state from cache", zap.Error(err))
	}

	logger.Info("Bot deactivated for chat",
		zap.Int64("chat_id", chatID))

	return c.Send("Transcription disabled.\nSend /start to resume.")
}

// isActive reports whether transcription is enabled for this chat
func (b *Bot) isActive(chatID int64) bool {
	ctx := context.Background()
	key := cache.ChatActiveCacheKey(chatID)

	var value string
	err := b.cache.Get(ctx, key, &value)
	if err != nil {
		// Key missing or cache error, treat as inactive
		return false
	}

	return value == "true"
}

func (b *Bot) Start() {
	b.tb.Start()
	logger.Info("Bot started")
}

func (b *Bot) Stop() {
	b.tb.Stop()
	logger.Info("Bot stopped")
}
