package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skribe/internal/config"
	"skribe/internal/gradio"
	"skribe/internal/queue"
	"skribe/internal/storage"
	"skribe/internal/transcriber"
	"skribe/internal/vosk"
	"skribe/internal/whisper"
	"skribe/internal/worker"
	"skribe/pkg/cache"
	"skribe/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Initialize logger
	debug := true
	if err := logger.Init(debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting skribe worker service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
		return
	}

	databaseURL := cfg.Postgres.DSN
	if databaseURL == "" {
		logger.Fatal("POSTGRES_DSN environment variable is required")
		return
	}

	db, err := storage.NewPostgresStorage(databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
		return
	}
	defer db.Close()

	logger.Info("Database connection established")

	// Initialize S3 storage from config
	s3Storage, err := storage.NewS3Storage(
		cfg.S3.Endpoint,
		cfg.S3.AccessKey,
		cfg.S3.SecretKey,
		cfg.S3.Bucket,
		cfg.S3.Region,
	)
	if err != nil {
		logger.Fatal("Failed to initialize S3 storage", zap.Error(err))
		return
	}

	logger.Info("S3 storage initialized")

	// Build the transcription chain: primary whisper service, then the
	// Gradio batch service, then the offline recognizer
	svc := transcriber.NewService(
		whisper.NewClient(cfg.Whisper.PrimaryURL, cfg.Whisper.PrimaryModel),
		gradio.NewClient(cfg.Whisper.APIURL, cfg.Whisper.APIName, cfg.Whisper.Model, cfg.Whisper.Device),
		vosk.NewRecognizer(cfg.Vosk.ModelDir),
	)

	logger.Info("Transcription backends initialized")

	// Initialize Telegram bot
	botSettings := tele.Settings{
		Token: cfg.Telegram.Token,
		Poller: &tele.LongPoller{
			Timeout: 10 * time.Second,
		},
	}

	bot, err := tele.NewBot(botSettings)
	if err != nil {
		logger.Fatal("Failed to create Telegram bot", zap.Error(err))
		return
	}

	logger.Info("Telegram bot initialized")

	// Initialize Redis cache
	redisCache, err := cache.NewRedisCache(
		cfg.Redis.Addr,
		cfg.Redis.Password,
		cfg.Redis.DB,
		24*time.Hour, // Default TTL 24 hours
	)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
		return
	}
	defer redisCache.Close()

	logger.Info("Redis cache connection established")

	// Connect to RabbitMQ
	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		return
	}
	defer rabbitMQ.Close()

	logger.Info("RabbitMQ connection established")

	// Create processor
	processor := worker.NewProcessor(db, s3Storage, svc, redisCache, bot)

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start consuming messages
	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	logger.Info("Starting to consume messages from queue",
		zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		go func() {
			if err := rabbitMQ.Consume(queue.QueueNameTranscription, processor.ProcessJob); err != nil {
				logger.Error("Failed to consume messages", zap.Error(err))
				cancel()
			}
		}()
	}

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Worker service shutdown complete")
}
