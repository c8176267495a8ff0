package config

import (
	"skribe/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Telegram struct {
		Token string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
	} `yaml:"telegram"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`

	// Whisper covers both remote backends: the directly hosted primary
	// service and the Gradio batch service.
	Whisper struct {
		PrimaryURL   string `yaml:"primary_url" env:"WHISPER_PRIMARY_URL" env-default:"http://localhost:8080/v1/audio/transcriptions"`
		PrimaryModel string `yaml:"primary_model" env:"WHISPER_PRIMARY_MODEL" env-default:"base"`
		APIURL       string `yaml:"api_url" env:"WHISPER_API_URL"`
		APIName      string `yaml:"api_name" env:"WHISPER_API_NAME" env-default:"/transcribe_file"`
		Model        string `yaml:"model" env:"WHISPER_MODEL" env-default:"base"`
		Device       string `yaml:"device" env:"WHISPER_DEVICE" env-default:"cpu"`
		Language     string `yaml:"language" env:"WHISPER_LANGUAGE" env-default:""`
	} `yaml:"whisper"`

	Vosk struct {
		ModelDir string `yaml:"model_dir" env:"VOSK_MODEL_DIR" env-default:"models/vosk-model-small"`
	} `yaml:"vosk"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
	} `yaml:"postgres"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
		Region    string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	} `yaml:"s3"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	} `yaml:"redis"`

	Worker struct {
		Concurrency int `yaml:"concurrency" env:"WORKER_CONCURRENCY" env-default:"4"`
	} `yaml:"worker"`
}

func LoadConfig() (*Config, error) {
	// Load .env file
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadConfig("configs/config.yaml", &cfg); err != nil {
		return nil, err
	}

	if err := cleanenv.UpdateEnv(&cfg); err != nil {
		return nil, err
	}

	logger.Info("Config loaded successfully")
	return &cfg, nil
}
