package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"skribe/internal/config"
	"skribe/internal/gradio"
	"skribe/internal/transcriber"
	"skribe/internal/vosk"
	"skribe/internal/whisper"
	"skribe/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// One-shot CLI: transcribe a single local audio file and print the text.
func main() {
	_ = godotenv.Load()

	model := flag.String("model", "", "Whisper model size (base, small, medium, large-v2)")
	language := flag.String("lang", "", "Spoken language hint (empty = auto-detect)")
	device := flag.String("device", "", "Inference device (cpu or cuda)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <audio-file>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := logger.Init(*debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
		return
	}

	svc := transcriber.NewService(
		whisper.NewClient(cfg.Whisper.PrimaryURL, cfg.Whisper.PrimaryModel),
		gradio.NewClient(cfg.Whisper.APIURL, cfg.Whisper.APIName, cfg.Whisper.Model, cfg.Whisper.Device),
		vosk.NewRecognizer(cfg.Vosk.ModelDir),
	)

	req := transcriber.Request{
		FilePath: flag.Arg(0),
		Model:    *model,
		Language: *language,
		Device:   *device,
	}

	text, backend, err := svc.TranscribeWithBackend(context.Background(), req)
	if err != nil {
		logger.Fatal("Transcription failed", zap.Error(err))
		return
	}

	logger.Info("Transcription completed", zap.String("backend", backend))

	if text == "" {
		fmt.Fprintln(os.Stderr, "(no speech detected)")
		return
	}

	fmt.Println(text)
}
