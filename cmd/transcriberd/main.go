package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JarrySand/whisper-discord-sub000/internal/config"
	"github.com/JarrySand/whisper-discord-sub000/internal/events"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
	"github.com/JarrySand/whisper-discord-sub000/internal/pipeline"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe/google"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe/mock"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe/whisper"
)

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     os.Getenv("LOG_FORMAT"),
		TimeFormat: time.RFC3339,
	})

	transcriber, closeTranscriber, err := buildTranscriber(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Transcriber.Provider).Msg("failed to build transcriber")
	}
	defer closeTranscriber()

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicFinal:   cfg.Kafka.TopicFinal,
		TopicDropped: cfg.Kafka.TopicDropped,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	p, err := pipeline.New(cfg, transcriber, publisher)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}
	p.Start()

	obs := observability.NewServer(cfg.Observability.HTTPAddr, func() any {
		return p.Status()
	})
	obs.Start()

	log.Info().
		Str("provider", cfg.Transcriber.Provider).
		Str("http", cfg.Observability.HTTPAddr).
		Msg("voice transcription pipeline started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	p.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("observability server shutdown failed")
	}
}

// buildTranscriber selects the speech backend by configuration.
func buildTranscriber(cfg *config.Configuration) (transcribe.Transcriber, func(), error) {
	noop := func() {}
	switch cfg.Transcriber.Provider {
	case "whisper":
		c, err := whisper.New(whisper.Config{
			URL:      cfg.Transcriber.WhisperURL,
			Language: cfg.Transcriber.Language,
			Timeout:  cfg.Transcriber.Timeout,
		})
		return c, noop, err
	case "google":
		a, err := google.New(context.Background(), cfg.Transcriber.Language)
		if err != nil {
			return nil, noop, err
		}
		return a, func() { _ = a.Close() }, nil
	default:
		return mock.New(), noop, nil
	}
}
