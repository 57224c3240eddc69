// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds all runtime settings for the transcription pipeline.
type Configuration struct {
	Service       ServiceConfig
	Audio         AudioConfig
	Segmenter     SegmenterConfig
	Queue         QueueConfig
	Breaker       BreakerConfig
	Health        HealthConfig
	Offline       OfflineConfig
	Transcriber   TranscriberConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the service instance.
type ServiceConfig struct {
	Principal string
}

// AudioConfig controls per-speaker buffering and silence detection.
type AudioConfig struct {
	MaxBufferDuration  time.Duration // force a flush once this much speech is buffered
	SilenceThreshold   time.Duration // inactivity gap that closes an utterance
	IntakeRingBytes    int           // capacity of the PCM frame intake ring
	SweepInterval      time.Duration // how often idle buffers are checked
	DetectorStrategy   string        // "peak" or "rms"
	AmplitudeThreshold int           // peak detector: sample magnitude counted as silent
	SilenceRatio       float64       // peak detector: silent-sample fraction per window
	WindowSize         int           // peak detector: samples per analysis window
	RMSThreshold       float64       // rms detector: normalized energy floor
}

// SegmenterConfig controls segment finalization and discard policy.
type SegmenterConfig struct {
	MinDuration     time.Duration
	MinRMSThreshold float64
	Bitrate         int
}

// QueueConfig controls the dispatch queue.
type QueueConfig struct {
	MaxSize       int
	Concurrency   int
	MaxRetries    int
	ItemTimeout   time.Duration
	MinRequestGap time.Duration
}

// BreakerConfig controls the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// HealthConfig controls the transcriber health monitor.
type HealthConfig struct {
	Interval           time.Duration
	HealthyThreshold   int
	UnhealthyThreshold int
	ProbeTimeout       time.Duration
}

// OfflineConfig controls durable storage of undeliverable segments.
type OfflineConfig struct {
	Dir            string
	MaxAge         time.Duration
	ReplayInterval time.Duration
}

// TranscriberConfig selects and tunes the transcription backend.
type TranscriberConfig struct {
	Provider     string // "whisper", "google" or "mock"
	WhisperURL   string
	Language     string
	Timeout      time.Duration
	HotwordsFile string
	Hotwords     []string
}

// KafkaConfig controls transcript event publishing.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicFinal   string
	TopicDropped string
	Principal    string
}

// ObservabilityConfig controls logging and the ops HTTP server.
type ObservabilityConfig struct {
	LogLevel string
	HTTPAddr string
}

// Load reads configuration from environment variables, applying defaults
// for anything unset or unparsable.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-transcriber")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
		},
		Audio: AudioConfig{
			MaxBufferDuration:  envOrDefaultDuration("AUDIO_MAX_BUFFER_DURATION", 30*time.Second),
			SilenceThreshold:   envOrDefaultDuration("AUDIO_SILENCE_THRESHOLD", 2*time.Second),
			IntakeRingBytes:    envOrDefaultInt("AUDIO_INTAKE_RING_BYTES", 4*1024*1024),
			SweepInterval:      envOrDefaultDuration("AUDIO_SWEEP_INTERVAL", 250*time.Millisecond),
			DetectorStrategy:   envOrDefault("AUDIO_DETECTOR_STRATEGY", "rms"),
			AmplitudeThreshold: envOrDefaultInt("AUDIO_AMPLITUDE_THRESHOLD", 500),
			SilenceRatio:       envOrDefaultFloat("AUDIO_SILENCE_RATIO", 0.9),
			WindowSize:         envOrDefaultInt("AUDIO_WINDOW_SIZE", 960),
			RMSThreshold:       envOrDefaultFloat("AUDIO_RMS_THRESHOLD", 0.01),
		},
		Segmenter: SegmenterConfig{
			MinDuration:     envOrDefaultDuration("SEGMENT_MIN_DURATION", 500*time.Millisecond),
			MinRMSThreshold: envOrDefaultFloat("SEGMENT_MIN_RMS", 0.005),
			Bitrate:         envOrDefaultInt("SEGMENT_BITRATE", 24000),
		},
		Queue: QueueConfig{
			MaxSize:       envOrDefaultInt("QUEUE_MAX_SIZE", 100),
			Concurrency:   envOrDefaultInt("QUEUE_CONCURRENCY", 2),
			MaxRetries:    envOrDefaultInt("QUEUE_MAX_RETRIES", 3),
			ItemTimeout:   envOrDefaultDuration("QUEUE_ITEM_TIMEOUT", 30*time.Second),
			MinRequestGap: envOrDefaultDuration("QUEUE_MIN_REQUEST_GAP", 100*time.Millisecond),
		},
		Breaker: BreakerConfig{
			FailureThreshold: envOrDefaultInt("BREAKER_FAILURE_THRESHOLD", 5),
			SuccessThreshold: envOrDefaultInt("BREAKER_SUCCESS_THRESHOLD", 2),
			OpenTimeout:      envOrDefaultDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Health: HealthConfig{
			Interval:           envOrDefaultDuration("HEALTH_INTERVAL", 15*time.Second),
			HealthyThreshold:   envOrDefaultInt("HEALTH_HEALTHY_THRESHOLD", 2),
			UnhealthyThreshold: envOrDefaultInt("HEALTH_UNHEALTHY_THRESHOLD", 3),
			ProbeTimeout:       envOrDefaultDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second),
		},
		Offline: OfflineConfig{
			Dir:            envOrDefault("OFFLINE_DIR", "./offline"),
			MaxAge:         envOrDefaultDuration("OFFLINE_MAX_AGE", 24*time.Hour),
			ReplayInterval: envOrDefaultDuration("OFFLINE_REPLAY_INTERVAL", time.Minute),
		},
		Transcriber: TranscriberConfig{
			Provider:     envOrDefault("STT_PROVIDER", "mock"),
			WhisperURL:   envOrDefault("WHISPER_URL", "http://localhost:8000/transcribe"),
			Language:     envOrDefault("STT_LANGUAGE", "ja"),
			Timeout:      envOrDefaultDuration("STT_TIMEOUT", 60*time.Second),
			HotwordsFile: envOrDefault("STT_HOTWORDS_FILE", ""),
			Hotwords:     envOrDefaultList("STT_HOTWORDS", nil),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "voice.transcript.final"),
			TopicDropped: envOrDefault("KAFKA_TOPIC_DROPPED", "voice.transcript.dropped"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel: envOrDefault("LOG_LEVEL", "info"),
			HTTPAddr: envOrDefault("OBS_HTTP_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
