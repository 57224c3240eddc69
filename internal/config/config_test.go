package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"SERVICE_PRINCIPAL", "LOG_LEVEL",
		"AUDIO_MAX_BUFFER_DURATION", "AUDIO_SILENCE_THRESHOLD", "AUDIO_RMS_THRESHOLD",
		"QUEUE_MAX_SIZE", "QUEUE_CONCURRENCY", "QUEUE_MAX_RETRIES",
		"BREAKER_FAILURE_THRESHOLD", "BREAKER_OPEN_TIMEOUT",
		"STT_PROVIDER", "STT_LANGUAGE", "KAFKA_ENABLED", "KAFKA_PRINCIPAL",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.Principal != "svc-voice-transcriber" {
		t.Errorf("expected default principal 'svc-voice-transcriber', got %s", cfg.Service.Principal)
	}
	if cfg.Audio.MaxBufferDuration != 30*time.Second {
		t.Errorf("expected default max buffer duration 30s, got %v", cfg.Audio.MaxBufferDuration)
	}
	if cfg.Audio.SilenceThreshold != 2*time.Second {
		t.Errorf("expected default silence threshold 2s, got %v", cfg.Audio.SilenceThreshold)
	}
	if cfg.Queue.MaxSize != 100 {
		t.Errorf("expected default queue size 100, got %d", cfg.Queue.MaxSize)
	}
	if cfg.Queue.Concurrency != 2 {
		t.Errorf("expected default concurrency 2, got %d", cfg.Queue.Concurrency)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("expected default failure threshold 5, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Transcriber.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.Transcriber.Provider)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("AUDIO_MAX_BUFFER_DURATION", "10s")
	os.Setenv("AUDIO_RMS_THRESHOLD", "0.05")
	os.Setenv("QUEUE_MAX_SIZE", "7")
	os.Setenv("QUEUE_MAX_RETRIES", "5")
	os.Setenv("BREAKER_OPEN_TIMEOUT", "1m")
	os.Setenv("STT_PROVIDER", "whisper")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "broker-a:9092, broker-b:9092")

	defer func() {
		os.Unsetenv("SERVICE_PRINCIPAL")
		os.Unsetenv("AUDIO_MAX_BUFFER_DURATION")
		os.Unsetenv("AUDIO_RMS_THRESHOLD")
		os.Unsetenv("QUEUE_MAX_SIZE")
		os.Unsetenv("QUEUE_MAX_RETRIES")
		os.Unsetenv("BREAKER_OPEN_TIMEOUT")
		os.Unsetenv("STT_PROVIDER")
		os.Unsetenv("KAFKA_ENABLED")
		os.Unsetenv("KAFKA_BROKERS")
	}()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Audio.MaxBufferDuration != 10*time.Second {
		t.Errorf("expected max buffer duration 10s, got %v", cfg.Audio.MaxBufferDuration)
	}
	if cfg.Audio.RMSThreshold != 0.05 {
		t.Errorf("expected RMS threshold 0.05, got %f", cfg.Audio.RMSThreshold)
	}
	if cfg.Queue.MaxSize != 7 {
		t.Errorf("expected queue size 7, got %d", cfg.Queue.MaxSize)
	}
	if cfg.Queue.MaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", cfg.Queue.MaxRetries)
	}
	if cfg.Breaker.OpenTimeout != time.Minute {
		t.Errorf("expected open timeout 1m, got %v", cfg.Breaker.OpenTimeout)
	}
	if cfg.Transcriber.Provider != "whisper" {
		t.Errorf("expected provider 'whisper', got %s", cfg.Transcriber.Provider)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-a:9092" || cfg.Kafka.Brokers[1] != "broker-b:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	os.Setenv("QUEUE_MAX_SIZE", "not-a-number")
	os.Setenv("AUDIO_MAX_BUFFER_DURATION", "invalid")
	os.Setenv("AUDIO_RMS_THRESHOLD", "invalid")
	os.Setenv("KAFKA_ENABLED", "invalid")

	defer func() {
		os.Unsetenv("QUEUE_MAX_SIZE")
		os.Unsetenv("AUDIO_MAX_BUFFER_DURATION")
		os.Unsetenv("AUDIO_RMS_THRESHOLD")
		os.Unsetenv("KAFKA_ENABLED")
	}()

	cfg := Load()

	if cfg.Queue.MaxSize != 100 {
		t.Errorf("expected default queue size on invalid input, got %d", cfg.Queue.MaxSize)
	}
	if cfg.Audio.MaxBufferDuration != 30*time.Second {
		t.Errorf("expected default max buffer duration on invalid input, got %v", cfg.Audio.MaxBufferDuration)
	}
	if cfg.Audio.RMSThreshold != 0.01 {
		t.Errorf("expected default RMS threshold on invalid input, got %f", cfg.Audio.RMSThreshold)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled on invalid input")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	os.Unsetenv("KAFKA_PRINCIPAL")

	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
