package events

import (
	"context"
	"testing"

	"github.com/JarrySand/whisper-discord-sub000/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerFinal != nil {
				t.Error("expected nil final writer when disabled")
			}
			if p.writerDropped != nil {
				t.Error("expected nil dropped writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicFinal:   "test.final",
		TopicDropped: "test.dropped",
		Principal:    "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicFinal != "test.final" {
		t.Errorf("expected topic final 'test.final', got %s", p.topicFinal)
	}
	if p.topicDropped != "test.dropped" {
		t.Errorf("expected topic dropped 'test.dropped', got %s", p.topicDropped)
	}
}

func TestPublisher_Publish_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	final := models.TranscriptFinal{
		EventType: "voice.transcript.final",
		SegmentID: "seg-1",
		SpeakerID: "user-1",
		Text:      "こんにちは",
	}
	if err := p.PublishFinal(context.Background(), "user-1", final); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}

	dropped := models.TranscriptDropped{
		EventType: "voice.transcript.dropped",
		SegmentID: "seg-2",
		SpeakerID: "user-1",
		Reason:    models.DropReasonQueueEvicted,
	}
	if err := p.PublishDropped(context.Background(), "user-1", dropped); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_MessageHeaders(t *testing.T) {
	p := New(&Config{
		Enabled:      false,
		TopicFinal:   "test.final",
		TopicDropped: "test.dropped",
		Principal:    "test-principal",
	})

	for _, eventType := range []string{"final", "dropped"} {
		msg := p.message(eventType, "user-1", []byte(`{}`))

		if string(msg.Key) != "user-1" {
			t.Errorf("key = %s, want user-1", msg.Key)
		}
		if len(msg.Headers) != 2 {
			t.Fatalf("headers = %d, want 2", len(msg.Headers))
		}
		if msg.Headers[0].Key != "eventType" || string(msg.Headers[0].Value) != eventType {
			t.Errorf("eventType header = %s=%s, want eventType=%s",
				msg.Headers[0].Key, msg.Headers[0].Value, eventType)
		}
		if msg.Headers[1].Key != "principal" || string(msg.Headers[1].Value) != "test-principal" {
			t.Errorf("principal header = %s=%s", msg.Headers[1].Key, msg.Headers[1].Value)
		}
	}
}

func TestPublisher_Publish_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Channels cannot be marshaled
	event := make(chan int)
	if err := p.PublishFinal(context.Background(), "key", event); err == nil {
		t.Error("expected error for unmarshalable event")
	}
	if err := p.PublishDropped(context.Background(), "key", event); err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
