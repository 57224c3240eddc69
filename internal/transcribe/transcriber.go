// Package transcribe defines the interface for speech-to-text providers
// and the text post-processing applied to their results.
package transcribe

import (
	"context"
	"time"
)

// Request carries one encoded audio segment to a provider.
type Request struct {
	Audio       []byte
	Format      string // "ogg/opus" or "wav"
	SpeakerID   string
	DisplayName string
	Start       time.Time
	End         time.Time
	Language    string
	Hotwords    []string
}

// Result is a provider's transcription of one segment.
type Result struct {
	Text             string
	Confidence       float64
	ProcessingTimeMs int64
}

// Transcriber is the provider contract the dispatch pipeline depends
// on. Implementations classify their failures with TransportError so
// the pipeline can tell retryable from terminal.
type Transcriber interface {
	// Transcribe sends one segment and blocks for the result.
	Transcribe(ctx context.Context, req *Request) (*Result, error)

	// HealthCheck probes provider availability.
	HealthCheck(ctx context.Context) error
}
