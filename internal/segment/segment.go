// Package segment turns flushed speaker audio into finalized, encoded
// segments ready for transcription dispatch.
package segment

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Format identifies the payload encoding of a finalized segment.
type Format string

const (
	// FormatOpus is the primary compressed format (Ogg-encapsulated Opus).
	FormatOpus Format = "ogg/opus"
	// FormatWAV is the uncompressed fallback used when Opus encoding fails.
	FormatWAV Format = "wav"
)

// TargetSampleRate is the sample rate every segment is resampled to.
const TargetSampleRate = 16000

// TargetChannels is the channel count of every finalized segment.
const TargetChannels = 1

// Segment is a finalized, bounded span of one speaker's audio. Immutable
// once created.
type Segment struct {
	ID          string
	SpeakerID   string
	DisplayName string
	Username    string
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Audio       []byte
	Format      Format
	SampleRate  int
	Channels    int
	Bitrate     int
}

// Source is a flushed speaker buffer awaiting finalization.
type Source struct {
	SpeakerID   string
	DisplayName string
	Username    string
	PCM         []byte // PCM16LE at SampleRate/Channels
	SampleRate  int
	Channels    int
	Start       time.Time
	End         time.Time
}

// Generator produces monotonically increasing segment IDs per process.
type Generator struct {
	counter uint64
}

// NewGenerator creates a segment ID generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next segment ID for the given speaker.
func (g *Generator) Next(speakerID string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-seg-%d", speakerID, n)
}
