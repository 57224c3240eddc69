package segment

import (
	"fmt"
	"sync"
	"time"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability/metrics"
	"github.com/JarrySand/whisper-discord-sub000/internal/pcm"
)

// Config holds segment finalization thresholds.
type Config struct {
	MinDuration     time.Duration // segments shorter than this are discarded
	MinRMSThreshold float64       // normalized energy floor below which audio is discarded
	Bitrate         int
}

// DefaultConfig returns sensible segmenter defaults.
func DefaultConfig() Config {
	return Config{
		MinDuration:     500 * time.Millisecond,
		MinRMSThreshold: 0.005,
		Bitrate:         24000,
	}
}

// ConfigUpdate carries partial overrides for a running segmenter. Nil
// fields leave the current value untouched.
type ConfigUpdate struct {
	MinDuration     *time.Duration
	MinRMSThreshold *float64
	Bitrate         *int
}

// Stats is a snapshot of cumulative segmenter accounting.
type Stats struct {
	TotalSegments      uint64 `json:"totalSegments"`
	DiscardedTooShort  uint64 `json:"discardedTooShort"`
	DiscardedLowEnergy uint64 `json:"discardedLowEnergy"`
	ProcessedSegments  uint64 `json:"processedSegments"`
	SavedAPICalls      uint64 `json:"savedApiCalls"`
	SavingsRate        string `json:"savingsRate"`
}

// Segmenter converts flushed speaker buffers into finalized segments,
// discarding audio not worth a transcription call.
type Segmenter struct {
	mu        sync.Mutex
	cfg       Config
	ids       *Generator
	resampler Resampler
	primary   Encoder
	fallback  Encoder

	totalSegments      uint64
	discardedTooShort  uint64
	discardedLowEnergy uint64
	processedSegments  uint64
}

// New creates a Segmenter with the given thresholds and encoders.
func New(cfg Config, resampler Resampler, primary, fallback Encoder) *Segmenter {
	return &Segmenter{
		cfg:       cfg,
		ids:       NewGenerator(),
		resampler: resampler,
		primary:   primary,
		fallback:  fallback,
	}
}

// NewDefault creates a Segmenter with the stock resampler and encoders.
func NewDefault(cfg Config) *Segmenter {
	return New(cfg, LinearResampler{}, NewOpusEncoder(cfg.Bitrate), WAVEncoder{})
}

// CreateSegment finalizes a flushed buffer. Returns nil (and no error)
// when the audio is discarded as too short or too quiet.
func (s *Segmenter) CreateSegment(src Source) (*Segment, error) {
	log := logging.WithComponent("segmenter")
	m := metrics.DefaultMetrics

	s.mu.Lock()
	cfg := s.cfg
	s.totalSegments++
	s.mu.Unlock()

	duration := src.End.Sub(src.Start)
	if duration < cfg.MinDuration {
		s.mu.Lock()
		s.discardedTooShort++
		s.mu.Unlock()
		m.RecordSegmentDiscarded("too_short")
		log.Debug().
			Str("speakerId", src.SpeakerID).
			Dur("duration", duration).
			Msg("Segment discarded: too short")
		return nil, nil
	}

	energy := pcm.RMS(src.PCM)
	if energy < cfg.MinRMSThreshold {
		s.mu.Lock()
		s.discardedLowEnergy++
		s.mu.Unlock()
		m.RecordSegmentDiscarded("low_energy")
		log.Debug().
			Str("speakerId", src.SpeakerID).
			Float64("rms", energy).
			Msg("Segment discarded: below energy floor")
		return nil, nil
	}

	mono := s.resampler.To16kMono(src.PCM, src.SampleRate, src.Channels)

	format := s.primary.Format()
	bitrate := s.primary.Bitrate()
	audio, err := s.primary.Encode(mono)
	if err != nil {
		// Encoding failures are recovered locally, never surfaced.
		log.Warn().
			Err(err).
			Str("speakerId", src.SpeakerID).
			Msg("Primary encode failed, falling back to uncompressed")
		m.EncodeFallbacks.Inc()
		audio, err = s.fallback.Encode(mono)
		if err != nil {
			return nil, fmt.Errorf("fallback encode: %w", err)
		}
		format = s.fallback.Format()
		bitrate = s.fallback.Bitrate()
	}

	s.mu.Lock()
	s.processedSegments++
	s.mu.Unlock()
	m.RecordSegmentCreated()

	seg := &Segment{
		ID:          s.ids.Next(src.SpeakerID),
		SpeakerID:   src.SpeakerID,
		DisplayName: src.DisplayName,
		Username:    src.Username,
		StartTime:   src.Start,
		EndTime:     src.End,
		Duration:    duration,
		Audio:       audio,
		Format:      format,
		SampleRate:  TargetSampleRate,
		Channels:    TargetChannels,
		Bitrate:     bitrate,
	}

	log.Info().
		Str("segmentId", seg.ID).
		Str("speakerId", seg.SpeakerID).
		Dur("duration", duration).
		Str("format", string(format)).
		Int("bytes", len(audio)).
		Msg("Segment finalized")

	return seg, nil
}

// UpdateConfig merges partial overrides into the running configuration.
func (s *Segmenter) UpdateConfig(u ConfigUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.MinDuration != nil {
		s.cfg.MinDuration = *u.MinDuration
	}
	if u.MinRMSThreshold != nil {
		s.cfg.MinRMSThreshold = *u.MinRMSThreshold
	}
	if u.Bitrate != nil {
		s.cfg.Bitrate = *u.Bitrate
	}
}

// Config returns the current configuration.
func (s *Segmenter) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Stats returns a snapshot of cumulative accounting.
func (s *Segmenter) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.discardedTooShort + s.discardedLowEnergy
	rate := "0.0%"
	if s.totalSegments > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(saved)/float64(s.totalSegments)*100)
	}
	return Stats{
		TotalSegments:      s.totalSegments,
		DiscardedTooShort:  s.discardedTooShort,
		DiscardedLowEnergy: s.discardedLowEnergy,
		ProcessedSegments:  s.processedSegments,
		SavedAPICalls:      saved,
		SavingsRate:        rate,
	}
}

// ResetStats zeroes all cumulative counters.
func (s *Segmenter) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSegments = 0
	s.discardedTooShort = 0
	s.discardedLowEnergy = 0
	s.processedSegments = 0
}
