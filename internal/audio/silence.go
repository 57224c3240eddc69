package audio

import (
	"sync"
	"time"

	"github.com/JarrySand/whisper-discord-sub000/internal/pcm"
)

// DetectorStrategy selects how a chunk is classified as silent.
type DetectorStrategy string

const (
	// StrategyPeak judges silence per fixed-size window by the fraction
	// of samples below an amplitude threshold.
	StrategyPeak DetectorStrategy = "peak"
	// StrategyRMS judges silence by whole-chunk RMS energy.
	StrategyRMS DetectorStrategy = "rms"
)

// DetectorConfig configures a SilenceDetector.
type DetectorConfig struct {
	Strategy           DetectorStrategy
	AmplitudeThreshold int           // peak: sample magnitude below which a sample is "quiet"
	SilenceRatio       float64       // peak: fraction of quiet samples for a window to count silent
	WindowSize         int           // peak: samples per window
	RMSThreshold       float64       // rms: normalized energy below which a chunk is silent
	SilenceDuration    time.Duration // running silence needed before ShouldSegment fires
}

// DefaultDetectorConfig returns the detector defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Strategy:           StrategyRMS,
		AmplitudeThreshold: 500,
		SilenceRatio:       0.9,
		WindowSize:         960,
		RMSThreshold:       0.01,
		SilenceDuration:    2 * time.Second,
	}
}

// SilenceDetector classifies PCM chunks as silent or voiced and tracks
// how long the current silence run has lasted. A non-silent chunk
// resets the run. Safe for use by a single speaker's ingestion path.
type SilenceDetector struct {
	cfg DetectorConfig

	mu          sync.Mutex
	silentSince time.Time
	inSilence   bool

	now func() time.Time
}

// NewSilenceDetector creates a detector with the given config.
func NewSilenceDetector(cfg DetectorConfig) *SilenceDetector {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRMS
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultDetectorConfig().WindowSize
	}
	return &SilenceDetector{cfg: cfg, now: time.Now}
}

// Analyze classifies one PCM16LE chunk. If the chunk is silent it
// returns the elapsed time since the first silent chunk of the current
// run; a voiced chunk resets the run and returns 0.
func (d *SilenceDetector) Analyze(chunk []byte) time.Duration {
	silent := d.isSilent(chunk)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !silent {
		d.inSilence = false
		return 0
	}
	if !d.inSilence {
		d.inSilence = true
		d.silentSince = d.now()
		return 0
	}
	return d.now().Sub(d.silentSince)
}

// ShouldSegment reports whether the running silence has lasted at
// least the configured SilenceDuration.
func (d *SilenceDetector) ShouldSegment() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inSilence {
		return false
	}
	return d.now().Sub(d.silentSince) >= d.cfg.SilenceDuration
}

// Reset clears the running silence timer.
func (d *SilenceDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inSilence = false
	d.silentSince = time.Time{}
}

func (d *SilenceDetector) isSilent(chunk []byte) bool {
	samples := pcm.BytesToSamples(chunk)
	if len(samples) == 0 {
		return true
	}
	if d.cfg.Strategy == StrategyPeak {
		return d.isSilentPeak(samples)
	}
	return pcm.RMS(chunk) < d.cfg.RMSThreshold
}

// isSilentPeak requires every window of the chunk to be silent.
func (d *SilenceDetector) isSilentPeak(samples []int16) bool {
	for start := 0; start < len(samples); start += d.cfg.WindowSize {
		end := start + d.cfg.WindowSize
		if end > len(samples) {
			end = len(samples)
		}
		quiet := 0
		for _, s := range samples[start:end] {
			v := int(s)
			if v < 0 {
				v = -v
			}
			if v < d.cfg.AmplitudeThreshold {
				quiet++
			}
		}
		if float64(quiet)/float64(end-start) < d.cfg.SilenceRatio {
			return false
		}
	}
	return true
}
