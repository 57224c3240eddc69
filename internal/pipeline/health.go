package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability/metrics"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe"
)

// HealthConfig configures the health monitor.
type HealthConfig struct {
	Interval           time.Duration
	HealthyThreshold   int // consecutive successes to flip healthy
	UnhealthyThreshold int // consecutive failures to flip unhealthy
	ProbeTimeout       time.Duration
}

// DefaultHealthConfig returns the monitor defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval:           15 * time.Second,
		HealthyThreshold:   2,
		UnhealthyThreshold: 3,
		ProbeTimeout:       5 * time.Second,
	}
}

// HealthEvents receives edge transitions only, never per-probe noise.
type HealthEvents struct {
	OnHealthy   func()
	OnUnhealthy func()
}

// HealthSnapshot is a read-only view of monitor state.
type HealthSnapshot struct {
	IsHealthy            bool      `json:"isHealthy"`
	ConsecutiveSuccesses int       `json:"consecutiveSuccesses"`
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	LastCheck            time.Time `json:"lastCheck"`
}

// HealthMonitor periodically probes the transcriber. Independent
// hysteresis thresholds in each direction keep isolated blips from
// flapping the state. Starts unhealthy until proven otherwise.
type HealthMonitor struct {
	cfg         HealthConfig
	events      HealthEvents
	transcriber transcribe.Transcriber
	log         zerolog.Logger

	mu          sync.Mutex
	healthy     bool
	consecSucc  int
	consecFail  int
	lastCheck   time.Time
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewHealthMonitor creates a stopped monitor.
func NewHealthMonitor(cfg HealthConfig, t transcribe.Transcriber, events HealthEvents) *HealthMonitor {
	return &HealthMonitor{
		cfg:         cfg,
		events:      events,
		transcriber: t,
		log:         logging.WithComponent("health"),
	}
}

// Start launches the periodic probe loop.
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	if h.cancel != nil {
		h.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.probe(ctx)
			}
		}
	}()
}

// Stop halts the probe loop.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
		h.wg.Wait()
	}
}

// IsHealthy returns the current health verdict.
func (h *HealthMonitor) IsHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy
}

// Snapshot returns the monitor's current counters.
func (h *HealthMonitor) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HealthSnapshot{
		IsHealthy:            h.healthy,
		ConsecutiveSuccesses: h.consecSucc,
		ConsecutiveFailures:  h.consecFail,
		LastCheck:            h.lastCheck,
	}
}

// ForceCheck runs one probe synchronously and returns the resulting
// verdict. Used to validate recovery before replaying offline work.
func (h *HealthMonitor) ForceCheck(ctx context.Context) bool {
	h.probe(ctx)
	return h.IsHealthy()
}

func (h *HealthMonitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	err := h.transcriber.HealthCheck(probeCtx)
	cancel()

	success := err == nil
	metrics.DefaultMetrics.RecordHealthProbe(success)

	h.mu.Lock()
	h.lastCheck = time.Now()

	var flipped bool
	var nowHealthy bool
	if success {
		h.consecSucc++
		h.consecFail = 0
		if !h.healthy && h.consecSucc >= h.cfg.HealthyThreshold {
			h.healthy = true
			flipped = true
			nowHealthy = true
		}
	} else {
		h.consecFail++
		h.consecSucc = 0
		if h.healthy && h.consecFail >= h.cfg.UnhealthyThreshold {
			h.healthy = false
			flipped = true
		}
	}
	h.mu.Unlock()

	if !flipped {
		return
	}

	if nowHealthy {
		metrics.DefaultMetrics.HealthState.Set(1)
		h.log.Info().Msg("transcriber recovered")
		if h.events.OnHealthy != nil {
			h.events.OnHealthy()
		}
	} else {
		metrics.DefaultMetrics.HealthState.Set(0)
		h.log.Warn().Err(err).Msg("transcriber unhealthy")
		if h.events.OnUnhealthy != nil {
			h.events.OnUnhealthy()
		}
	}
}
