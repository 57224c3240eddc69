// Package pipeline implements the failure-resilient dispatch path:
// priority queue, circuit breaker, health monitor, offline store, and
// the orchestrator tying them to the audio layer.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability/metrics"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects
// calls without attempting them.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState names a circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker FSM events.
const (
	breakerEventTrip    = "trip"
	breakerEventProbe   = "probe"
	breakerEventRestore = "restore"
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures to open
	SuccessThreshold int           // consecutive half-open successes to close
	OpenTimeout      time.Duration // how long open rejects before probing
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// BreakerEvents receives transition notifications. Callbacks run with
// the breaker lock held and must not call back into the breaker.
type BreakerEvents struct {
	OnStateChange func(from, to BreakerState)
	OnOpen        func()
	OnClose       func()
	OnHalfOpen    func()
}

// BreakerCounts is a snapshot of the breaker's counters.
type BreakerCounts struct {
	State           BreakerState
	Failures        int
	Successes       int
	LastFailureTime time.Time
	LastStateChange time.Time
}

// CircuitBreaker gates calls to an unreliable collaborator. A single
// instance is shared by all dispatch workers. Half-open probe
// admission is exclusive: one ticket at a time, so concurrent callers
// cannot all slip through as "the" probe.
type CircuitBreaker struct {
	cfg    BreakerConfig
	events BreakerEvents
	log    zerolog.Logger

	mu          sync.Mutex
	machine     *fsm.FSM
	failures    int
	successes   int
	lastFailure time.Time
	lastChange  time.Time
	probing     bool

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig, events BreakerEvents) *CircuitBreaker {
	b := &CircuitBreaker{
		cfg:    cfg,
		events: events,
		log:    logging.WithComponent("breaker"),
		now:    time.Now,
	}
	b.machine = fsm.NewFSM(
		string(BreakerClosed),
		fsm.Events{
			{Name: breakerEventTrip, Src: []string{string(BreakerClosed), string(BreakerHalfOpen)}, Dst: string(BreakerOpen)},
			{Name: breakerEventProbe, Src: []string{string(BreakerOpen)}, Dst: string(BreakerHalfOpen)},
			{Name: breakerEventRestore, Src: []string{string(BreakerHalfOpen)}, Dst: string(BreakerClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				b.onTransition(BreakerState(e.Src), BreakerState(e.Dst))
			},
		},
	)
	return b
}

// Execute runs op under the breaker. While open it fails immediately
// with ErrCircuitOpen until OpenTimeout has elapsed, at which point a
// single caller is admitted as the half-open probe.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	ticket, err := b.admit(ctx)
	if err != nil {
		return err
	}

	err = op(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if ticket {
		b.probing = false
	}
	if err != nil {
		b.onFailureLocked(ctx)
	} else {
		b.onSuccessLocked(ctx)
	}
	return err
}

// admit decides whether the call may proceed. The returned bool is
// true when this caller holds the half-open probe ticket.
func (b *CircuitBreaker) admit(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch BreakerState(b.machine.Current()) {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.cfg.OpenTimeout {
			return false, ErrCircuitOpen
		}
		b.machine.Event(ctx, breakerEventProbe)
		b.probing = true
		return true, nil
	case BreakerHalfOpen:
		if b.probing {
			return false, ErrCircuitOpen
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

func (b *CircuitBreaker) onSuccessLocked(ctx context.Context) {
	b.failures = 0
	if BreakerState(b.machine.Current()) == BreakerHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.machine.Event(ctx, breakerEventRestore)
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *CircuitBreaker) onFailureLocked(ctx context.Context) {
	b.successes = 0
	b.failures++
	b.lastFailure = b.now()

	switch BreakerState(b.machine.Current()) {
	case BreakerClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.machine.Event(ctx, breakerEventTrip)
		}
	case BreakerHalfOpen:
		b.machine.Event(ctx, breakerEventTrip)
	}
}

func (b *CircuitBreaker) onTransition(from, to BreakerState) {
	b.lastChange = b.now()
	metrics.DefaultMetrics.RecordBreakerTransition(string(to), breakerGauge(to))
	b.log.Warn().
		Str("from", string(from)).
		Str("to", string(to)).
		Int("failures", b.failures).
		Msg("breaker state change")

	if b.events.OnStateChange != nil {
		b.events.OnStateChange(from, to)
	}
	switch to {
	case BreakerOpen:
		if b.events.OnOpen != nil {
			b.events.OnOpen()
		}
	case BreakerClosed:
		if b.events.OnClose != nil {
			b.events.OnClose()
		}
	case BreakerHalfOpen:
		if b.events.OnHalfOpen != nil {
			b.events.OnHalfOpen()
		}
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState(b.machine.Current())
}

// Counts returns a snapshot of the breaker's counters.
func (b *CircuitBreaker) Counts() BreakerCounts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerCounts{
		State:           BreakerState(b.machine.Current()),
		Failures:        b.failures,
		Successes:       b.successes,
		LastFailureTime: b.lastFailure,
		LastStateChange: b.lastChange,
	}
}

// Reset forces the breaker closed with zeroed counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	from := BreakerState(b.machine.Current())
	b.machine.SetState(string(BreakerClosed))
	b.failures = 0
	b.successes = 0
	b.probing = false
	b.lastFailure = time.Time{}
	if from != BreakerClosed {
		b.onTransition(from, BreakerClosed)
	}
}

func breakerGauge(s BreakerState) float64 {
	switch s {
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	default:
		return 0
	}
}
