package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability/metrics"
	"github.com/JarrySand/whisper-discord-sub000/internal/segment"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe"
)

// QueueConfig configures the dispatch queue.
type QueueConfig struct {
	MaxSize       int           // pending capacity before oldest-drop eviction
	Concurrency   int           // simultaneous in-flight dispatches
	MaxRetries    int           // transient retries per item
	ItemTimeout   time.Duration // per-dispatch deadline, cancels the call
	MinRequestGap time.Duration // shared minimum interval between dispatches
	Language      string
}

// DefaultQueueConfig returns the queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxSize:       100,
		Concurrency:   2,
		MaxRetries:    3,
		ItemTimeout:   30 * time.Second,
		MinRequestGap: 100 * time.Millisecond,
	}
}

// QueueItem is one segment awaiting or undergoing dispatch.
type QueueItem struct {
	ID         string
	Segment    *segment.Segment
	AddedAt    time.Time
	RetryCount int
	Priority   int64
}

// QueueEvents receives item lifecycle notifications. An item reaches
// exactly one of OnCompleted or OnFailed, never both.
type QueueEvents struct {
	OnCompleted func(*QueueItem, *transcribe.Result)
	OnFailed    func(*QueueItem, error)
	OnRetry     func(*QueueItem, error)
	OnDropped   func(*QueueItem)
	OnCleared   func(int)
}

// QueueStatus is a read-only snapshot of queue state.
type QueueStatus struct {
	Pending  int  `json:"pending"`
	InFlight int  `json:"inFlight"`
	Running  bool `json:"running"`
}

// DispatchQueue is a bounded priority queue with a concurrency-limited
// worker pool. Newer audio is served first (priority defaults to the
// segment start time); retries pre-empt ordering by reinserting at the
// front. All workers share one minimum-interval rate gate, so raising
// concurrency cannot exceed the upstream rate limit.
type DispatchQueue struct {
	cfg         QueueConfig
	events      QueueEvents
	transcriber transcribe.Transcriber
	breaker     *CircuitBreaker
	hotwords    func() []string
	log         zerolog.Logger

	mu       sync.Mutex
	pending  []*QueueItem
	inflight map[string]*QueueItem
	running  bool

	rateMu      sync.Mutex
	lastRequest time.Time

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatchQueue creates a stopped queue. breaker and hotwords may
// be nil.
func NewDispatchQueue(cfg QueueConfig, t transcribe.Transcriber, breaker *CircuitBreaker, hotwords func() []string) *DispatchQueue {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultQueueConfig().MaxSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultQueueConfig().Concurrency
	}
	return &DispatchQueue{
		cfg:         cfg,
		transcriber: t,
		breaker:     breaker,
		hotwords:    hotwords,
		inflight:    make(map[string]*QueueItem),
		wake:        make(chan struct{}, 1),
		log:         logging.WithComponent("queue"),
	}
}

// SetEvents registers lifecycle callbacks. Call before Start.
func (q *DispatchQueue) SetEvents(events QueueEvents) {
	q.events = events
}

// Enqueue adds a segment and returns the item id. When full, the
// oldest pending item is evicted and reported dropped; the caller is
// never blocked.
func (q *DispatchQueue) Enqueue(seg *segment.Segment, priority ...int64) string {
	item := &QueueItem{
		ID:      uuid.NewString(),
		Segment: seg,
		AddedAt: time.Now(),
	}
	if len(priority) > 0 {
		item.Priority = priority[0]
	} else {
		item.Priority = seg.StartTime.UnixMilli()
	}

	q.mu.Lock()
	var dropped *QueueItem
	if len(q.pending) >= q.cfg.MaxSize {
		dropped = q.evictOldestLocked()
	}
	q.insertByPriorityLocked(item)
	metrics.DefaultMetrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	if dropped != nil {
		metrics.DefaultMetrics.QueueDropped.Inc()
		q.log.Warn().
			Str("item_id", dropped.ID).
			Str("speaker_id", dropped.Segment.SpeakerID).
			Msg("queue full, evicted oldest pending item")
		if q.events.OnDropped != nil {
			q.events.OnDropped(dropped)
		}
	}

	q.kick()
	return item.ID
}

// Start launches the worker pool.
func (q *DispatchQueue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.mu.Unlock()

	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.log.Info().
		Int("concurrency", q.cfg.Concurrency).
		Int("max_size", q.cfg.MaxSize).
		Msg("dispatch queue started")
}

// Stop halts the worker pool. In-flight dispatches are cancelled.
func (q *DispatchQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
	q.log.Info().Msg("dispatch queue stopped")
}

// Clear discards all pending (not in-flight) items.
func (q *DispatchQueue) Clear() int {
	q.mu.Lock()
	n := len(q.pending)
	q.pending = nil
	metrics.DefaultMetrics.QueueDepth.Set(0)
	q.mu.Unlock()

	if n > 0 && q.events.OnCleared != nil {
		q.events.OnCleared(n)
	}
	return n
}

// GetStatus returns a snapshot of queue state.
func (q *DispatchQueue) GetStatus() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{
		Pending:  len(q.pending),
		InFlight: len(q.inflight),
		Running:  q.running,
	}
}

// GetConfig returns the queue configuration.
func (q *DispatchQueue) GetConfig() QueueConfig {
	return q.cfg
}

func (q *DispatchQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		item := q.take()
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		if err := q.waitRateGate(ctx); err != nil {
			q.requeueFront(item)
			return
		}

		q.dispatch(ctx, item)
	}
}

// take pops the highest-priority pending item into the in-flight set.
// A wake token only rouses one worker, so when more work remains the
// taker kicks again to fan the wakeup out to the other idle workers.
func (q *DispatchQueue) take() *QueueItem {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}
	item := q.pending[0]
	q.pending = q.pending[1:]
	q.inflight[item.ID] = item
	metrics.DefaultMetrics.QueueDepth.Set(float64(len(q.pending)))
	more := len(q.pending) > 0
	q.mu.Unlock()

	if more {
		q.kick()
	}
	return item
}

// waitRateGate blocks until the shared minimum interval since the
// last dispatch has elapsed, then claims the slot.
func (q *DispatchQueue) waitRateGate(ctx context.Context) error {
	if q.cfg.MinRequestGap <= 0 {
		return nil
	}
	for {
		q.rateMu.Lock()
		now := time.Now()
		next := q.lastRequest.Add(q.cfg.MinRequestGap)
		if !now.Before(next) {
			q.lastRequest = now
			q.rateMu.Unlock()
			return nil
		}
		wait := next.Sub(now)
		q.rateMu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (q *DispatchQueue) dispatch(ctx context.Context, item *QueueItem) {
	callCtx, cancel := context.WithTimeout(ctx, q.cfg.ItemTimeout)
	defer cancel()

	start := time.Now()
	var result *transcribe.Result
	op := func(opCtx context.Context) error {
		r, err := q.transcriber.Transcribe(opCtx, q.buildRequest(item))
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	var err error
	if q.breaker != nil {
		err = q.breaker.Execute(callCtx, op)
	} else {
		err = op(callCtx)
	}

	if err == nil {
		q.complete(item, result, time.Since(start))
		return
	}
	q.fail(ctx, item, err, time.Since(start))
}

func (q *DispatchQueue) complete(item *QueueItem, result *transcribe.Result, latency time.Duration) {
	q.mu.Lock()
	delete(q.inflight, item.ID)
	q.mu.Unlock()

	metrics.DefaultMetrics.RecordDispatch("completed", latency.Seconds())
	if q.events.OnCompleted != nil {
		q.events.OnCompleted(item, result)
	}
}

func (q *DispatchQueue) fail(ctx context.Context, item *QueueItem, err error, latency time.Duration) {
	// Breaker-open and permanent failures are terminal; retrying them
	// cannot help. The orchestrator persists terminal items offline.
	retryable := transcribe.IsRetryable(err) && !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil

	if retryable && item.RetryCount < q.cfg.MaxRetries {
		item.RetryCount++
		metrics.DefaultMetrics.RetriesTotal.Inc()
		q.log.Warn().Err(err).
			Str("item_id", item.ID).
			Int("retry", item.RetryCount).
			Msg("dispatch failed, retrying")

		q.mu.Lock()
		delete(q.inflight, item.ID)
		q.pending = append([]*QueueItem{item}, q.pending...)
		metrics.DefaultMetrics.QueueDepth.Set(float64(len(q.pending)))
		q.mu.Unlock()

		if q.events.OnRetry != nil {
			q.events.OnRetry(item, err)
		}
		q.kick()
		return
	}

	q.mu.Lock()
	delete(q.inflight, item.ID)
	q.mu.Unlock()

	metrics.DefaultMetrics.RecordDispatch("failed", latency.Seconds())
	q.log.Error().Err(err).
		Str("item_id", item.ID).
		Str("speaker_id", item.Segment.SpeakerID).
		Int("retries", item.RetryCount).
		Msg("dispatch failed terminally")
	if q.events.OnFailed != nil {
		q.events.OnFailed(item, err)
	}
}

func (q *DispatchQueue) buildRequest(item *QueueItem) *transcribe.Request {
	req := &transcribe.Request{
		Audio:       item.Segment.Audio,
		Format:      string(item.Segment.Format),
		SpeakerID:   item.Segment.SpeakerID,
		DisplayName: item.Segment.DisplayName,
		Start:       item.Segment.StartTime,
		End:         item.Segment.EndTime,
		Language:    q.cfg.Language,
	}
	if q.hotwords != nil {
		req.Hotwords = q.hotwords()
	}
	return req
}

// insertByPriorityLocked keeps pending sorted by descending priority.
func (q *DispatchQueue) insertByPriorityLocked(item *QueueItem) {
	pos := len(q.pending)
	for i, p := range q.pending {
		if item.Priority > p.Priority {
			pos = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[pos+1:], q.pending[pos:])
	q.pending[pos] = item
}

// evictOldestLocked removes the pending item that has waited longest.
func (q *DispatchQueue) evictOldestLocked() *QueueItem {
	if len(q.pending) == 0 {
		return nil
	}
	oldest := 0
	for i, p := range q.pending {
		if p.AddedAt.Before(q.pending[oldest].AddedAt) {
			oldest = i
		}
	}
	item := q.pending[oldest]
	q.pending = append(q.pending[:oldest], q.pending[oldest+1:]...)
	return item
}

func (q *DispatchQueue) requeueFront(item *QueueItem) {
	q.mu.Lock()
	delete(q.inflight, item.ID)
	q.pending = append([]*QueueItem{item}, q.pending...)
	q.mu.Unlock()
}

func (q *DispatchQueue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
