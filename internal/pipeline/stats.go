package pipeline

import (
	"sort"
	"sync"
	"time"
)

const defaultStatsWindow = 256

// LatencySummary describes one latency window in milliseconds.
type LatencySummary struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	P95 float64 `json:"p95"`
}

// PipelineStats is an on-demand snapshot of dispatch accounting.
type PipelineStats struct {
	TotalRequests      int64          `json:"totalRequests"`
	SuccessfulRequests int64          `json:"successfulRequests"`
	FailedRequests     int64          `json:"failedRequests"`
	RetriedRequests    int64          `json:"retriedRequests"`
	SuccessRate        float64        `json:"successRate"`
	TotalSegments      int64          `json:"totalSegments"`
	TotalWords         int64          `json:"totalWords"`
	ProcessingLatency  LatencySummary `json:"processingLatency"`
	QueueWaitLatency   LatencySummary `json:"queueWaitLatency"`
	SegmentsPerMinute  float64        `json:"segmentsPerMinute"`
	WordsPerMinute     float64        `json:"wordsPerMinute"`
	UptimeSeconds      float64        `json:"uptimeSeconds"`
}

// StatsCollector keeps fixed-capacity sliding latency windows and
// monotonic counters. Consumed by observability, never by control
// flow.
type StatsCollector struct {
	mu sync.Mutex

	capacity   int
	processing []float64 // milliseconds, oldest dropped on overflow
	queueWait  []float64

	total     int64
	succeeded int64
	failed    int64
	retried   int64
	segments  int64
	words     int64

	since time.Time
	now   func() time.Time
}

// NewStatsCollector creates a collector with the default window size.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		capacity: defaultStatsWindow,
		since:    time.Now(),
		now:      time.Now,
	}
}

// RecordRequest counts one terminal dispatch outcome.
func (c *StatsCollector) RecordRequest(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if success {
		c.succeeded++
	} else {
		c.failed++
	}
}

// RecordRetry counts one retry attempt.
func (c *StatsCollector) RecordRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retried++
}

// RecordProcessingLatency adds one provider round-trip sample.
func (c *StatsCollector) RecordProcessingLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processing = c.push(c.processing, float64(d.Milliseconds()))
}

// RecordQueueWait adds one enqueue-to-dispatch wait sample.
func (c *StatsCollector) RecordQueueWait(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueWait = c.push(c.queueWait, float64(d.Milliseconds()))
}

// RecordSegment counts one transcribed segment and its word count.
func (c *StatsCollector) RecordSegment(words int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments++
	c.words += int64(words)
}

// Snapshot computes the current stats.
func (c *StatsCollector) Snapshot() PipelineStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.now().Sub(c.since)
	minutes := elapsed.Minutes()

	st := PipelineStats{
		TotalRequests:      c.total,
		SuccessfulRequests: c.succeeded,
		FailedRequests:     c.failed,
		RetriedRequests:    c.retried,
		TotalSegments:      c.segments,
		TotalWords:         c.words,
		ProcessingLatency:  summarize(c.processing),
		QueueWaitLatency:   summarize(c.queueWait),
		UptimeSeconds:      elapsed.Seconds(),
	}
	if c.total > 0 {
		st.SuccessRate = float64(c.succeeded) / float64(c.total)
	}
	if minutes > 0 {
		st.SegmentsPerMinute = float64(c.segments) / minutes
		st.WordsPerMinute = float64(c.words) / minutes
	}
	return st
}

// Reset zeroes all counters and windows and restarts the clock.
func (c *StatsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processing = nil
	c.queueWait = nil
	c.total, c.succeeded, c.failed, c.retried = 0, 0, 0, 0
	c.segments, c.words = 0, 0
	c.since = c.now()
}

func (c *StatsCollector) push(window []float64, v float64) []float64 {
	if len(window) >= c.capacity {
		window = window[1:]
	}
	return append(window, v)
}

// summarize computes avg/min/max and the 95th percentile from a
// sorted copy of the window.
func summarize(window []float64) LatencySummary {
	if len(window) == 0 {
		return LatencySummary{}
	}
	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	idx := int(float64(len(sorted))*0.95) - 1
	if idx < 0 {
		idx = 0
	}
	return LatencySummary{
		Avg: sum / float64(len(sorted)),
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		P95: sorted[idx],
	}
}
