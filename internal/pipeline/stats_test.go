package pipeline

import (
	"testing"
	"time"
)

func TestStats_RequestCounters(t *testing.T) {
	c := NewStatsCollector()
	c.RecordRequest(true)
	c.RecordRequest(true)
	c.RecordRequest(true)
	c.RecordRequest(false)
	c.RecordRetry()

	st := c.Snapshot()
	if st.TotalRequests != 4 || st.SuccessfulRequests != 3 || st.FailedRequests != 1 {
		t.Fatalf("counters: %+v", st)
	}
	if st.RetriedRequests != 1 {
		t.Fatalf("retried = %d, want 1", st.RetriedRequests)
	}
	if st.SuccessRate != 0.75 {
		t.Fatalf("success rate = %v, want 0.75", st.SuccessRate)
	}
}

func TestStats_EmptySnapshot(t *testing.T) {
	c := NewStatsCollector()
	st := c.Snapshot()
	if st.SuccessRate != 0 {
		t.Fatalf("success rate = %v on empty collector", st.SuccessRate)
	}
	if st.ProcessingLatency != (LatencySummary{}) {
		t.Fatalf("latency summary = %+v on empty window", st.ProcessingLatency)
	}
}

func TestStats_LatencySummary(t *testing.T) {
	c := NewStatsCollector()
	for _, ms := range []int{100, 300, 200} {
		c.RecordProcessingLatency(time.Duration(ms) * time.Millisecond)
	}

	lat := c.Snapshot().ProcessingLatency
	if lat.Min != 100 || lat.Max != 300 {
		t.Fatalf("min/max = %v/%v, want 100/300", lat.Min, lat.Max)
	}
	if lat.Avg != 200 {
		t.Fatalf("avg = %v, want 200", lat.Avg)
	}
	if lat.P95 != 200 {
		t.Fatalf("p95 = %v, want 200 for a 3-sample window", lat.P95)
	}
}

func TestStats_WindowDropsOldest(t *testing.T) {
	c := NewStatsCollector()
	c.capacity = 3

	for _, ms := range []int{1000, 10, 20, 30} {
		c.RecordQueueWait(time.Duration(ms) * time.Millisecond)
	}

	lat := c.Snapshot().QueueWaitLatency
	if lat.Max != 30 {
		t.Fatalf("max = %v, oldest sample should have been dropped", lat.Max)
	}
	if lat.Min != 10 {
		t.Fatalf("min = %v, want 10", lat.Min)
	}
}

func TestStats_Throughput(t *testing.T) {
	c := NewStatsCollector()
	base := time.Now()
	c.since = base
	c.now = func() time.Time { return base.Add(time.Minute) }

	c.RecordSegment(10)
	c.RecordSegment(20)

	st := c.Snapshot()
	if st.TotalSegments != 2 || st.TotalWords != 30 {
		t.Fatalf("segments/words = %d/%d", st.TotalSegments, st.TotalWords)
	}
	if st.SegmentsPerMinute != 2 {
		t.Fatalf("segments/min = %v, want 2", st.SegmentsPerMinute)
	}
	if st.WordsPerMinute != 30 {
		t.Fatalf("words/min = %v, want 30", st.WordsPerMinute)
	}
	if st.UptimeSeconds != 60 {
		t.Fatalf("uptime = %v, want 60", st.UptimeSeconds)
	}
}

func TestStats_Reset(t *testing.T) {
	c := NewStatsCollector()
	c.RecordRequest(true)
	c.RecordSegment(5)
	c.RecordProcessingLatency(100 * time.Millisecond)

	c.Reset()

	st := c.Snapshot()
	if st.TotalRequests != 0 || st.TotalSegments != 0 || st.TotalWords != 0 {
		t.Fatalf("counters survived reset: %+v", st)
	}
	if st.ProcessingLatency != (LatencySummary{}) {
		t.Fatalf("latency window survived reset: %+v", st.ProcessingLatency)
	}
}
