package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JarrySand/whisper-discord-sub000/internal/segment"
)

func newTestStore(t *testing.T, maxAge time.Duration) *OfflineStore {
	t.Helper()
	s, err := NewOfflineStore(t.TempDir(), maxAge)
	if err != nil {
		t.Fatalf("NewOfflineStore: %v", err)
	}
	return s
}

func TestOffline_SaveAndReplayRoundTrip(t *testing.T) {
	s := newTestStore(t, time.Hour)

	seg := testSegment("alice", time.Now().Truncate(time.Millisecond))
	if err := s.Save(seg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := s.PendingCount(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	var got *segment.Segment
	n, err := s.Replay(context.Background(), func(seg *segment.Segment) bool {
		got = seg
		return true
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 1 {
		t.Fatalf("replayed = %d, want 1", n)
	}
	if got.ID != seg.ID || got.SpeakerID != seg.SpeakerID {
		t.Fatalf("identity lost: %+v", got)
	}
	if !got.StartTime.Equal(seg.StartTime) {
		t.Fatalf("start = %v, want %v", got.StartTime, seg.StartTime)
	}
	if string(got.Audio) != string(seg.Audio) {
		t.Fatal("audio payload corrupted")
	}
	if got.Format != seg.Format || got.SampleRate != seg.SampleRate {
		t.Fatalf("format lost: %s %d", got.Format, got.SampleRate)
	}
	if s.PendingCount() != 0 {
		t.Fatal("record not deleted after successful replay")
	}
}

func TestOffline_ReplayOldestFirst(t *testing.T) {
	s := newTestStore(t, time.Hour)

	base := time.Now()
	for _, sp := range []string{"late", "early", "mid"} {
		var offset time.Duration
		switch sp {
		case "early":
			offset = 0
		case "mid":
			offset = time.Minute
		case "late":
			offset = 2 * time.Minute
		}
		if err := s.Save(testSegment(sp, base.Add(offset))); err != nil {
			t.Fatalf("Save(%s): %v", sp, err)
		}
	}

	var order []string
	s.Replay(context.Background(), func(seg *segment.Segment) bool {
		order = append(order, seg.SpeakerID)
		return true
	})

	want := []string{"early", "mid", "late"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestOffline_FailedReplayKeepsRecord(t *testing.T) {
	s := newTestStore(t, time.Hour)
	s.Save(testSegment("alice", time.Now()))

	n, err := s.Replay(context.Background(), func(*segment.Segment) bool { return false })
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 0 {
		t.Fatalf("replayed = %d, want 0", n)
	}
	if got := s.PendingCount(); got != 1 {
		t.Fatalf("pending = %d, record should survive failed replay", got)
	}
}

func TestOffline_PurgesExpiredRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := NewOfflineStore(dir, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOfflineStore: %v", err)
	}

	s.Save(testSegment("stale", time.Now()))
	time.Sleep(80 * time.Millisecond)
	s.Save(testSegment("fresh", time.Now()))

	var replayed []string
	s.Replay(context.Background(), func(seg *segment.Segment) bool {
		replayed = append(replayed, seg.SpeakerID)
		return true
	})

	if len(replayed) != 1 || replayed[0] != "fresh" {
		t.Fatalf("replayed = %v, want only fresh", replayed)
	}
	if got := s.PendingCount(); got != 0 {
		t.Fatalf("pending = %d, expired record not purged", got)
	}
}

func TestOffline_CorruptRecordRemoved(t *testing.T) {
	dir := t.TempDir()
	s, err := NewOfflineStore(dir, time.Hour)
	if err != nil {
		t.Fatalf("NewOfflineStore: %v", err)
	}

	s.Save(testSegment("alice", time.Now()))
	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	n, err := s.Replay(context.Background(), func(*segment.Segment) bool { return true })
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 1 {
		t.Fatalf("replayed = %d, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "garbage.json")); !os.IsNotExist(err) {
		t.Fatal("corrupt record not removed")
	}
}

func TestOffline_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewOfflineStore(dir, time.Hour)
	if err != nil {
		t.Fatalf("NewOfflineStore: %v", err)
	}
	s1.Save(testSegment("alice", time.Now()))

	s2, err := NewOfflineStore(dir, time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := s2.PendingCount(); got != 1 {
		t.Fatalf("pending after reopen = %d, want 1", got)
	}
}

func TestOffline_Clear(t *testing.T) {
	s := newTestStore(t, time.Hour)
	base := time.Now()
	s.Save(testSegment("a", base))
	s.Save(testSegment("b", base.Add(time.Second)))

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := s.PendingCount(); got != 0 {
		t.Fatalf("pending = %d after clear", got)
	}
}
