package audio

import (
	"testing"
	"time"

	"github.com/JarrySand/whisper-discord-sub000/internal/segment"
)

func newTestManager(t *testing.T, cfg BufferConfig) (*BufferManager, chan *segment.Segment) {
	t.Helper()
	out := make(chan *segment.Segment, 16)
	seg := segment.New(segment.DefaultConfig(), segment.LinearResampler{}, segment.WAVEncoder{}, segment.WAVEncoder{})
	m := NewBufferManager(cfg, seg, func(s *segment.Segment) { out <- s })
	return m, out
}

func monoConfig() BufferConfig {
	cfg := DefaultBufferConfig()
	cfg.InputSampleRate = 48000
	cfg.InputChannels = 1
	return cfg
}

func TestBufferManager_AppendCreatesBuffer(t *testing.T) {
	m, _ := newTestManager(t, monoConfig())
	ident := Identity{SpeakerID: "user-1", DisplayName: "Alice"}

	chunk := loudChunk(4800)
	m.AppendAudio(ident, chunk, time.Now())

	if m.Size() != 1 {
		t.Errorf("Size = %d, want 1", m.Size())
	}
	if got := m.GetBufferSize("user-1"); got != len(chunk) {
		t.Errorf("GetBufferSize = %d, want %d", got, len(chunk))
	}
	if got := m.GetBufferSize("ghost"); got != 0 {
		t.Errorf("GetBufferSize for unknown speaker = %d, want 0", got)
	}
}

func TestBufferManager_FlushDeliversSegment(t *testing.T) {
	m, out := newTestManager(t, monoConfig())
	ident := Identity{SpeakerID: "user-1", DisplayName: "Alice", Username: "alice"}

	start := time.Now().Add(-2 * time.Second)
	m.AppendAudio(ident, loudChunk(48000), start)
	m.AppendAudio(ident, loudChunk(48000), start.Add(time.Second))

	m.FlushBuffer("user-1")

	select {
	case seg := <-out:
		if seg.SpeakerID != "user-1" || seg.DisplayName != "Alice" {
			t.Errorf("segment identity = %s/%s", seg.SpeakerID, seg.DisplayName)
		}
		if seg.Duration != time.Second {
			t.Errorf("segment duration = %v, want 1s", seg.Duration)
		}
	case <-time.After(time.Second):
		t.Fatal("no segment delivered")
	}

	if got := m.GetBufferSize("user-1"); got != 0 {
		t.Errorf("buffer not reset after flush: %d bytes", got)
	}
}

func TestBufferManager_RemoveFlushesAndDeletes(t *testing.T) {
	m, out := newTestManager(t, monoConfig())
	ident := Identity{SpeakerID: "user-1", DisplayName: "Alice", Username: "alice"}

	m.AppendAudio(ident, loudChunk(48000), time.Now().Add(-time.Second))
	m.Remove("user-1")

	select {
	case seg := <-out:
		if seg.SpeakerID != "user-1" {
			t.Errorf("segment speaker = %s, want user-1", seg.SpeakerID)
		}
	case <-time.After(time.Second):
		t.Fatal("no segment delivered on remove")
	}

	if m.Size() != 0 {
		t.Errorf("Size after Remove = %d, want 0", m.Size())
	}

	// Removing an unknown speaker is a no-op.
	m.Remove("ghost")
	if m.Size() != 0 {
		t.Errorf("Size after removing unknown speaker = %d, want 0", m.Size())
	}
}

func TestBufferManager_FlushEmptyIsNoop(t *testing.T) {
	m, out := newTestManager(t, monoConfig())

	m.FlushBuffer("nobody")
	select {
	case <-out:
		t.Fatal("segment delivered from empty buffer")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBufferManager_RejectedSegmentStillResets(t *testing.T) {
	m, out := newTestManager(t, monoConfig())
	ident := Identity{SpeakerID: "user-1"}

	// Below MinDuration, so the segmenter rejects it.
	now := time.Now()
	m.AppendAudio(ident, loudChunk(480), now)
	m.AppendAudio(ident, loudChunk(480), now.Add(10*time.Millisecond))
	m.FlushBuffer("user-1")

	select {
	case <-out:
		t.Fatal("rejected buffer produced a segment")
	case <-time.After(50 * time.Millisecond):
	}
	if got := m.GetBufferSize("user-1"); got != 0 {
		t.Errorf("buffer not reset after rejected flush: %d bytes", got)
	}
}

func TestBufferManager_InactivitySweep(t *testing.T) {
	cfg := monoConfig()
	cfg.SilenceThreshold = 2 * time.Second
	m, out := newTestManager(t, cfg)

	clock := time.Now()
	m.now = func() time.Time { return clock }

	ident := Identity{SpeakerID: "user-1"}
	m.AppendAudio(ident, loudChunk(48000), clock.Add(-time.Second))
	m.AppendAudio(ident, loudChunk(48000), clock)

	m.CheckAll()
	select {
	case <-out:
		t.Fatal("flushed before inactivity threshold")
	case <-time.After(50 * time.Millisecond):
	}

	clock = clock.Add(3 * time.Second)
	m.CheckAll()
	select {
	case seg := <-out:
		if seg.SpeakerID != "user-1" {
			t.Errorf("speaker = %s, want user-1", seg.SpeakerID)
		}
	case <-time.After(time.Second):
		t.Fatal("inactivity sweep did not flush")
	}
}

func TestBufferManager_MaxDurationTriggersAsyncFlush(t *testing.T) {
	cfg := monoConfig()
	cfg.MaxBufferDuration = time.Second
	m, out := newTestManager(t, cfg)

	ident := Identity{SpeakerID: "user-1"}
	start := time.Now().Add(-2 * time.Second)
	m.AppendAudio(ident, loudChunk(48000), start)
	m.AppendAudio(ident, loudChunk(48000), start.Add(1500*time.Millisecond))

	select {
	case seg := <-out:
		if seg.SpeakerID != "user-1" {
			t.Errorf("speaker = %s, want user-1", seg.SpeakerID)
		}
	case <-time.After(time.Second):
		t.Fatal("max duration did not trigger a flush")
	}
}

func TestBufferManager_SpeakerIsolation(t *testing.T) {
	m, out := newTestManager(t, monoConfig())

	start := time.Now().Add(-5 * time.Second)
	speakers := []string{"user-1", "user-2", "user-3"}
	for _, id := range speakers {
		ident := Identity{SpeakerID: id, DisplayName: id}
		for i := 0; i < 5; i++ {
			m.AppendAudio(ident, loudChunk(48000), start.Add(time.Duration(i)*time.Second))
		}
	}

	m.FlushAll()

	seen := map[string]int{}
	for range speakers {
		select {
		case seg := <-out:
			seen[seg.SpeakerID]++
		case <-time.After(time.Second):
			t.Fatal("missing segment")
		}
	}
	for _, id := range speakers {
		if seen[id] != 1 {
			t.Errorf("speaker %s produced %d segments, want 1", id, seen[id])
		}
	}
}

func TestBufferManager_Clear(t *testing.T) {
	m, _ := newTestManager(t, monoConfig())
	m.AppendAudio(Identity{SpeakerID: "user-1"}, loudChunk(4800), time.Now())

	m.Clear()
	if m.Size() != 0 {
		t.Errorf("Size after Clear = %d, want 0", m.Size())
	}
}
