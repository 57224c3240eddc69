package pipeline

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/JarrySand/whisper-discord-sub000/internal/audio"
	"github.com/JarrySand/whisper-discord-sub000/internal/config"
	"github.com/JarrySand/whisper-discord-sub000/internal/events"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe/mock"
)

func newTestConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg := config.Load()
	cfg.Offline.Dir = t.TempDir()
	cfg.Offline.ReplayInterval = time.Hour
	cfg.Audio.SweepInterval = time.Hour // flushes driven by the test
	cfg.Health.Interval = time.Hour
	cfg.Queue.MinRequestGap = time.Millisecond
	cfg.Queue.ItemTimeout = 5 * time.Second
	return cfg
}

func newTestPipeline(t *testing.T, tr transcribe.Transcriber) *Pipeline {
	t.Helper()
	p, err := New(newTestConfig(t), tr, events.New(nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// speech returns loud 48kHz stereo PCM16LE.
func speech(durationMs int) []byte {
	samples := 48000 * durationMs / 1000
	out := make([]byte, samples*2*2)
	for i := 0; i < samples; i++ {
		v := int16(12000 * math.Sin(2*math.Pi*440*float64(i)/48000))
		binary.LittleEndian.PutUint16(out[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(v))
	}
	return out
}

func pollUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	tr := mock.New()
	p := newTestPipeline(t, tr)
	p.Start()
	defer p.Stop()

	speakers := []audio.Identity{
		{SpeakerID: "u1", DisplayName: "Alice", Username: "alice"},
		{SpeakerID: "u2", DisplayName: "Bob", Username: "bob"},
		{SpeakerID: "u3", DisplayName: "Carol", Username: "carol"},
	}
	for i, ident := range speakers {
		p.RegisterSpeaker(uint32(1000+i), ident)
	}

	start := time.Now()
	pcm := speech(2000)
	for i, ident := range speakers {
		p.handleFrame(audio.Frame{SSRC: uint32(1000 + i), Timestamp: start, PCM: pcm})
		p.buffers.FlushBuffer(ident.SpeakerID)
	}

	pollUntil(t, "three dispatches", func() bool {
		return p.stats.Snapshot().SuccessfulRequests == 3
	})
	if tr.Calls() != 3 {
		t.Fatalf("transcriber calls = %d, want 3", tr.Calls())
	}
	if got := p.queue.GetStatus().Pending; got != 0 {
		t.Fatalf("pending = %d after drain", got)
	}
	if got := p.offline.PendingCount(); got != 0 {
		t.Fatalf("offline = %d, nothing should have failed", got)
	}
}

func TestPipeline_IngestRoutesThroughIntake(t *testing.T) {
	p := newTestPipeline(t, mock.New())
	p.Start()
	defer p.Stop()

	p.RegisterSpeaker(1500, audio.Identity{SpeakerID: "u1", DisplayName: "Alice", Username: "alice"})
	if err := p.IngestFrame(1500, speech(100), time.Now()); err != nil {
		t.Fatalf("IngestFrame: %v", err)
	}

	pollUntil(t, "frame to reach the buffer", func() bool {
		return p.buffers.GetBufferSize("u1") > 0
	})
}

func TestPipeline_UnknownStreamDropped(t *testing.T) {
	p := newTestPipeline(t, mock.New())

	p.handleFrame(audio.Frame{SSRC: 999, Timestamp: time.Now(), PCM: speech(100)})
	if got := p.buffers.Size(); got != 0 {
		t.Fatalf("buffers = %d, unregistered stream must not buffer", got)
	}
}

func TestPipeline_RemoveSpeakerFlushes(t *testing.T) {
	tr := mock.New()
	p := newTestPipeline(t, tr)
	p.Start()
	defer p.Stop()

	p.RegisterSpeaker(2000, audio.Identity{SpeakerID: "u1", DisplayName: "Alice", Username: "alice"})
	p.handleFrame(audio.Frame{SSRC: 2000, Timestamp: time.Now(), PCM: speech(2000)})
	p.RemoveSpeaker("u1")

	if got := p.registry.Size(); got != 0 {
		t.Fatalf("registry = %d after removal", got)
	}
	if got := p.buffers.Size(); got != 0 {
		t.Fatalf("buffers = %d after removal", got)
	}
	pollUntil(t, "departing speaker's segment", func() bool {
		return p.stats.Snapshot().SuccessfulRequests == 1
	})
}

func TestPipeline_TerminalFailureGoesOfflineThenReplays(t *testing.T) {
	tr := mock.New()
	tr.FailNext(4, nil) // initial attempt plus all three retries

	p := newTestPipeline(t, tr)
	p.Start()
	defer p.Stop()

	p.RegisterSpeaker(3000, audio.Identity{SpeakerID: "u1", DisplayName: "Alice", Username: "alice"})
	p.handleFrame(audio.Frame{SSRC: 3000, Timestamp: time.Now(), PCM: speech(2000)})
	p.buffers.FlushBuffer("u1")

	pollUntil(t, "offline persistence", func() bool {
		return p.offline.PendingCount() == 1
	})

	// Recovery: two healthy probes flip the monitor, which replays.
	ctx := context.Background()
	p.health.ForceCheck(ctx)
	p.health.ForceCheck(ctx)

	pollUntil(t, "replayed dispatch", func() bool {
		return p.stats.Snapshot().SuccessfulRequests == 1
	})
	pollUntil(t, "offline store drained", func() bool {
		return p.offline.PendingCount() == 0
	})
}

func TestPipeline_FilteredTranscriptSuppressed(t *testing.T) {
	tr := mock.NewWithResponses("うん")
	p := newTestPipeline(t, tr)
	p.Start()
	defer p.Stop()

	p.RegisterSpeaker(4000, audio.Identity{SpeakerID: "u1", DisplayName: "Alice", Username: "alice"})
	p.handleFrame(audio.Frame{SSRC: 4000, Timestamp: time.Now(), PCM: speech(2000)})
	p.buffers.FlushBuffer("u1")

	pollUntil(t, "filtered transcript", func() bool {
		return p.filter.Stats().AizuchiFiltered == 1
	})
	if got := p.stats.Snapshot().TotalSegments; got != 0 {
		t.Fatalf("segments = %d, filtered transcript must not count", got)
	}
}

func TestPipeline_StatusSurface(t *testing.T) {
	p := newTestPipeline(t, mock.New())
	p.RegisterSpeaker(5000, audio.Identity{SpeakerID: "u1", DisplayName: "Alice", Username: "alice"})

	status := p.Status()
	if got := status["speakers"]; got != 1 {
		t.Fatalf("speakers = %v, want 1", got)
	}
	for _, key := range []string{"buffers", "queue", "breaker", "health", "offline", "segments", "dispatch"} {
		if _, ok := status[key]; !ok {
			t.Fatalf("status missing %q", key)
		}
	}
}
