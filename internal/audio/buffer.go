package audio

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability/metrics"
	"github.com/JarrySand/whisper-discord-sub000/internal/segment"
)

// Flush reasons, recorded on the buffer flush counter.
const (
	flushReasonMaxDuration = "max_duration"
	flushReasonInactivity  = "inactivity"
	flushReasonSilence     = "silence"
	flushReasonManual      = "manual"
	flushReasonShutdown    = "shutdown"
)

// BufferConfig configures the per-speaker buffer manager.
type BufferConfig struct {
	// MaxBufferDuration forces a flush once this much audio has
	// accumulated, bounding memory during uninterrupted speech.
	MaxBufferDuration time.Duration
	// SilenceThreshold is the wall-clock inactivity gap after which a
	// sweep flushes the buffer.
	SilenceThreshold time.Duration
	// Detector optionally adds an amplitude-aware boundary check on
	// top of wall-clock inactivity. Nil disables it.
	Detector *DetectorConfig
	// InputSampleRate and InputChannels describe the PCM the voice
	// transport delivers.
	InputSampleRate int
	InputChannels   int
}

// DefaultBufferConfig returns the buffer manager defaults.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MaxBufferDuration: 30 * time.Second,
		SilenceThreshold:  2 * time.Second,
		InputSampleRate:   48000,
		InputChannels:     2,
	}
}

// SegmentSink receives each finalized segment exactly once.
type SegmentSink func(*segment.Segment)

type speakerBuffer struct {
	identity     Identity
	chunks       [][]byte
	bytes        int
	startTS      time.Time
	lastActivity time.Time
	flushing     bool
	detector     *SilenceDetector
}

func (b *speakerBuffer) duration() time.Duration {
	if b.startTS.IsZero() {
		return 0
	}
	return b.lastActivity.Sub(b.startTS)
}

// BufferManager accumulates raw PCM chunks per speaker and cuts
// utterance boundaries. Wall-clock inactivity is the boundary
// authority; the optional SilenceDetector only tightens it. At most
// one flush is in flight per speaker at any instant.
type BufferManager struct {
	cfg       BufferConfig
	segmenter *segment.Segmenter
	onSegment SegmentSink
	log       zerolog.Logger

	mu      sync.Mutex
	buffers map[string]*speakerBuffer

	now func() time.Time
}

// NewBufferManager creates a buffer manager that hands flushed buffers
// to seg and delivers finalized segments to sink.
func NewBufferManager(cfg BufferConfig, seg *segment.Segmenter, sink SegmentSink) *BufferManager {
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = DefaultBufferConfig().InputSampleRate
	}
	if cfg.InputChannels <= 0 {
		cfg.InputChannels = DefaultBufferConfig().InputChannels
	}
	return &BufferManager{
		cfg:       cfg,
		segmenter: seg,
		onSegment: sink,
		buffers:   make(map[string]*speakerBuffer),
		log:       logging.WithComponent("buffer"),
		now:       time.Now,
	}
}

// AppendAudio adds one PCM chunk to the speaker's buffer, creating it
// lazily. Crossing MaxBufferDuration triggers an asynchronous flush.
func (m *BufferManager) AppendAudio(ident Identity, chunk []byte, arrival time.Time) {
	if len(chunk) == 0 {
		return
	}

	m.mu.Lock()
	buf, ok := m.buffers[ident.SpeakerID]
	if !ok {
		buf = &speakerBuffer{identity: ident}
		if m.cfg.Detector != nil {
			buf.detector = NewSilenceDetector(*m.cfg.Detector)
		}
		m.buffers[ident.SpeakerID] = buf
		metrics.DefaultMetrics.BuffersActive.Inc()
		logging.WithSpeaker(ident.SpeakerID, ident.DisplayName).Debug().
			Msg("speaker buffer created")
	}
	buf.identity = ident
	if buf.startTS.IsZero() {
		buf.startTS = arrival
	}
	buf.chunks = append(buf.chunks, chunk)
	buf.bytes += len(chunk)
	buf.lastActivity = arrival

	overMax := buf.duration() >= m.cfg.MaxBufferDuration && !buf.flushing
	detector := buf.detector
	m.mu.Unlock()

	metrics.DefaultMetrics.RecordAudioReceived(len(chunk))

	if overMax {
		go m.flush(ident.SpeakerID, flushReasonMaxDuration)
		return
	}

	if detector != nil {
		detector.Analyze(chunk)
		if detector.ShouldSegment() {
			detector.Reset()
			go m.flush(ident.SpeakerID, flushReasonSilence)
		}
	}
}

// CheckAndFlush flushes the speaker's buffer if it has been inactive
// for at least SilenceThreshold.
func (m *BufferManager) CheckAndFlush(speakerID string) {
	m.mu.Lock()
	buf, ok := m.buffers[speakerID]
	idle := ok && len(buf.chunks) > 0 &&
		m.now().Sub(buf.lastActivity) >= m.cfg.SilenceThreshold
	m.mu.Unlock()

	if idle {
		m.flush(speakerID, flushReasonInactivity)
	}
}

// CheckAll runs the inactivity check for every known speaker.
// Called from the pipeline's sweep ticker.
func (m *BufferManager) CheckAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.CheckAndFlush(id)
	}
}

// FlushBuffer flushes the speaker's buffer immediately. A no-op if a
// flush is already in progress or the buffer is empty.
func (m *BufferManager) FlushBuffer(speakerID string) {
	m.flush(speakerID, flushReasonManual)
}

// FlushAll flushes every speaker's buffer, for shutdown drains.
func (m *BufferManager) FlushAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.flush(id, flushReasonShutdown)
	}
}

// flush snapshots the buffer contents and resets the buffer under the
// lock, so the buffer is always reset no matter how segmentation goes
// and new audio accumulates freely during the flush. The in-progress
// flag guards against a concurrent double-flush of the same snapshot.
func (m *BufferManager) flush(speakerID, reason string) {
	m.mu.Lock()
	buf, ok := m.buffers[speakerID]
	if !ok || buf.flushing || len(buf.chunks) == 0 {
		m.mu.Unlock()
		return
	}
	buf.flushing = true

	src := segment.Source{
		SpeakerID:   buf.identity.SpeakerID,
		DisplayName: buf.identity.DisplayName,
		Username:    buf.identity.Username,
		PCM:         concat(buf.chunks, buf.bytes),
		SampleRate:  m.cfg.InputSampleRate,
		Channels:    m.cfg.InputChannels,
		Start:       buf.startTS,
		End:         buf.lastActivity,
	}
	buf.chunks = nil
	buf.bytes = 0
	buf.startTS = time.Time{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if b, ok := m.buffers[speakerID]; ok {
			b.flushing = false
		}
		m.mu.Unlock()
	}()

	metrics.DefaultMetrics.RecordBufferFlush(reason)

	seg, err := m.segmenter.CreateSegment(src)
	if err != nil {
		m.log.Error().Err(err).
			Str("speaker_id", speakerID).
			Str("reason", reason).
			Msg("segmentation failed, audio dropped")
		return
	}
	if seg == nil {
		return
	}
	if m.onSegment != nil {
		m.onSegment(seg)
	}
}

// Remove flushes any buffered audio for the speaker and deletes their
// buffer, for speaker departure. Without the delete, churn through many
// speakers would grow the buffer map without bound.
func (m *BufferManager) Remove(speakerID string) {
	m.flush(speakerID, flushReasonManual)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buffers[speakerID]; ok {
		delete(m.buffers, speakerID)
		metrics.DefaultMetrics.BuffersActive.Dec()
	}
}

// Clear discards all buffered audio without flushing.
func (m *BufferManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for range m.buffers {
		metrics.DefaultMetrics.BuffersActive.Dec()
	}
	m.buffers = make(map[string]*speakerBuffer)
}

// Size returns the number of speakers with a buffer.
func (m *BufferManager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers)
}

// GetBufferSize returns the buffered byte count for one speaker.
func (m *BufferManager) GetBufferSize(speakerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buf, ok := m.buffers[speakerID]; ok {
		return buf.bytes
	}
	return 0
}

func concat(chunks [][]byte, total int) []byte {
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
