package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JarrySand/whisper-discord-sub000/internal/audio"
	"github.com/JarrySand/whisper-discord-sub000/internal/config"
	"github.com/JarrySand/whisper-discord-sub000/internal/events"
	"github.com/JarrySand/whisper-discord-sub000/internal/models"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability/metrics"
	"github.com/JarrySand/whisper-discord-sub000/internal/segment"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe"
)

// Event types carried on published transcript events.
const (
	eventTypeFinal   = "voice.transcript.final"
	eventTypeDropped = "voice.transcript.dropped"
)

// Pipeline wires the ingestion layer to the dispatch layer: frames go
// through the intake ring into per-speaker buffers; finalized segments
// go through the dispatch queue to the transcriber; results are
// filtered and published; failures land in the offline store and are
// replayed once the transcriber recovers.
type Pipeline struct {
	cfg *config.Configuration
	log zerolog.Logger

	registry  *audio.Registry
	intake    *audio.Intake
	buffers   *audio.BufferManager
	segmenter *segment.Segmenter

	breaker *CircuitBreaker
	queue   *DispatchQueue
	health  *HealthMonitor
	offline *OfflineStore
	stats   *StatsCollector

	filter    *transcribe.TranscriptFilter
	hotwords  *transcribe.Hotwords
	publisher *events.Publisher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a pipeline from configuration. The transcriber and
// publisher are injected so callers choose the provider and the sink.
func New(cfg *config.Configuration, t transcribe.Transcriber, publisher *events.Publisher) (*Pipeline, error) {
	p := &Pipeline{
		cfg:       cfg,
		log:       logging.WithComponent("pipeline"),
		registry:  audio.NewRegistry(),
		intake:    audio.NewIntake(cfg.Audio.IntakeRingBytes),
		stats:     NewStatsCollector(),
		filter:    transcribe.NewTranscriptFilter(transcribe.DefaultFilterConfig()),
		publisher: publisher,
	}

	p.hotwords = transcribe.NewHotwords(cfg.Transcriber.Hotwords...)
	if cfg.Transcriber.HotwordsFile != "" {
		if err := p.hotwords.LoadFromFile(cfg.Transcriber.HotwordsFile); err != nil {
			p.log.Warn().Err(err).
				Str("path", cfg.Transcriber.HotwordsFile).
				Msg("hotwords file not loaded")
		}
	}

	p.segmenter = segment.New(
		segment.Config{
			MinDuration:     cfg.Segmenter.MinDuration,
			MinRMSThreshold: cfg.Segmenter.MinRMSThreshold,
			Bitrate:         cfg.Segmenter.Bitrate,
		},
		segment.LinearResampler{},
		segment.NewOpusEncoder(cfg.Segmenter.Bitrate),
		segment.WAVEncoder{},
	)

	detector := &audio.DetectorConfig{
		Strategy:           audio.DetectorStrategy(cfg.Audio.DetectorStrategy),
		AmplitudeThreshold: cfg.Audio.AmplitudeThreshold,
		SilenceRatio:       cfg.Audio.SilenceRatio,
		WindowSize:         cfg.Audio.WindowSize,
		RMSThreshold:       cfg.Audio.RMSThreshold,
		SilenceDuration:    cfg.Audio.SilenceThreshold,
	}
	p.buffers = audio.NewBufferManager(audio.BufferConfig{
		MaxBufferDuration: cfg.Audio.MaxBufferDuration,
		SilenceThreshold:  cfg.Audio.SilenceThreshold,
		Detector:          detector,
	}, p.segmenter, p.onSegment)

	p.breaker = NewCircuitBreaker(BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	}, BreakerEvents{})

	p.queue = NewDispatchQueue(QueueConfig{
		MaxSize:       cfg.Queue.MaxSize,
		Concurrency:   cfg.Queue.Concurrency,
		MaxRetries:    cfg.Queue.MaxRetries,
		ItemTimeout:   cfg.Queue.ItemTimeout,
		MinRequestGap: cfg.Queue.MinRequestGap,
		Language:      cfg.Transcriber.Language,
	}, t, p.breaker, func() []string {
		return p.hotwords.MergeWithRequest(nil, transcribe.DefaultMaxPromptWords)
	})
	p.queue.SetEvents(QueueEvents{
		OnCompleted: p.onCompleted,
		OnFailed:    p.onFailed,
		OnRetry:     func(_ *QueueItem, _ error) { p.stats.RecordRetry() },
		OnDropped:   p.onDropped,
		OnCleared: func(n int) {
			p.log.Warn().Int("count", n).Msg("dispatch queue cleared")
		},
	})

	offline, err := NewOfflineStore(cfg.Offline.Dir, cfg.Offline.MaxAge)
	if err != nil {
		return nil, err
	}
	p.offline = offline

	p.health = NewHealthMonitor(HealthConfig{
		Interval:           cfg.Health.Interval,
		HealthyThreshold:   cfg.Health.HealthyThreshold,
		UnhealthyThreshold: cfg.Health.UnhealthyThreshold,
		ProbeTimeout:       cfg.Health.ProbeTimeout,
	}, t, HealthEvents{
		OnHealthy:   p.onTranscriberHealthy,
		OnUnhealthy: func() { p.log.Warn().Msg("transcriber marked unhealthy") },
	})

	return p, nil
}

// Start launches the intake drain, the sweep ticker, the dispatch
// workers, the health monitor, and the offline replay ticker.
func (p *Pipeline) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.queue.Start()
	p.health.Start()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.intake.Run(ctx, p.handleFrame)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.Audio.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.buffers.CheckAll()
			}
		}
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.Offline.ReplayInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.replayOffline(ctx)
			}
		}
	}()

	p.log.Info().Msg("pipeline started")
}

// Stop drains buffers and shuts down in dependency order.
func (p *Pipeline) Stop() {
	p.buffers.FlushAll()
	p.health.Stop()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.queue.Stop()
	p.log.Info().Msg("pipeline stopped")
}

// RegisterSpeaker ties a stream id to a speaker identity.
func (p *Pipeline) RegisterSpeaker(ssrc uint32, ident audio.Identity) {
	p.registry.Register(ssrc, ident)
}

// RemoveSpeaker flushes and forgets a departing speaker.
func (p *Pipeline) RemoveSpeaker(speakerID string) {
	p.buffers.Remove(speakerID)
	p.registry.RemoveByUserID(speakerID)
}

// IngestFrame accepts one PCM chunk from the voice transport. Never
// blocks; under pressure the intake ring drops its oldest frames.
func (p *Pipeline) IngestFrame(ssrc uint32, pcm []byte, arrival time.Time) error {
	return p.intake.Push(audio.Frame{SSRC: ssrc, Timestamp: arrival, PCM: pcm})
}

// Status summarizes pipeline state for the ops surface.
func (p *Pipeline) Status() map[string]any {
	return map[string]any{
		"speakers": p.registry.Size(),
		"buffers":  p.buffers.Size(),
		"queue":    p.queue.GetStatus(),
		"breaker":  p.breaker.Counts(),
		"health":   p.health.Snapshot(),
		"offline":  p.offline.PendingCount(),
		"segments": p.segmenter.Stats(),
		"filters":  p.filter.Stats(),
		"dispatch": p.stats.Snapshot(),
	}
}

// handleFrame attributes one frame to its speaker. Frames from
// unregistered streams are dropped; identity is required for
// per-speaker isolation.
func (p *Pipeline) handleFrame(f audio.Frame) {
	info, ok := p.registry.Get(f.SSRC)
	if !ok {
		return
	}
	p.buffers.AppendAudio(info.Identity, f.PCM, f.Timestamp)
}

func (p *Pipeline) onSegment(seg *segment.Segment) {
	p.queue.Enqueue(seg)
}

func (p *Pipeline) onCompleted(item *QueueItem, result *transcribe.Result) {
	p.stats.RecordRequest(true)
	p.stats.RecordQueueWait(time.Since(item.AddedAt))
	if result.ProcessingTimeMs > 0 {
		p.stats.RecordProcessingLatency(time.Duration(result.ProcessingTimeMs) * time.Millisecond)
	}

	text, filtered, reason := p.filter.Filter(result.Text)
	if filtered && text == "" {
		metrics.DefaultMetrics.RecordTranscriptFiltered(reason)
		p.publishDropped(item.Segment, models.DropReasonFilteredText, reason)
		return
	}
	if text == "" {
		return
	}

	p.stats.RecordSegment(len(strings.Fields(text)))

	seg := item.Segment
	ev := models.TranscriptFinal{
		EventType:        eventTypeFinal,
		SegmentID:        seg.ID,
		SpeakerID:        seg.SpeakerID,
		DisplayName:      seg.DisplayName,
		Username:         seg.Username,
		Text:             text,
		Confidence:       result.Confidence,
		StartTimestamp:   seg.StartTime.UnixMilli(),
		EndTimestamp:     seg.EndTime.UnixMilli(),
		DurationMs:       seg.Duration.Milliseconds(),
		ProcessingTimeMs: result.ProcessingTimeMs,
		Timestamp:        time.Now().UnixMilli(),
	}
	if err := p.publisher.PublishFinal(context.Background(), seg.SpeakerID, ev); err != nil {
		p.log.Error().Err(err).Str("segment_id", seg.ID).Msg("failed to publish final transcript")
		return
	}
	logging.WithSegment(seg.ID, seg.SpeakerID).Debug().
		Int("chars", len(text)).
		Float64("confidence", result.Confidence).
		Msg("transcript published")
}

// onFailed persists terminally failed segments rather than dropping
// them; they replay once the transcriber recovers.
func (p *Pipeline) onFailed(item *QueueItem, dispatchErr error) {
	p.stats.RecordRequest(false)
	if err := p.offline.Save(item.Segment); err != nil {
		p.log.Error().Err(err).
			Str("segment_id", item.Segment.ID).
			Msg("failed to persist segment offline, audio lost")
		p.publishDropped(item.Segment, models.DropReasonDispatchFailed, dispatchErr.Error())
	}
}

func (p *Pipeline) onDropped(item *QueueItem) {
	p.publishDropped(item.Segment, models.DropReasonQueueEvicted, "")
}

func (p *Pipeline) publishDropped(seg *segment.Segment, reason, detail string) {
	ev := models.TranscriptDropped{
		EventType:      eventTypeDropped,
		SegmentID:      seg.ID,
		SpeakerID:      seg.SpeakerID,
		DisplayName:    seg.DisplayName,
		Reason:         reason,
		Detail:         detail,
		StartTimestamp: seg.StartTime.UnixMilli(),
		EndTimestamp:   seg.EndTime.UnixMilli(),
		Timestamp:      time.Now().UnixMilli(),
	}
	if err := p.publisher.PublishDropped(context.Background(), seg.SpeakerID, ev); err != nil {
		p.log.Error().Err(err).Str("segment_id", seg.ID).Msg("failed to publish dropped event")
	}
}

// onTranscriberHealthy validates recovery then drains the offline
// store back into the queue.
func (p *Pipeline) onTranscriberHealthy() {
	p.log.Info().Msg("transcriber healthy, replaying offline segments")
	p.replayOffline(context.Background())
}

func (p *Pipeline) replayOffline(ctx context.Context) {
	if p.offline.PendingCount() == 0 {
		return
	}
	if !p.health.IsHealthy() {
		return
	}

	replayed, err := p.offline.Replay(ctx, func(seg *segment.Segment) bool {
		p.queue.Enqueue(seg)
		return true
	})
	if err != nil {
		p.log.Error().Err(err).Msg("offline replay aborted")
		return
	}
	if replayed > 0 {
		p.log.Info().Int("count", replayed).Msg("offline segments requeued")
	}
}
