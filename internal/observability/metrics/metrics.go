// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicepipe"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Audio ingestion metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter
	IntakeFramesDropped prometheus.Counter

	// Buffer metrics
	BuffersActive prometheus.Gauge
	BufferFlushes *prometheus.CounterVec

	// Segment metrics
	SegmentsCreated   prometheus.Counter
	SegmentsDiscarded *prometheus.CounterVec
	EncodeFallbacks   prometheus.Counter

	// Dispatch queue metrics
	QueueDepth      prometheus.Gauge
	QueueDropped    prometheus.Counter
	DispatchTotal   *prometheus.CounterVec
	DispatchLatency prometheus.Histogram
	RetriesTotal    prometheus.Counter

	// Circuit breaker metrics
	BreakerState       prometheus.Gauge
	BreakerTransitions *prometheus.CounterVec

	// Health monitor metrics
	HealthState  prometheus.Gauge
	HealthProbes *prometheus.CounterVec

	// Offline store metrics
	OfflineSaved    prometheus.Counter
	OfflineReplayed prometheus.Counter
	OfflinePurged   prometheus.Counter
	OfflinePending  prometheus.Gauge

	// Transcript filter metrics
	TranscriptsFiltered *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),
		IntakeFramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_frames_dropped_total",
			Help:      "Total frames evicted from the intake ring under pressure",
		}),

		BuffersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speaker_buffers_active",
			Help:      "Number of speaker buffers currently holding audio",
		}),
		BufferFlushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_flushes_total",
			Help:      "Total buffer flushes",
		}, []string{"reason"}),

		SegmentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_created_total",
			Help:      "Total number of segments finalized for dispatch",
		}),
		SegmentsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_discarded_total",
			Help:      "Total number of segments discarded before dispatch",
		}, []string{"reason"}),
		EncodeFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_fallbacks_total",
			Help:      "Total segments encoded with the fallback format",
		}),

		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Number of pending items in the dispatch queue",
		}),
		QueueDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_dropped_total",
			Help:      "Total items evicted from a full dispatch queue",
		}),
		DispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total dispatch attempts by terminal outcome",
		}, []string{"outcome"}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Transcription dispatch latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		RetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_retries_total",
			Help:      "Total dispatch retries",
		}),

		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
		BreakerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker state transitions",
		}, []string{"to"}),

		HealthState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcriber_healthy",
			Help:      "Transcriber health (1=healthy, 0=unhealthy)",
		}),
		HealthProbes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Total health probes by result",
		}, []string{"result"}),

		OfflineSaved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_saved_total",
			Help:      "Total segments persisted to the offline store",
		}),
		OfflineReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_replayed_total",
			Help:      "Total offline records successfully replayed",
		}),
		OfflinePurged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_purged_total",
			Help:      "Total offline records purged for exceeding max age",
		}),
		OfflinePending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_pending",
			Help:      "Number of offline records awaiting replay",
		}),

		TranscriptsFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_filtered_total",
			Help:      "Total transcripts suppressed by text filters",
		}, []string{"reason"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordBufferFlush records a buffer flush and its trigger.
func (m *Metrics) RecordBufferFlush(reason string) {
	m.BufferFlushes.WithLabelValues(reason).Inc()
}

// RecordSegmentCreated records a segment finalized for dispatch.
func (m *Metrics) RecordSegmentCreated() {
	m.SegmentsCreated.Inc()
}

// RecordSegmentDiscarded records a segment rejected before dispatch.
func (m *Metrics) RecordSegmentDiscarded(reason string) {
	m.SegmentsDiscarded.WithLabelValues(reason).Inc()
}

// RecordDispatch records a terminal dispatch outcome and its latency.
func (m *Metrics) RecordDispatch(outcome string, latencySeconds float64) {
	m.DispatchTotal.WithLabelValues(outcome).Inc()
	m.DispatchLatency.Observe(latencySeconds)
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(to string, gauge float64) {
	m.BreakerTransitions.WithLabelValues(to).Inc()
	m.BreakerState.Set(gauge)
}

// RecordHealthProbe records the result of a health probe.
func (m *Metrics) RecordHealthProbe(healthy bool) {
	if healthy {
		m.HealthProbes.WithLabelValues("success").Inc()
	} else {
		m.HealthProbes.WithLabelValues("failure").Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordTranscriptFiltered records a transcript suppressed by a text filter.
func (m *Metrics) RecordTranscriptFiltered(reason string) {
	m.TranscriptsFiltered.WithLabelValues(reason).Inc()
}
