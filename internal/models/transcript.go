// Package models defines the transcript event payloads published
// downstream.
package models

// TranscriptFinal is emitted for each successfully transcribed
// segment.
type TranscriptFinal struct {
	EventType        string  `json:"eventType"`
	SegmentID        string  `json:"segmentId"`
	SpeakerID        string  `json:"speakerId"`
	DisplayName      string  `json:"displayName"`
	Username         string  `json:"username"`
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
	StartTimestamp   int64   `json:"startTimestamp"`
	EndTimestamp     int64   `json:"endTimestamp"`
	DurationMs       int64   `json:"durationMs"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
	Timestamp        int64   `json:"timestamp"`
}

// TranscriptDropped is emitted when a segment's audio or text was
// discarded before producing a final transcript: queue eviction,
// terminal dispatch failure, or text filtering.
type TranscriptDropped struct {
	EventType      string `json:"eventType"`
	SegmentID      string `json:"segmentId"`
	SpeakerID      string `json:"speakerId"`
	DisplayName    string `json:"displayName"`
	Reason         string `json:"reason"`
	Detail         string `json:"detail,omitempty"`
	StartTimestamp int64  `json:"startTimestamp"`
	EndTimestamp   int64  `json:"endTimestamp"`
	Timestamp      int64  `json:"timestamp"`
}

// Drop reasons carried by TranscriptDropped events.
const (
	DropReasonQueueEvicted   = "queue_evicted"
	DropReasonDispatchFailed = "dispatch_failed"
	DropReasonFilteredText   = "filtered_text"
)
