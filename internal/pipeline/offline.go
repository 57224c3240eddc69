package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
	"github.com/JarrySand/whisper-discord-sub000/internal/observability/metrics"
	"github.com/JarrySand/whisper-discord-sub000/internal/segment"
)

// OfflineRecord is the durable form of a segment that could not be
// dispatched. The audio payload is serialized inline.
type OfflineRecord struct {
	ID             string    `json:"id"`
	SpeakerID      string    `json:"speakerId"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"displayName"`
	StartTimestamp time.Time `json:"startTimestamp"`
	EndTimestamp   time.Time `json:"endTimestamp"`
	DurationMs     int64     `json:"durationMs"`
	AudioPayload   []byte    `json:"audioPayload"`
	Format         string    `json:"format"`
	SampleRate     int       `json:"sampleRate"`
	Channels       int       `json:"channels"`
	Bitrate        int       `json:"bitrate"`
	SavedAt        time.Time `json:"savedAt"`
}

// OfflineStore persists segments across outages as one JSON file per
// record and replays them oldest-first once the transcriber recovers.
type OfflineStore struct {
	dir    string
	maxAge time.Duration
	log    zerolog.Logger
}

// NewOfflineStore creates the store, making its directory if needed.
func NewOfflineStore(dir string, maxAge time.Duration) (*OfflineStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("offline store dir: %w", err)
	}
	s := &OfflineStore{dir: dir, maxAge: maxAge, log: logging.WithComponent("offline")}
	metrics.DefaultMetrics.OfflinePending.Set(float64(s.PendingCount()))
	return s, nil
}

// Save persists one segment, keyed by its id. The write is atomic
// (tmp file + rename) so a crash never leaves a torn record.
func (s *OfflineStore) Save(seg *segment.Segment) error {
	rec := OfflineRecord{
		ID:             seg.ID,
		SpeakerID:      seg.SpeakerID,
		Username:       seg.Username,
		DisplayName:    seg.DisplayName,
		StartTimestamp: seg.StartTime,
		EndTimestamp:   seg.EndTime,
		DurationMs:     seg.Duration.Milliseconds(),
		AudioPayload:   seg.Audio,
		Format:         string(seg.Format),
		SampleRate:     seg.SampleRate,
		Channels:       seg.Channels,
		Bitrate:        seg.Bitrate,
		SavedAt:        time.Now(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	path := s.pathFor(seg.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	metrics.DefaultMetrics.OfflineSaved.Inc()
	metrics.DefaultMetrics.OfflinePending.Set(float64(s.PendingCount()))
	s.log.Info().
		Str("segment_id", seg.ID).
		Str("speaker_id", seg.SpeakerID).
		Int("bytes", len(seg.Audio)).
		Msg("segment saved offline")
	return nil
}

// Replay loads all records, purges expired ones, and hands the rest to
// process oldest-first to preserve chronological output. Records whose
// process call returns true are deleted; the rest stay for a later
// cycle. Returns how many records were replayed.
func (s *OfflineStore) Replay(ctx context.Context, process func(*segment.Segment) bool) (int, error) {
	records, err := s.load()
	if err != nil {
		return 0, err
	}

	now := time.Now()
	replayed := 0
	kept := records[:0]
	for _, rec := range records {
		if s.maxAge > 0 && now.Sub(rec.SavedAt) > s.maxAge {
			s.delete(rec.ID)
			metrics.DefaultMetrics.OfflinePurged.Inc()
			s.log.Warn().
				Str("segment_id", rec.ID).
				Time("saved_at", rec.SavedAt).
				Msg("offline record expired, purged without replay")
			continue
		}
		kept = append(kept, rec)
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].StartTimestamp.Before(kept[j].StartTimestamp)
	})

	for _, rec := range kept {
		if ctx.Err() != nil {
			return replayed, ctx.Err()
		}
		if process(rec.toSegment()) {
			s.delete(rec.ID)
			metrics.DefaultMetrics.OfflineReplayed.Inc()
			replayed++
		}
	}

	metrics.DefaultMetrics.OfflinePending.Set(float64(s.PendingCount()))
	return replayed, nil
}

// PendingCount returns how many records await replay.
func (s *OfflineStore) PendingCount() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			n++
		}
	}
	return n
}

// Clear deletes every record.
func (s *OfflineStore) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
	metrics.DefaultMetrics.OfflinePending.Set(0)
	return nil
}

func (s *OfflineStore) load() ([]OfflineRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var records []OfflineRecord
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Warn().Err(err).Str("file", e.Name()).Msg("unreadable offline record, skipping")
			continue
		}
		var rec OfflineRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn().Err(err).Str("file", e.Name()).Msg("corrupt offline record, removing")
			os.Remove(filepath.Join(s.dir, e.Name()))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *OfflineStore) delete(id string) {
	os.Remove(s.pathFor(id))
}

func (s *OfflineStore) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (r *OfflineRecord) toSegment() *segment.Segment {
	return &segment.Segment{
		ID:          r.ID,
		SpeakerID:   r.SpeakerID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		StartTime:   r.StartTimestamp,
		EndTime:     r.EndTimestamp,
		Duration:    time.Duration(r.DurationMs) * time.Millisecond,
		Audio:       r.AudioPayload,
		Format:      segment.Format(r.Format),
		SampleRate:  r.SampleRate,
		Channels:    r.Channels,
		Bitrate:     r.Bitrate,
	}
}
