// Package audio implements the per-speaker ingestion layer: stream
// identity tracking, raw frame intake, buffering, and silence detection.
package audio

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
)

// Identity is the stable identity of a conference participant,
// independent of any transient stream id.
type Identity struct {
	SpeakerID   string
	DisplayName string
	Username    string
}

// StreamInfo ties a live audio stream (SSRC) to a speaker identity.
type StreamInfo struct {
	SSRC uint32
	Identity
	JoinedAt time.Time
}

// Registry maintains the bidirectional SSRC <-> speaker mapping.
// Entries are created on first audio from a stream and removed on
// speaker departure. Lookups never fail hard; a miss returns ok=false.
type Registry struct {
	mu      sync.RWMutex
	forward map[uint32]StreamInfo
	reverse map[string]uint32
	log     zerolog.Logger
}

// NewRegistry creates an empty speaker stream registry.
func NewRegistry() *Registry {
	return &Registry{
		forward: make(map[uint32]StreamInfo),
		reverse: make(map[string]uint32),
		log:     logging.WithComponent("registry"),
	}
}

// Register inserts or overwrites the mapping for ssrc. When a known
// speaker shows up on a new SSRC (reconnect churn), the stale forward
// entry for their previous SSRC is pruned so both directions stay in
// agreement.
func (r *Registry) Register(ssrc uint32, ident Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.reverse[ident.SpeakerID]; ok && old != ssrc {
		delete(r.forward, old)
		r.log.Debug().
			Uint32("old_ssrc", old).
			Uint32("new_ssrc", ssrc).
			Str("speaker_id", ident.SpeakerID).
			Msg("speaker re-registered, pruned stale stream entry")
	}

	r.forward[ssrc] = StreamInfo{
		SSRC:     ssrc,
		Identity: ident,
		JoinedAt: time.Now(),
	}
	r.reverse[ident.SpeakerID] = ssrc
}

// Get looks up stream info by SSRC.
func (r *Registry) Get(ssrc uint32) (StreamInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.forward[ssrc]
	return info, ok
}

// GetByUserID looks up stream info by speaker id.
func (r *Registry) GetByUserID(speakerID string) (StreamInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ssrc, ok := r.reverse[speakerID]
	if !ok {
		return StreamInfo{}, false
	}
	info, ok := r.forward[ssrc]
	return info, ok
}

// GetSSRCByUserID returns the current SSRC for a speaker.
func (r *Registry) GetSSRCByUserID(speakerID string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ssrc, ok := r.reverse[speakerID]
	return ssrc, ok
}

// Remove drops the mapping for ssrc in both directions.
// Returns whether an entry was removed.
func (r *Registry) Remove(ssrc uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.forward[ssrc]
	if !ok {
		return false
	}
	delete(r.forward, ssrc)
	if cur, ok := r.reverse[info.SpeakerID]; ok && cur == ssrc {
		delete(r.reverse, info.SpeakerID)
	}
	return true
}

// RemoveByUserID drops the mapping for a speaker in both directions.
// Returns whether an entry was removed.
func (r *Registry) RemoveByUserID(speakerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ssrc, ok := r.reverse[speakerID]
	if !ok {
		return false
	}
	delete(r.reverse, speakerID)
	delete(r.forward, ssrc)
	return true
}

// Clear removes all entries.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forward = make(map[uint32]StreamInfo)
	r.reverse = make(map[string]uint32)
}

// AllUsers returns a snapshot of every registered stream.
func (r *Registry) AllUsers() []StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StreamInfo, 0, len(r.forward))
	for _, info := range r.forward {
		out = append(out, info)
	}
	return out
}

// Size returns the number of active stream entries.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forward)
}
