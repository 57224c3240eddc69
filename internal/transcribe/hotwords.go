package transcribe

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
)

// DefaultMaxPromptWords caps how many hotwords go into one prompt.
const DefaultMaxPromptWords = 50

// Hotwords manages the domain vocabulary (project names, jargon)
// handed to providers to bias recognition. Duplicates are ignored.
type Hotwords struct {
	mu    sync.RWMutex
	words []string
}

// NewHotwords creates a manager seeded with the given words.
func NewHotwords(words ...string) *Hotwords {
	h := &Hotwords{}
	h.AddMany(words)
	return h
}

type hotwordsFile struct {
	Hotwords    []string `json:"hotwords"`
	Description string   `json:"description,omitempty"`
}

// LoadFromFile merges hotwords from a JSON file of the form
// {"hotwords": ["DAO", "NFT", ...]}.
func (h *Hotwords) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f hotwordsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	added := h.AddMany(f.Hotwords)
	logger := logging.WithComponent("hotwords")
	logger.Info().
		Str("path", path).
		Int("added", added).
		Msg("loaded hotwords file")
	return nil
}

// LoadFromEnv merges comma-separated hotwords from an environment
// variable.
func (h *Hotwords) LoadFromEnv(envVar string) {
	value := os.Getenv(envVar)
	if value == "" {
		return
	}
	var words []string
	for _, w := range strings.Split(value, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	h.AddMany(words)
}

// Add inserts one word. Returns false if it was already present.
func (h *Hotwords) Add(word string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range h.words {
		if w == word {
			return false
		}
	}
	h.words = append(h.words, word)
	return true
}

// AddMany inserts words, returning how many were new.
func (h *Hotwords) AddMany(words []string) int {
	added := 0
	for _, w := range words {
		if h.Add(w) {
			added++
		}
	}
	return added
}

// Remove deletes one word. Returns whether it was present.
func (h *Hotwords) Remove(word string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, w := range h.words {
		if w == word {
			h.words = append(h.words[:i], h.words[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops all words.
func (h *Hotwords) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.words = nil
}

// Len returns the word count.
func (h *Hotwords) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.words)
}

// Words returns a snapshot of the current vocabulary.
func (h *Hotwords) Words() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.words))
	copy(out, h.words)
	return out
}

// Prompt renders up to maxWords as a comma-separated bias prompt.
func (h *Hotwords) Prompt(maxWords int) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	words := h.words
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, ", ")
}

// MergeWithRequest combines the managed vocabulary with per-request
// hotwords, capped at maxTotal, preserving server words first.
func (h *Hotwords) MergeWithRequest(reqWords []string, maxTotal int) []string {
	h.mu.RLock()
	combined := make([]string, len(h.words))
	copy(combined, h.words)
	h.mu.RUnlock()

	for _, w := range reqWords {
		dup := false
		for _, c := range combined {
			if c == w {
				dup = true
				break
			}
		}
		if !dup {
			combined = append(combined, w)
		}
	}
	if maxTotal > 0 && len(combined) > maxTotal {
		combined = combined[:maxTotal]
	}
	return combined
}
