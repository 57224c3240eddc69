package transcribe

import (
	"regexp"
	"strings"
	"sync"
)

// Whisper-style models occasionally hallucinate: stock phrases lifted
// from subtitled video ("ご視聴ありがとうございました"), runs of the
// same word, or bare punctuation. These never belong in a transcript.
var hallucinationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^字幕提供.*$`),
	regexp.MustCompile(`^ご視聴ありがとうございました.*$`),
	regexp.MustCompile(`^チャンネル登録.*$`),
	regexp.MustCompile(`^お疲れ様でした$`),
	regexp.MustCompile(`^\.+$`),
	regexp.MustCompile(`^,+$`),
	regexp.MustCompile(`^[\s　]+$`),
	regexp.MustCompile(`(?i)(?:music|♪|♫)+`),
	regexp.MustCompile(`\[音楽\]`),
	regexp.MustCompile(`\[拍手\]`),
	regexp.MustCompile(`^\s*お\s*$`),
	regexp.MustCompile(`^\s*ん\s*$`),
}

// Backchannel interjections ("うん", "なるほど") dominate conference
// audio and are noise in meeting minutes.
var aizuchiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^うん[。．、]*$`),
	regexp.MustCompile(`^ん[ー〜]*[。．、]*$`),
	regexp.MustCompile(`^はい[。．、]*$`),
	regexp.MustCompile(`^ええ[。．、]*$`),
	regexp.MustCompile(`^へーー*[。．、]*$`),
	regexp.MustCompile(`^えー(っと)*[。．、]*$`),
	regexp.MustCompile(`^あー[。．、]*$`),
	regexp.MustCompile(`^まあ[。．、]*$`),
	regexp.MustCompile(`^えっと[。．、]*$`),
	regexp.MustCompile(`^あのー*[。．、]*$`),
	regexp.MustCompile(`^そのー*[。．、]*$`),
	regexp.MustCompile(`^なんか[。．、]*$`),
	regexp.MustCompile(`^そうですね[。．、]*$`),
	regexp.MustCompile(`^なるほどね*[。．、]*$`),
	regexp.MustCompile(`^確かに[。．、]*$`),
	regexp.MustCompile(`^そうそう[。．、]*$`),
	regexp.MustCompile(`^そっかー*[。．、]*$`),
	regexp.MustCompile(`^そうだね[。．、]*$`),
	regexp.MustCompile(`^だね[。．、]*$`),
	regexp.MustCompile(`^ねー*[。．、]*$`),
	regexp.MustCompile(`^おー[。．、]*$`),
	regexp.MustCompile(`^わー[。．、]*$`),
	regexp.MustCompile(`^すごい[。．、]*$`),
	regexp.MustCompile(`^ふーん[。．、]*$`),
	regexp.MustCompile(`^ほー[。．、]*$`),
	regexp.MustCompile(`^[笑わはw]+[。．、]*$`),
	regexp.MustCompile(`^\(笑\)[。．、]*$`),
	regexp.MustCompile(`^ふふふ*[。．、]*$`),
	regexp.MustCompile(`^あはは*[。．、]*$`),
}

// FilterConfig configures transcript post-processing.
type FilterConfig struct {
	HallucinationEnabled bool
	AizuchiEnabled       bool
	MinRepetitionCount   int // repetitions of a phrase to flag as hallucination
	MaxRepetitionLength  int // longest phrase considered for repetition
	MaxAizuchiLength     int // longest text (in runes) considered a backchannel
}

// DefaultFilterConfig returns the filter defaults.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		HallucinationEnabled: true,
		AizuchiEnabled:       true,
		MinRepetitionCount:   3,
		MaxRepetitionLength:  20,
		MaxAizuchiLength:     15,
	}
}

// FilterStats counts what the filter discarded.
type FilterStats struct {
	TotalFiltered      int64 `json:"totalFiltered"`
	RepetitionFiltered int64 `json:"repetitionFiltered"`
	PatternFiltered    int64 `json:"patternFiltered"`
	AizuchiFiltered    int64 `json:"aizuchiFiltered"`
}

// Filter reasons.
const (
	FilterReasonPattern    = "pattern_match"
	FilterReasonRepetition = "repetition"
	FilterReasonAizuchi    = "aizuchi"
)

// TranscriptFilter screens provider output for hallucinations and
// backchannel noise before it is published.
type TranscriptFilter struct {
	cfg FilterConfig

	mu    sync.Mutex
	stats FilterStats
}

// NewTranscriptFilter creates a filter with the given config.
func NewTranscriptFilter(cfg FilterConfig) *TranscriptFilter {
	if cfg.MinRepetitionCount <= 0 {
		cfg.MinRepetitionCount = DefaultFilterConfig().MinRepetitionCount
	}
	if cfg.MaxRepetitionLength <= 0 {
		cfg.MaxRepetitionLength = DefaultFilterConfig().MaxRepetitionLength
	}
	if cfg.MaxAizuchiLength <= 0 {
		cfg.MaxAizuchiLength = DefaultFilterConfig().MaxAizuchiLength
	}
	return &TranscriptFilter{cfg: cfg}
}

// Filter screens text. It returns the cleaned text, whether anything
// was filtered, and the reason. A repeated phrase is reduced to one
// occurrence rather than dropped outright.
func (f *TranscriptFilter) Filter(text string) (string, bool, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text, false, ""
	}

	if f.cfg.HallucinationEnabled {
		for _, p := range hallucinationPatterns {
			if p.MatchString(trimmed) {
				f.count(func(s *FilterStats) { s.PatternFiltered++ })
				return "", true, FilterReasonPattern
			}
		}
		if repeated, phrase := f.detectRepetition(trimmed); repeated {
			f.count(func(s *FilterStats) { s.RepetitionFiltered++ })
			return strings.TrimSpace(phrase), true, FilterReasonRepetition
		}
	}

	if f.cfg.AizuchiEnabled && f.isAizuchi(trimmed) {
		f.count(func(s *FilterStats) { s.AizuchiFiltered++ })
		return "", true, FilterReasonAizuchi
	}

	return text, false, ""
}

// Stats returns a snapshot of the filter counters.
func (f *TranscriptFilter) Stats() FilterStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *TranscriptFilter) count(fn func(*FilterStats)) {
	f.mu.Lock()
	fn(&f.stats)
	f.stats.TotalFiltered++
	f.mu.Unlock()
}

// detectRepetition flags text dominated by one repeated word or
// phrase, e.g. "しょうがない しょうがない しょうがない".
func (f *TranscriptFilter) detectRepetition(text string) (bool, string) {
	runes := []rune(text)
	if len(runes) < 6 {
		return false, ""
	}

	words := strings.Fields(text)
	if len(words) >= f.cfg.MinRepetitionCount {
		same := true
		for _, w := range words[1:] {
			if w != words[0] {
				same = false
				break
			}
		}
		if same {
			return true, words[0]
		}
	}

	// Leading-substring repetition covering most of the text.
	maxLen := f.cfg.MaxRepetitionLength
	if maxLen > len(runes)/2 {
		maxLen = len(runes) / 2
	}
	for phraseLen := 2; phraseLen <= maxLen; phraseLen++ {
		phrase := string(runes[:phraseLen])
		repetitions := strings.Count(text, phrase)
		if repetitions >= f.cfg.MinRepetitionCount {
			covered := len(phrase) * repetitions
			if float64(covered)/float64(len(text)) >= 0.8 {
				return true, phrase
			}
		}
	}
	return false, ""
}

func (f *TranscriptFilter) isAizuchi(text string) bool {
	if len([]rune(text)) > f.cfg.MaxAizuchiLength {
		return false
	}
	for _, p := range aizuchiPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
