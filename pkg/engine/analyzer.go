// Package engine implements the per-session conversation analysis and
// the suggestion trigger decision logic. Everything in this package is
// pure: deterministic functions of (snapshot, prior state, now) with no
// I/O, so the gate semantics are unit-testable in isolation.
package engine

import (
	"regexp"
	"sort"
	"strings"
)

const (
	// pauseWindowSeconds bounds the silence-frequency history.
	pauseWindowSeconds = 600

	// silenceFrequencyDivisor normalizes the pause count into [0, 1].
	silenceFrequencyDivisor = 10

	// topicRepetitionDivisor normalizes the overlap count into [0, 1].
	topicRepetitionDivisor = 3

	// sentimentDivisor normalizes the lexicon hit count into [-1, 1].
	sentimentDivisor = 5

	// maxTopics is how many keywords an analysis keeps.
	maxTopics = 5

	// millisThreshold: lastSpokenAt values above this are taken to be
	// epoch milliseconds rather than seconds. Documented heuristic
	// carried over from the upstream clients, which disagree on units.
	millisThreshold = 1e11
)

// UnknownSpeaker is reported when the snapshot has no attributable turns.
const UnknownSpeaker = "unknown"

// Turn is one conversation turn in a snapshot.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Snapshot is the read-only inbound view of recent conversation.
type Snapshot struct {
	LastTurns        []Turn   `json:"lastTurns"`
	DetectedLanguage string   `json:"detectedLanguage"`
	ConfidenceScore  *float64 `json:"confidenceScore,omitempty"`
	LastSpokenAt     *float64 `json:"lastSpokenAt,omitempty"`
}

// Analysis is the derived signal set for one tick. All scores are in
// [0, 1] except SentimentTrend in [-1, 1]; SilenceSeconds is nil when
// the snapshot carried no lastSpokenAt.
type Analysis struct {
	SilenceFrequency   float64
	SilenceSeconds     *float64
	TopicRepetition    float64
	SentimentTrend     float64
	EngagementScore    float64
	ConversationHealth float64
	Topics             []string
	DominantSpeaker    string
	Sentiment          float64
	ConfidenceScore    float64
	HasConfidence      bool
	DetectedLanguage   string

	// pauseTimestamps is the pruned pause history including this tick;
	// it is carried into Delta for persistence.
	pauseTimestamps []int64
}

// Delta returns the state fragment this analysis persists: the pruned
// pause history, the current topics, and the current sentiment.
func (a Analysis) Delta() Delta {
	return Delta{
		PauseTimestamps: a.pauseTimestamps,
		RecentTopics:    a.Topics,
		LastSentiment:   float64Ptr(a.Sentiment),
	}
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z]{3,}`)

// Analyze derives all behavioral signals for one tick. now is epoch
// seconds sampled at tick start; prior is the session state before this
// tick (zero value for a fresh session).
func Analyze(snap Snapshot, prior State, now int64) Analysis {
	lang := strings.TrimSpace(snap.DetectedLanguage)
	if lang == "" {
		lang = "english"
	}

	var silenceSeconds *float64
	if snap.LastSpokenAt != nil {
		spokenAt := *snap.LastSpokenAt
		if spokenAt > millisThreshold {
			spokenAt /= 1000.0
		}
		silenceSeconds = float64Ptr(maxFloat(0, float64(now)-spokenAt))
	}

	pauses := prunePauses(prior.PauseTimestamps, now)
	pauses = append(pauses, now)
	silenceFrequency := minFloat(float64(len(pauses))/silenceFrequencyDivisor, 1)

	topics := extractTopics(snap.LastTurns)
	repetition := topicRepetition(topics, prior.RecentTopics)

	sentiment := sentimentScore(snap.LastTurns)
	trend := clamp(sentiment-prior.LastSentiment, -1, 1)

	engagement := clamp(0.6+sentiment*0.2-silenceFrequency*0.3-repetition*0.2, 0, 1)
	health := clamp(0.5+engagement*0.5-silenceFrequency*0.2, 0, 1)

	var confidence float64
	if snap.ConfidenceScore != nil {
		confidence = *snap.ConfidenceScore
	} else {
		confidence = clamp(0.7+sentiment*0.15+engagement*0.15-silenceFrequency*0.2, 0, 1)
	}

	return Analysis{
		SilenceFrequency:   silenceFrequency,
		SilenceSeconds:     silenceSeconds,
		TopicRepetition:    repetition,
		SentimentTrend:     trend,
		EngagementScore:    engagement,
		ConversationHealth: health,
		Topics:             topics,
		DominantSpeaker:    dominantSpeaker(snap.LastTurns),
		Sentiment:          sentiment,
		ConfidenceScore:    confidence,
		HasConfidence:      true,
		DetectedLanguage:   lang,
		pauseTimestamps:    pauses,
	}
}

func prunePauses(timestamps []int64, now int64) []int64 {
	kept := make([]int64, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if now-ts < pauseWindowSeconds {
			kept = append(kept, ts)
		}
	}
	return kept
}

// extractTopics tokenizes the joined turn text into lowercase alphabetic
// runs of length >= 3, drops stopwords, and returns the top keywords by
// descending frequency. Ties keep first-seen order (stable sort), so the
// result is deterministic across runs.
func extractTopics(turns []Turn) []string {
	var sb strings.Builder
	for i, turn := range turns {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(turn.Text)
	}

	freq := make(map[string]int)
	order := make([]string, 0, 16)
	for _, token := range tokenPattern.FindAllString(strings.ToLower(sb.String()), -1) {
		if _, skip := stopwords[token]; skip {
			continue
		}
		if _, seen := freq[token]; !seen {
			order = append(order, token)
		}
		freq[token]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > maxTopics {
		order = order[:maxTopics]
	}
	return order
}

func topicRepetition(current, prior []string) float64 {
	if len(current) == 0 || len(prior) == 0 {
		return 0
	}
	priorSet := make(map[string]struct{}, len(prior))
	for _, t := range prior {
		priorSet[t] = struct{}{}
	}
	repeated := 0
	for _, t := range current {
		if _, ok := priorSet[t]; ok {
			repeated++
		}
	}
	return minFloat(float64(repeated)/topicRepetitionDivisor, 1)
}

// sentimentScore counts positive-lexicon substring hits minus negative
// hits across the lowercased turn text, normalized and clamped.
func sentimentScore(turns []Turn) float64 {
	var sb strings.Builder
	for i, turn := range turns {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(turn.Text)
	}
	text := strings.ToLower(sb.String())
	if strings.TrimSpace(text) == "" {
		return 0
	}

	score := 0
	for _, w := range positiveWords {
		score += strings.Count(text, w)
	}
	for _, w := range negativeWords {
		score -= strings.Count(text, w)
	}
	return clamp(float64(score)/sentimentDivisor, -1, 1)
}

// dominantSpeaker returns the speaker with the most turns in the window.
// Ties go to the speaker who reached the maximum first in turn order.
func dominantSpeaker(turns []Turn) string {
	counts := make(map[string]int)
	order := make([]string, 0, 4)
	for _, turn := range turns {
		speaker := turn.Speaker
		if speaker == "" {
			continue
		}
		if _, seen := counts[speaker]; !seen {
			order = append(order, speaker)
		}
		counts[speaker]++
	}
	if len(order) == 0 {
		return UnknownSpeaker
	}

	best := order[0]
	for _, speaker := range order[1:] {
		if counts[speaker] > counts[best] {
			best = speaker
		}
	}
	return best
}

// clamp truncates v into [lo, hi]. A hard boundary, not a rescale.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
