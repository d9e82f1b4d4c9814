// Package suggest builds generation prompts from conversation signals
// and calls the configured text-generation API. It speaks two wire
// dialects: the Gemini generateContent shape and the OpenAI-compatible
// chat shape, selected by the endpoint host.
package suggest

import (
	"fmt"
	"strings"

	"github.com/echo-ai/coach-gateway/pkg/engine"
)

// Context carries everything the prompt needs for one generation
// attempt.
type Context struct {
	Language           string
	SilenceFrequency   float64
	SilenceSeconds     *float64
	TopicRepetition    float64
	SentimentTrend     float64
	EngagementScore    float64
	ConversationHealth float64
	DominantSpeaker    string
	RecentTopics       []string
	CurrentTopics      []string
	ConfidenceScore    float64

	// Transcript is every turn in the snapshot as "speaker: text"
	// lines; LastLines is the final three.
	Transcript string
	LastLines  string
}

// BuildContext assembles the prompt context for one tick from the
// snapshot, its analysis, and the pre-tick session state.
func BuildContext(snap engine.Snapshot, a engine.Analysis, prior engine.State) Context {
	lines := make([]string, 0, len(snap.LastTurns))
	for _, turn := range snap.LastTurns {
		speaker := turn.Speaker
		if speaker == "" {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+turn.Text)
	}

	last := lines
	if len(last) > 3 {
		last = last[len(last)-3:]
	}

	return Context{
		Language:           a.DetectedLanguage,
		SilenceFrequency:   a.SilenceFrequency,
		SilenceSeconds:     a.SilenceSeconds,
		TopicRepetition:    a.TopicRepetition,
		SentimentTrend:     a.SentimentTrend,
		EngagementScore:    a.EngagementScore,
		ConversationHealth: a.ConversationHealth,
		DominantSpeaker:    a.DominantSpeaker,
		RecentTopics:       prior.RecentTopics,
		CurrentTopics:      a.Topics,
		ConfidenceScore:    a.ConfidenceScore,
		Transcript:         strings.Join(lines, "\n"),
		LastLines:          strings.Join(last, "\n"),
	}
}

const promptTemplate = `You are a friendly conversation coach.
Generate ONE short conversational suggestion to reduce awkwardness and keep the conversation fun.

Guidelines:
- Max 120 words
- Spoken, friendly, non-judgmental tone
- Match the detected language style
- Avoid repeating recent topics
- Prefer a light callback to past topics when helpful
- Avoid sensitive or personal advice
- Avoid commands or moral judgments

Signals:
language: %s
silence_frequency: %.2f
silence_seconds: %s
topic_repetition: %.2f
sentiment_trend: %.2f
engagement_score: %.2f
conversation_health: %.2f
dominant_speaker: %s
recent_topics: %s
current_topics: %s
confidence_score: %.2f

Recent lines:
%s

Transcript:
%s
`

// Prompt renders the context into the single user prompt sent to the
// generation API.
func (c Context) Prompt() string {
	silence := "none"
	if c.SilenceSeconds != nil {
		silence = fmt.Sprintf("%.1f", *c.SilenceSeconds)
	}
	return fmt.Sprintf(promptTemplate,
		c.Language,
		c.SilenceFrequency,
		silence,
		c.TopicRepetition,
		c.SentimentTrend,
		c.EngagementScore,
		c.ConversationHealth,
		c.DominantSpeaker,
		strings.Join(c.RecentTopics, ", "),
		strings.Join(c.CurrentTopics, ", "),
		c.ConfidenceScore,
		c.LastLines,
		c.Transcript,
	)
}
