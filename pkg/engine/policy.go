package engine

// SuggestionHistorySize is how many past suggestion texts are kept for
// deduplication.
const SuggestionHistorySize = 3

// DefaultFallbackText is spoken when generation fails or repeats itself.
const DefaultFallbackText = "Sorry, I don't have a good suggestion right now. Keep the conversation going!"

// PolicyConfig holds the dedup/apology knobs.
type PolicyConfig struct {
	// ApologyCooldownSeconds is the minimum gap between two fallback
	// utterances.
	ApologyCooldownSeconds int64

	// FallbackText overrides DefaultFallbackText when non-empty.
	FallbackText string
}

// Outcome is the result of applying the dedup & apology policy to one
// filtered suggestion. At most one of (suggestion, fallback) is emitted
// per tick; Emit false means stay silent.
type Outcome struct {
	Emit     bool
	Text     string
	Fallback bool
	Delta    Delta
}

// ApplyPolicy decides what, if anything, to emit for a filtered
// generation result.
//
//   - Empty text is a soft failure: emit the fallback, but only if the
//     apology cooldown has elapsed.
//   - Text matching any of the recent suggestions is a duplicate: same
//     fallback path, and the duplicate is not appended to history.
//   - Anything else is emitted, appended to history (oldest dropped),
//     and stamps the suggestion timestamp.
func ApplyPolicy(prior State, filtered string, now int64, cfg PolicyConfig) Outcome {
	if filtered == "" {
		return apologize(prior, now, cfg)
	}

	for _, prev := range prior.RecentSuggestions {
		if prev == filtered {
			return apologize(prior, now, cfg)
		}
	}

	history := append(append([]string{}, prior.RecentSuggestions...), filtered)
	if len(history) > SuggestionHistorySize {
		history = history[len(history)-SuggestionHistorySize:]
	}

	return Outcome{
		Emit: true,
		Text: filtered,
		Delta: Delta{
			RecentSuggestions: history,
			LastSuggestionTS:  int64Ptr(now),
		},
	}
}

func apologize(prior State, now int64, cfg PolicyConfig) Outcome {
	if now-prior.LastApologyTS < cfg.ApologyCooldownSeconds {
		return Outcome{}
	}
	text := cfg.FallbackText
	if text == "" {
		text = DefaultFallbackText
	}
	return Outcome{
		Emit:     true,
		Text:     text,
		Fallback: true,
		Delta:    Delta{LastApologyTS: int64Ptr(now)},
	}
}
