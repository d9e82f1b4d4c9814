package engine

// State is the per-session mutable state blob. One instance exists per
// session identifier; it is read and written only through a store's
// read-modify-write cycle, never concurrently for the same session.
type State struct {
	// PauseTimestamps holds the epoch seconds of recent ticks, pruned to
	// the pause window on every analysis pass.
	PauseTimestamps []int64 `json:"pause_timestamps,omitempty"`

	// RecentTopics are the top keywords from the previous analysis,
	// ordered most frequent first.
	RecentTopics []string `json:"recent_topics,omitempty"`

	// LastSentiment is the last computed polarity in [-1, 1].
	LastSentiment float64 `json:"last_sentiment,omitempty"`

	// LastSuggestionTS and LastApologyTS are epoch seconds, 0 if never set.
	LastSuggestionTS int64 `json:"last_suggestion_ts,omitempty"`
	LastApologyTS    int64 `json:"last_apology_ts,omitempty"`

	// RecentSuggestions holds the last emitted suggestion texts, oldest
	// first, capped at SuggestionHistorySize.
	RecentSuggestions []string `json:"recent_suggestions,omitempty"`

	// RequestWindowStart and RequestCount implement the sliding
	// rate-limit window.
	RequestWindowStart int64 `json:"request_window_start,omitempty"`
	RequestCount       int   `json:"request_count,omitempty"`
}

// Delta is a partial State update. Nil fields are "unset" and never
// overwrite the stored value; this is what distinguishes "absent" from
// "explicitly cleared" (which this system never does).
type Delta struct {
	PauseTimestamps    []int64
	RecentTopics       []string
	LastSentiment      *float64
	LastSuggestionTS   *int64
	LastApologyTS      *int64
	RecentSuggestions  []string
	RequestWindowStart *int64
	RequestCount       *int
}

// Merge applies the non-nil fields of d onto s.
func (s *State) Merge(d Delta) {
	if d.PauseTimestamps != nil {
		s.PauseTimestamps = d.PauseTimestamps
	}
	if d.RecentTopics != nil {
		s.RecentTopics = d.RecentTopics
	}
	if d.LastSentiment != nil {
		s.LastSentiment = *d.LastSentiment
	}
	if d.LastSuggestionTS != nil {
		s.LastSuggestionTS = *d.LastSuggestionTS
	}
	if d.LastApologyTS != nil {
		s.LastApologyTS = *d.LastApologyTS
	}
	if d.RecentSuggestions != nil {
		s.RecentSuggestions = d.RecentSuggestions
	}
	if d.RequestWindowStart != nil {
		s.RequestWindowStart = *d.RequestWindowStart
	}
	if d.RequestCount != nil {
		s.RequestCount = *d.RequestCount
	}
}

// Combine folds other into d, with other's non-nil fields winning.
func (d *Delta) Combine(other Delta) {
	if other.PauseTimestamps != nil {
		d.PauseTimestamps = other.PauseTimestamps
	}
	if other.RecentTopics != nil {
		d.RecentTopics = other.RecentTopics
	}
	if other.LastSentiment != nil {
		d.LastSentiment = other.LastSentiment
	}
	if other.LastSuggestionTS != nil {
		d.LastSuggestionTS = other.LastSuggestionTS
	}
	if other.LastApologyTS != nil {
		d.LastApologyTS = other.LastApologyTS
	}
	if other.RecentSuggestions != nil {
		d.RecentSuggestions = other.RecentSuggestions
	}
	if other.RequestWindowStart != nil {
		d.RequestWindowStart = other.RequestWindowStart
	}
	if other.RequestCount != nil {
		d.RequestCount = other.RequestCount
	}
}

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }
func intPtr(v int) *int             { return &v }
