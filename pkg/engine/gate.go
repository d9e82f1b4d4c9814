package engine

// Gate suppression reasons, reported in the Decision for logging.
const (
	ReasonRateLimited = "rate_limited"
	ReasonCooldown    = "cooldown"
	ReasonNotRelevant = "not_relevant"
	ReasonOpen        = ""
)

// rateWindowSeconds is the width of the sliding rate-limit window.
const rateWindowSeconds = 60

// GateConfig holds the trigger thresholds. Zero values are not
// defaulted here; callers load them from configuration.
type GateConfig struct {
	// CooldownSeconds is the minimum gap between two emitted suggestions.
	CooldownSeconds int64

	// SilenceTriggerSeconds: silence at or above this opens the
	// relevance gate.
	SilenceTriggerSeconds float64

	// ConfidenceTriggerMin: confidence below this opens the relevance
	// gate.
	ConfidenceTriggerMin float64

	// MaxRequestsPerMinute caps generation attempts in the sliding
	// rate window.
	MaxRequestsPerMinute int
}

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Open   bool
	Reason string
}

// EvaluateGate runs the three suppression gates for one tick and returns
// the decision plus the state delta that must be persisted regardless of
// the outcome. The rate counter increments on every tick, open or
// closed; cooldown and relevance only read state.
//
// Gate order matters only for the reported reason; all three must be
// open for the tick to proceed to generation.
func EvaluateGate(prior State, a Analysis, now int64, cfg GateConfig) (Decision, Delta) {
	windowStart := prior.RequestWindowStart
	count := prior.RequestCount
	if windowStart == 0 || now-windowStart >= rateWindowSeconds {
		windowStart = now
		count = 1
	} else {
		count++
	}

	delta := Delta{
		RequestWindowStart: int64Ptr(windowStart),
		RequestCount:       intPtr(count),
	}

	if cfg.MaxRequestsPerMinute > 0 && count > cfg.MaxRequestsPerMinute {
		return Decision{Open: false, Reason: ReasonRateLimited}, delta
	}

	if prior.LastSuggestionTS > 0 && now-prior.LastSuggestionTS < cfg.CooldownSeconds {
		return Decision{Open: false, Reason: ReasonCooldown}, delta
	}

	if !relevant(a, cfg) {
		return Decision{Open: false, Reason: ReasonNotRelevant}, delta
	}

	return Decision{Open: true, Reason: ReasonOpen}, delta
}

// relevant decides whether the conversation needs help right now. With
// no silence signal and no confidence signal there is nothing to
// suppress on, so the gate stays open. Otherwise the gate closes when
// the conversation is neither silent enough nor low-confidence: a
// fluent, confident conversation should not be interrupted.
func relevant(a Analysis, cfg GateConfig) bool {
	hasSilence := a.SilenceSeconds != nil
	hasConfidence := a.HasConfidence
	if !hasSilence && !hasConfidence {
		return true
	}

	silentEnough := hasSilence && *a.SilenceSeconds >= cfg.SilenceTriggerSeconds
	lowConfidence := hasConfidence && a.ConfidenceScore < cfg.ConfidenceTriggerMin
	return silentEnough || lowConfidence
}
