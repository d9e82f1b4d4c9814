// Package config loads gateway configuration from COACH_-prefixed
// environment variables with strict validation at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Trigger gate and policy knobs. Seconds as plain integers to match
	// the wire-level timestamps they are compared against.
	SuggestionCooldownSeconds int
	SilenceTriggerSeconds     float64
	ConfidenceTriggerMin      float64
	MaxRequestsPerMinute      int
	ApologyCooldownSeconds    int
	FallbackText              string

	// Session store.
	SessionTTL time.Duration
	RedisURL   string // empty => in-memory store

	// Generation collaborator.
	LLMAPIURL  string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Synthesis collaborator (optional).
	TTSAPIURL  string
	TTSAPIKey  string
	TTSVoiceID string
	TTSTimeout time.Duration

	// WebSocket plumbing.
	WSMaxJSONMessageBytes     int64
	WSPingInterval            time.Duration
	WSWriteTimeout            time.Duration
	WSReadTimeout             time.Duration
	WSMaxSessionDuration      time.Duration
	WSMaxSessionsPerPrincipal int

	// Per-principal session-open churn (token bucket).
	SessionOpensPerSecond float64
	SessionOpenBurst      int

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                      envOr("COACH_ADDR", ":8080"),
		AuthMode:                  AuthMode(envOr("COACH_AUTH_MODE", string(AuthModeDisabled))),
		APIKeys:                   make(map[string]struct{}),
		TrustProxyHeaders:         envBoolOr("COACH_TRUST_PROXY_HEADERS", false),
		CORSAllowedOrigins:        make(map[string]struct{}),
		SuggestionCooldownSeconds: envIntOr("COACH_SUGGESTION_COOLDOWN", 10),
		SilenceTriggerSeconds:     envFloat64Or("COACH_SILENCE_TRIGGER_SECONDS", 3),
		ConfidenceTriggerMin:      envFloat64Or("COACH_CONFIDENCE_TRIGGER_MIN", 0.8),
		MaxRequestsPerMinute:      envIntOr("COACH_MAX_REQUESTS_PER_MINUTE", 3),
		ApologyCooldownSeconds:    envIntOr("COACH_APOLOGY_COOLDOWN", 30),
		FallbackText:              strings.TrimSpace(os.Getenv("COACH_FALLBACK_TEXT")),
		SessionTTL:                time.Duration(envIntOr("COACH_SESSION_TTL", 3600)) * time.Second,
		RedisURL:                  envOr("COACH_REDIS_URL", ""),
		LLMAPIURL:                 envOr("COACH_LLM_API_URL", ""),
		LLMAPIKey:                 envOr("COACH_LLM_API_KEY", ""),
		LLMModel:                  envOr("COACH_LLM_MODEL", "gemini-2.5-flash"),
		LLMTimeout:                envDurationOr("COACH_LLM_TIMEOUT", 8*time.Second),
		TTSAPIURL:                 envOr("COACH_TTS_API_URL", ""),
		TTSAPIKey:                 envOr("COACH_TTS_API_KEY", ""),
		TTSVoiceID:                envOr("COACH_TTS_VOICE_ID", "default"),
		TTSTimeout:                envDurationOr("COACH_TTS_TIMEOUT", 1200*time.Millisecond),
		WSMaxJSONMessageBytes:     envInt64Or("COACH_WS_MAX_JSON_MESSAGE_BYTES", 64*1024),
		WSPingInterval:            envDurationOr("COACH_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:            envDurationOr("COACH_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:             envDurationOr("COACH_WS_READ_TIMEOUT", 0),
		WSMaxSessionDuration:      envDurationOr("COACH_WS_MAX_DURATION", 2*time.Hour),
		WSMaxSessionsPerPrincipal: envIntOr("COACH_WS_MAX_SESSIONS_PER_PRINCIPAL", 2),
		SessionOpensPerSecond:     envFloat64Or("COACH_SESSION_OPENS_PER_SECOND", 2.0),
		SessionOpenBurst:          envIntOr("COACH_SESSION_OPEN_BURST", 4),
		ReadHeaderTimeout:         envDurationOr("COACH_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:       envDurationOr("COACH_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("COACH_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("COACH_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("COACH_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.SuggestionCooldownSeconds < 0 {
		return Config{}, fmt.Errorf("COACH_SUGGESTION_COOLDOWN must be >= 0")
	}
	if cfg.SilenceTriggerSeconds < 0 {
		return Config{}, fmt.Errorf("COACH_SILENCE_TRIGGER_SECONDS must be >= 0")
	}
	if cfg.ConfidenceTriggerMin < 0 || cfg.ConfidenceTriggerMin > 1 {
		return Config{}, fmt.Errorf("COACH_CONFIDENCE_TRIGGER_MIN must be in [0, 1]")
	}
	if cfg.MaxRequestsPerMinute < 0 {
		return Config{}, fmt.Errorf("COACH_MAX_REQUESTS_PER_MINUTE must be >= 0")
	}
	if cfg.ApologyCooldownSeconds < 0 {
		return Config{}, fmt.Errorf("COACH_APOLOGY_COOLDOWN must be >= 0")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("COACH_SESSION_TTL must be > 0")
	}
	if cfg.LLMTimeout <= 0 {
		return Config{}, fmt.Errorf("COACH_LLM_TIMEOUT must be > 0")
	}
	if cfg.TTSTimeout <= 0 {
		return Config{}, fmt.Errorf("COACH_TTS_TIMEOUT must be > 0")
	}
	if cfg.WSMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("COACH_WS_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("COACH_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("COACH_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("COACH_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("COACH_WS_MAX_DURATION must be > 0")
	}
	if cfg.WSMaxSessionsPerPrincipal <= 0 {
		return Config{}, fmt.Errorf("COACH_WS_MAX_SESSIONS_PER_PRINCIPAL must be > 0")
	}
	if cfg.SessionOpensPerSecond < 0 {
		return Config{}, fmt.Errorf("COACH_SESSION_OPENS_PER_SECOND must be >= 0")
	}
	if cfg.SessionOpenBurst < 0 {
		return Config{}, fmt.Errorf("COACH_SESSION_OPEN_BURST must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("COACH_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("COACH_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("COACH_API_KEYS must be set when COACH_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
