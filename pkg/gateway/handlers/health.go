package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/echo-ai/coach-gateway/pkg/gateway/config"
	"github.com/echo-ai/coach-gateway/pkg/gateway/lifecycle"
	"github.com/echo-ai/coach-gateway/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the gateway should receive new coaching
// sessions. A draining gateway stays healthy but not ready.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		AuthMode       string   `json:"auth_mode"`
		Draining       bool     `json:"draining"`
		ActiveSessions int      `json:"active_sessions"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.SessionTTL <= 0 {
		issues = append(issues, "session ttl must be > 0")
	}
	if h.Config.LLMTimeout <= 0 || h.Config.TTSTimeout <= 0 {
		issues = append(issues, "generation timeouts must be > 0")
	}
	if h.Config.WSMaxSessionDuration <= 0 {
		issues = append(issues, "ws max session duration must be > 0")
	}
	if h.Config.WSMaxSessionsPerPrincipal <= 0 {
		issues = append(issues, "ws max sessions per principal must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ShutdownGracePeriod <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	draining := h.Lifecycle != nil && h.Lifecycle.IsDraining()

	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:             ok,
		AuthMode:       string(h.Config.AuthMode),
		Draining:       draining,
		ActiveSessions: h.Sessions.Count(),
		Issues:         issues,
	})
}
