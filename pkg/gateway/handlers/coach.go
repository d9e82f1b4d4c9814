package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/echo-ai/coach-gateway/pkg/engine"
	"github.com/echo-ai/coach-gateway/pkg/gateway/apierror"
	"github.com/echo-ai/coach-gateway/pkg/gateway/config"
	"github.com/echo-ai/coach-gateway/pkg/gateway/lifecycle"
	"github.com/echo-ai/coach-gateway/pkg/gateway/live/session"
	"github.com/echo-ai/coach-gateway/pkg/gateway/live/sessions"
	"github.com/echo-ai/coach-gateway/pkg/gateway/mw"
	"github.com/echo-ai/coach-gateway/pkg/gateway/principal"
	"github.com/echo-ai/coach-gateway/pkg/gateway/ratelimit"
	"github.com/echo-ai/coach-gateway/pkg/store"
)

// CoachHandler upgrades /ws requests and runs the coaching session
// loop until the client disconnects.
type CoachHandler struct {
	Config      config.Config
	Logger      *slog.Logger
	Store       store.Store
	Generator   session.Generator
	Synthesizer session.Synthesizer
	Limiter     *ratelimit.Limiter
	Lifecycle   *lifecycle.Lifecycle
	Sessions    *sessions.Tracker
}

func (h CoachHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		apierror.Write(w, http.StatusMethodNotAllowed, &apierror.Error{
			Type:      apierror.ErrInvalidRequest,
			Message:   "method not allowed",
			Code:      "method_not_allowed",
			RequestID: reqID,
		})
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		apierror.Write(w, http.StatusServiceUnavailable, &apierror.Error{
			Type:      apierror.ErrAPI,
			Message:   "gateway is draining",
			Code:      "draining",
			RequestID: reqID,
		})
		return
	}
	if !h.originAllowed(r) {
		apierror.Write(w, http.StatusForbidden, &apierror.Error{
			Type:      apierror.ErrInvalidRequest,
			Message:   "origin is not allowed",
			Param:     "Origin",
			RequestID: reqID,
		})
		return
	}

	// Session admission happens before the upgrade so rejected clients
	// get a plain HTTP status instead of a half-open socket.
	var permit *ratelimit.Permit
	if h.Limiter != nil {
		p := principal.Resolve(r, h.Config)
		dec := h.Limiter.AcquireSession(p.Key, time.Now())
		if !dec.Allowed {
			retryAfter := dec.RetryAfter
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
			apierror.Write(w, http.StatusTooManyRequests, &apierror.Error{
				Type:      apierror.ErrRateLimit,
				Message:   "too many active coaching sessions",
				RequestID: reqID,
				RetryAfter: func() *int {
					if retryAfter <= 0 {
						return nil
					}
					return &retryAfter
				}(),
			})
			return
		}
		permit = dec.Permit
		defer permit.Release()
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = "cs_" + uuid.NewString()
	}

	// Origin was already checked; the default gorilla check would
	// reject same-host-only.
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s, err := session.New(session.Dependencies{
		Conn:        conn,
		Logger:      h.Logger,
		Store:       h.Store,
		Generator:   h.Generator,
		Synthesizer: h.Synthesizer,
		SessionID:   sessionID,
		RequestID:   reqID,
		Config: session.Config{
			MaxJSONMessageBytes: h.Config.WSMaxJSONMessageBytes,
			ReadTimeout:         h.Config.WSReadTimeout,
			WriteTimeout:        h.Config.WSWriteTimeout,
			PingInterval:        h.Config.WSPingInterval,
			MaxSessionDuration:  h.Config.WSMaxSessionDuration,
			GenerationTimeout:   h.Config.LLMTimeout,
			SynthesisTimeout:    h.Config.TTSTimeout,
			Gate: engine.GateConfig{
				CooldownSeconds:       int64(h.Config.SuggestionCooldownSeconds),
				SilenceTriggerSeconds: h.Config.SilenceTriggerSeconds,
				ConfidenceTriggerMin:  h.Config.ConfidenceTriggerMin,
				MaxRequestsPerMinute:  h.Config.MaxRequestsPerMinute,
			},
			Policy: engine.PolicyConfig{
				ApologyCooldownSeconds: int64(h.Config.ApologyCooldownSeconds),
				FallbackText:           h.Config.FallbackText,
			},
		},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("failed to initialize coaching session", "session_id", sessionID, "request_id", reqID, "error", err)
		}
		return
	}

	unregister := func() {}
	if h.Sessions != nil {
		unregister = h.Sessions.Register(sessionID, sessions.Handle{
			Cancel: s.Cancel,
			Notify: s.Notify,
		})
	}
	defer unregister()

	if err := s.Run(); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("coaching session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
		}
	}
}

func (h CoachHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}
