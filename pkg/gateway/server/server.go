// Package server assembles the HTTP surface: routes, middleware, and
// the shared collaborators behind the websocket endpoint.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/echo-ai/coach-gateway/pkg/gateway/config"
	"github.com/echo-ai/coach-gateway/pkg/gateway/handlers"
	"github.com/echo-ai/coach-gateway/pkg/gateway/lifecycle"
	"github.com/echo-ai/coach-gateway/pkg/gateway/live/sessions"
	"github.com/echo-ai/coach-gateway/pkg/gateway/mw"
	"github.com/echo-ai/coach-gateway/pkg/gateway/ratelimit"
	"github.com/echo-ai/coach-gateway/pkg/store"
	"github.com/echo-ai/coach-gateway/pkg/suggest"
	"github.com/echo-ai/coach-gateway/pkg/voice/tts"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store       store.Store
	generator   *suggest.Client
	synthesizer *tts.Client
	limiter     *ratelimit.Limiter
	lifecycle   *lifecycle.Lifecycle
	sessions    *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger, st store.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if st == nil {
		st = store.NewMemory(cfg.SessionTTL)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		store:  st,
		generator: suggest.NewClient(suggest.Config{
			APIURL:     cfg.LLMAPIURL,
			APIKey:     cfg.LLMAPIKey,
			Model:      cfg.LLMModel,
			Timeout:    cfg.LLMTimeout,
			HTTPClient: httpClient,
		}),
		synthesizer: tts.NewClient(tts.Config{
			APIURL:     cfg.TTSAPIURL,
			APIKey:     cfg.TTSAPIKey,
			VoiceID:    cfg.TTSVoiceID,
			Timeout:    cfg.TTSTimeout,
			HTTPClient: httpClient,
		}),
		limiter: ratelimit.New(ratelimit.Config{
			SessionOpensPerSecond: cfg.SessionOpensPerSecond,
			SessionOpenBurst:      cfg.SessionOpenBurst,
			MaxConcurrentSessions: cfg.WSMaxSessionsPerPrincipal,
		}),
		lifecycle: &lifecycle.Lifecycle{},
		sessions:  sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
	})
	s.mux.Handle("/ws", handlers.CoachHandler{
		Config:      s.cfg,
		Logger:      s.logger,
		Store:       s.store,
		Generator:   s.generator,
		Synthesizer: s.synthesizer,
		Limiter:     s.limiter,
		Lifecycle:   s.lifecycle,
		Sessions:    s.sessions,
	})
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips the gateway into drain mode: /readyz goes not
// ready and new /ws upgrades are refused.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// NotifySessionsDraining tells every live session the gateway is going
// away so clients can reconnect elsewhere.
func (s *Server) NotifySessionsDraining() int {
	return s.sessions.NotifyAll("draining", "Server is shutting down")
}

// WaitSessions blocks until all sessions finish or ctx expires.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

// CancelSessions force-aborts any sessions still running.
func (s *Server) CancelSessions() int {
	return s.sessions.CancelAll()
}
