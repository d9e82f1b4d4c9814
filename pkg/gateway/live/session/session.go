// Package session drives one coaching websocket connection: a
// sequential tick loop that decodes pause notifications, runs the
// analysis and gate logic, and emits at most one suggestion per tick.
// One connection is one session; ticks never run concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echo-ai/coach-gateway/pkg/engine"
	"github.com/echo-ai/coach-gateway/pkg/gateway/live/protocol"
	"github.com/echo-ai/coach-gateway/pkg/safety"
	"github.com/echo-ai/coach-gateway/pkg/store"
	"github.com/echo-ai/coach-gateway/pkg/suggest"
	"github.com/echo-ai/coach-gateway/pkg/voice/tts"
)

// Generator produces one suggestion for a prompt context. Implemented
// by *suggest.Client.
type Generator interface {
	Generate(ctx context.Context, pc suggest.Context) (string, error)
}

// Synthesizer renders a suggestion to audio. Implemented by
// *tts.Client; nil disables the synthesis path.
type Synthesizer interface {
	Configured() bool
	Synthesize(ctx context.Context, text, language string) tts.Result
}

// Config holds the per-session tunables.
type Config struct {
	MaxJSONMessageBytes int64
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	PingInterval        time.Duration
	MaxSessionDuration  time.Duration

	// GenerationTimeout bounds one generation attempt. Single attempt,
	// no retry.
	GenerationTimeout time.Duration

	// SynthesisTimeout bounds one synthesis attempt. A hung synthesis
	// backend must not stall the tick loop.
	SynthesisTimeout time.Duration

	Gate   engine.GateConfig
	Policy engine.PolicyConfig
}

// Dependencies wires one CoachSession.
type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	Store     store.Store
	Generator Generator

	// Synthesizer is optional; nil or unconfigured skips synthesis.
	Synthesizer Synthesizer

	SessionID string
	RequestID string
	Config    Config
	Now       func() time.Time
}

// CoachSession is the per-connection loop state.
type CoachSession struct {
	conn        *websocket.Conn
	logger      *slog.Logger
	store       store.Store
	generator   Generator
	synthesizer Synthesizer
	sessionID   string
	requestID   string
	cfg         Config
	now         func() time.Time

	// writeMu serializes websocket writes; Notify may run on the
	// shutdown goroutine while the loop is mid-tick.
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// New validates dependencies and applies config defaults.
func New(deps Dependencies) (*CoachSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.PingInterval <= 0 {
		deps.Config.PingInterval = 20 * time.Second
	}
	if deps.Config.WriteTimeout <= 0 {
		deps.Config.WriteTimeout = 10 * time.Second
	}
	if deps.Config.GenerationTimeout <= 0 {
		deps.Config.GenerationTimeout = suggest.DefaultTimeout
	}
	if deps.Config.SynthesisTimeout <= 0 {
		deps.Config.SynthesisTimeout = tts.DefaultTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CoachSession{
		conn:        deps.Conn,
		logger:      deps.Logger.With("session_id", deps.SessionID, "request_id", deps.RequestID),
		store:       deps.Store,
		generator:   deps.Generator,
		synthesizer: deps.Synthesizer,
		sessionID:   deps.SessionID,
		requestID:   deps.RequestID,
		cfg:         deps.Config,
		now:         deps.Now,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Cancel aborts the session loop. Safe to call from any goroutine;
// used by the shutdown path.
func (s *CoachSession) Cancel() {
	s.cancel()
}

// Notify sends a best-effort error frame to the client. Safe to call
// from any goroutine; used by the shutdown path to announce draining.
func (s *CoachSession) Notify(code, message string) error {
	return s.sendJSON(protocol.ServerError{
		Type:    protocol.TypeError,
		Code:    code,
		Message: message,
	})
}

// Run processes inbound frames until the connection closes, the
// session context is canceled, or the max session duration elapses.
// All websocket writes happen on this goroutine.
func (s *CoachSession) Run() error {
	defer s.cancel()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 16)
	go s.readLoop(readCh)

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	var deadlineCh <-chan time.Time
	if s.cfg.MaxSessionDuration > 0 {
		deadline := time.NewTimer(s.cfg.MaxSessionDuration)
		defer deadline.Stop()
		deadlineCh = deadline.C
	}

	s.logger.Info("coach session started")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("coach session canceled")
			return nil

		case <-deadlineCh:
			s.logger.Info("coach session reached max duration")
			_ = s.sendJSON(protocol.ServerError{
				Type:    protocol.TypeError,
				Code:    "session_timeout",
				Message: "Session duration limit reached",
			})
			return nil

		case <-ping.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}

		case frame, ok := <-readCh:
			if !ok {
				return nil
			}
			if frame.err != nil {
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					s.logger.Info("coach session closed by client")
					return nil
				}
				return fmt.Errorf("read frame: %w", frame.err)
			}
			if frame.messageType != websocket.TextMessage {
				continue
			}
			if err := s.handleTick(frame.data); err != nil {
				return err
			}
		}
	}
}

// handleTick runs one full unit of work. A non-nil return means the
// connection is unusable and the loop must exit; protocol and
// collaborator failures are absorbed here.
//
// State is written exactly once per accepted tick, at the end. If the
// session is canceled mid-tick the write is skipped entirely, so a
// torn-down connection never leaves half a tick behind.
func (s *CoachSession) handleTick(data []byte) error {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		s.logger.Warn("rejected inbound frame", "error", err)
		return s.sendJSON(protocol.NewError(err))
	}

	now := s.now().Unix()

	prior, err := s.store.Get(s.ctx, s.sessionID)
	if err != nil {
		s.logger.Error("session state read failed", "error", err)
		return s.sendJSON(protocol.ServerError{
			Type:    protocol.TypeError,
			Code:    "internal",
			Message: "Server error",
		})
	}

	analysis := engine.Analyze(msg.Snapshot, prior, now)
	decision, delta := engine.EvaluateGate(prior, analysis, now, s.cfg.Gate)
	delta.Combine(analysis.Delta())

	if !decision.Open {
		s.logger.Debug("suggestion suppressed", "reason", decision.Reason)
		return s.persist(delta)
	}

	genCtx, cancelGen := context.WithTimeout(s.ctx, s.cfg.GenerationTimeout)
	text, err := s.generator.Generate(genCtx, suggest.BuildContext(msg.Snapshot, analysis, prior))
	cancelGen()
	if err != nil {
		if s.ctx.Err() != nil {
			// Transport went away mid-call; abandon the tick with no
			// state write.
			return nil
		}
		s.logger.Warn("generation failed", "error", err)
		text = ""
	}

	filtered := safety.Filter(text, s.logger)
	outcome := engine.ApplyPolicy(prior, filtered, now, s.cfg.Policy)
	delta.Combine(outcome.Delta)

	if outcome.Emit {
		frame := protocol.NewSuggestion(outcome.Text, analysis.DetectedLanguage)
		if !outcome.Fallback && s.synthesizer != nil && s.synthesizer.Configured() {
			synthCtx, cancelSynth := context.WithTimeout(s.ctx, s.cfg.SynthesisTimeout)
			audio := s.synthesizer.Synthesize(synthCtx, outcome.Text, analysis.DetectedLanguage)
			cancelSynth()
			frame.AudioURL = audio.AudioURL
			frame.AudioStream = audio.AudioStream
		}
		if err := s.sendJSON(frame); err != nil {
			// The suggestion never reached the client; drop the tick
			// without stamping timers.
			return err
		}
		s.logger.Info("sent voice suggestion", "fallback", outcome.Fallback)
	}

	return s.persist(delta)
}

func (s *CoachSession) persist(delta engine.Delta) error {
	if s.ctx.Err() != nil {
		return nil
	}
	if err := s.store.Update(s.ctx, s.sessionID, delta); err != nil {
		s.logger.Error("session state write failed", "error", err)
	}
	return nil
}

func (s *CoachSession) sendJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := s.conn.WriteJSON(v); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *CoachSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}
