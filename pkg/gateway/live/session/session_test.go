package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echo-ai/coach-gateway/pkg/engine"
	"github.com/echo-ai/coach-gateway/pkg/store"
	"github.com/echo-ai/coach-gateway/pkg/suggest"
	"github.com/echo-ai/coach-gateway/pkg/voice/tts"
)

type fakeGenerator struct {
	text  string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, _ suggest.Context) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeSynthesizer struct {
	result tts.Result
}

func (f *fakeSynthesizer) Configured() bool { return true }

func (f *fakeSynthesizer) Synthesize(_ context.Context, _, _ string) tts.Result {
	return f.result
}

func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		accepted <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	server = <-accepted
	t.Cleanup(func() { server.Close() })
	return server, client
}

func testConfig() Config {
	return Config{
		Gate: engine.GateConfig{
			CooldownSeconds:       10,
			SilenceTriggerSeconds: 3,
			ConfidenceTriggerMin:  0.8,
			MaxRequestsPerMinute:  3,
		},
		Policy: engine.PolicyConfig{ApologyCooldownSeconds: 30},
	}
}

func newTestSession(t *testing.T, conn *websocket.Conn, gen Generator, synth Synthesizer, mem *store.Memory, now int64) *CoachSession {
	t.Helper()
	s, err := New(Dependencies{
		Conn:        conn,
		Store:       mem,
		Generator:   gen,
		Synthesizer: synth,
		SessionID:   "s1",
		Config:      testConfig(),
		Now:         func() time.Time { return time.Unix(now, 0) },
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Cancel)
	return s
}

// pauseFrame is a tick whose silence opens every gate.
func pauseFrame(now int64) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "pause_detected",
		"conversation_snapshot": {
			"lastTurns": [{"speaker": "A", "text": "great day"}],
			"detectedLanguage": "english",
			"lastSpokenAt": %d
		}
	}`, now-5))
}

func readFrame(t *testing.T, client *websocket.Conn) map[string]any {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	if err := client.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func expectNoFrame(t *testing.T, client *websocket.Conn) {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var frame map[string]any
	if err := client.ReadJSON(&frame); err == nil {
		t.Fatalf("unexpected frame: %v", frame)
	}
}

func TestHandleTick_SendsSuggestionAndPersists(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	gen := &fakeGenerator{text: "ask about the trip"}
	s := newTestSession(t, server, gen, nil, mem, 1000)

	if err := s.handleTick(pauseFrame(1000)); err != nil {
		t.Fatalf("tick: %v", err)
	}

	frame := readFrame(t, client)
	if frame["type"] != "voice_suggestion" || frame["suggestion_text"] != "ask about the trip" {
		t.Fatalf("frame = %v", frame)
	}
	if frame["language"] != "english" {
		t.Fatalf("language = %v", frame["language"])
	}

	st, _ := mem.Get(context.Background(), "s1")
	if st.LastSuggestionTS != 1000 {
		t.Fatalf("suggestion ts = %d", st.LastSuggestionTS)
	}
	if len(st.RecentSuggestions) != 1 || st.RecentSuggestions[0] != "ask about the trip" {
		t.Fatalf("history = %v", st.RecentSuggestions)
	}
	if st.RequestCount != 1 || st.RequestWindowStart != 1000 {
		t.Fatalf("rate window = (%d, %d)", st.RequestWindowStart, st.RequestCount)
	}
	if len(st.PauseTimestamps) != 1 || st.PauseTimestamps[0] != 1000 {
		t.Fatalf("pauses = %v", st.PauseTimestamps)
	}
}

func TestHandleTick_ProtocolErrorLeavesStateUntouched(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	gen := &fakeGenerator{text: "unused"}
	s := newTestSession(t, server, gen, nil, mem, 1000)

	if err := s.handleTick([]byte(`{not json`)); err != nil {
		t.Fatalf("tick: %v", err)
	}

	frame := readFrame(t, client)
	if frame["type"] != "error" {
		t.Fatalf("frame = %v", frame)
	}
	if gen.calls != 0 {
		t.Fatalf("generator called on protocol error")
	}

	st, _ := mem.Get(context.Background(), "s1")
	if st.RequestCount != 0 || len(st.PauseTimestamps) != 0 {
		t.Fatalf("state mutated: %+v", st)
	}
}

func TestHandleTick_CooldownSuppressesButPersistsCounters(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	ts := int64(995)
	mem.Update(context.Background(), "s1", engine.Delta{LastSuggestionTS: &ts})

	gen := &fakeGenerator{text: "unused"}
	s := newTestSession(t, server, gen, nil, mem, 1000)

	if err := s.handleTick(pauseFrame(1000)); err != nil {
		t.Fatalf("tick: %v", err)
	}

	expectNoFrame(t, client)
	if gen.calls != 0 {
		t.Fatalf("generator called during cooldown")
	}

	st, _ := mem.Get(context.Background(), "s1")
	if st.RequestCount != 1 || st.RequestWindowStart != 1000 {
		t.Fatalf("counters not persisted: %+v", st)
	}
	if len(st.PauseTimestamps) != 1 {
		t.Fatalf("pause history not persisted: %v", st.PauseTimestamps)
	}
}

func TestHandleTick_GenerationFailureFallsBack(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	gen := &fakeGenerator{err: fmt.Errorf("upstream down")}
	s := newTestSession(t, server, gen, nil, mem, 1000)

	if err := s.handleTick(pauseFrame(1000)); err != nil {
		t.Fatalf("tick: %v", err)
	}

	frame := readFrame(t, client)
	if frame["type"] != "voice_suggestion" || frame["suggestion_text"] != engine.DefaultFallbackText {
		t.Fatalf("frame = %v", frame)
	}

	st, _ := mem.Get(context.Background(), "s1")
	if st.LastApologyTS != 1000 {
		t.Fatalf("apology ts = %d", st.LastApologyTS)
	}
	if st.LastSuggestionTS != 0 || len(st.RecentSuggestions) != 0 {
		t.Fatalf("fallback polluted suggestion state: %+v", st)
	}
}

func TestHandleTick_DuplicateSuggestionFallsBack(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	mem.Update(context.Background(), "s1", engine.Delta{
		RecentSuggestions: []string{"ask about the trip"},
	})

	gen := &fakeGenerator{text: "ask about the trip"}
	s := newTestSession(t, server, gen, nil, mem, 1000)

	if err := s.handleTick(pauseFrame(1000)); err != nil {
		t.Fatalf("tick: %v", err)
	}

	frame := readFrame(t, client)
	if frame["suggestion_text"] != engine.DefaultFallbackText {
		t.Fatalf("frame = %v", frame)
	}

	st, _ := mem.Get(context.Background(), "s1")
	if len(st.RecentSuggestions) != 1 {
		t.Fatalf("duplicate appended to history: %v", st.RecentSuggestions)
	}
}

func TestHandleTick_UnsafeTextFallsBack(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	gen := &fakeGenerator{text: "you should try therapy"}
	s := newTestSession(t, server, gen, nil, mem, 1000)

	if err := s.handleTick(pauseFrame(1000)); err != nil {
		t.Fatalf("tick: %v", err)
	}

	frame := readFrame(t, client)
	if frame["suggestion_text"] != engine.DefaultFallbackText {
		t.Fatalf("unsafe text leaked: %v", frame)
	}
}

func TestHandleTick_SynthesisAttachesAudio(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	gen := &fakeGenerator{text: "ask about the trip"}
	synth := &fakeSynthesizer{result: tts.Result{AudioURL: "https://cdn.example.com/a.mp3"}}
	s := newTestSession(t, server, gen, synth, mem, 1000)

	if err := s.handleTick(pauseFrame(1000)); err != nil {
		t.Fatalf("tick: %v", err)
	}

	frame := readFrame(t, client)
	if frame["audio_url"] != "https://cdn.example.com/a.mp3" {
		t.Fatalf("frame = %v", frame)
	}
}

func TestHandleTick_RelevanceGateSkipsFluentConversation(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	gen := &fakeGenerator{text: "unused"}
	s := newTestSession(t, server, gen, nil, mem, 1000)

	// Recent speech and high confidence: nothing to coach.
	raw := []byte(`{
		"type": "pause_detected",
		"conversation_snapshot": {
			"lastTurns": [{"speaker": "A", "text": "great day"}],
			"confidenceScore": 0.95,
			"lastSpokenAt": 999
		}
	}`)
	if err := s.handleTick(raw); err != nil {
		t.Fatalf("tick: %v", err)
	}

	expectNoFrame(t, client)
	if gen.calls != 0 {
		t.Fatalf("generator called for fluent conversation")
	}
}

func TestRun_ClientCloseEndsLoop(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	gen := &fakeGenerator{text: "ask about the trip"}
	s := newTestSession(t, server, gen, nil, mem, 1000)

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	client.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not exit after close")
	}
}

func TestRun_ProcessesFrames(t *testing.T) {
	server, client := wsPair(t)
	mem := store.NewMemory(0)
	gen := &fakeGenerator{text: "ask about the trip"}
	s := newTestSession(t, server, gen, nil, mem, 1000)

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	if err := client.WriteMessage(websocket.TextMessage, pauseFrame(1000)); err != nil {
		t.Fatalf("write: %v", err)
	}

	frame := readFrame(t, client)
	if frame["type"] != "voice_suggestion" {
		t.Fatalf("frame = %v", frame)
	}

	s.Cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not exit after cancel")
	}
}

type deadlineSynthesizer struct {
	hadDeadline bool
}

func (f *deadlineSynthesizer) Configured() bool { return true }

func (f *deadlineSynthesizer) Synthesize(ctx context.Context, _, _ string) tts.Result {
	_, f.hadDeadline = ctx.Deadline()
	return tts.Result{}
}

// Synthesis runs under a deadline derived from the session context; a
// hung synthesis backend must not stall the tick loop.
func TestHandleTick_SynthesisRunsUnderDeadline(t *testing.T) {
	server, client := wsPair(t)
	defer client.Close()

	mem := store.NewMemory(time.Hour)
	gen := &fakeGenerator{text: "Ask about their weekend plans."}
	synth := &deadlineSynthesizer{}
	s := newTestSession(t, server, gen, synth, mem, 1000)

	if err := s.handleTick(pauseFrame(1000)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	readFrame(t, client)

	if !synth.hadDeadline {
		t.Fatal("synthesis context carried no deadline")
	}
}
