package store

import (
	"context"
	"testing"
	"time"

	"github.com/echo-ai/coach-gateway/pkg/engine"
)

func TestMemory_GetUnknownReturnsZero(t *testing.T) {
	m := NewMemory(0)
	st, err := m.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.LastSuggestionTS != 0 || len(st.RecentTopics) != 0 {
		t.Fatalf("expected zero state, got %+v", st)
	}
}

func TestMemory_UpdateThenGet(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	sentiment := 0.4
	if err := m.Update(ctx, "s1", engine.Delta{
		RecentTopics:  []string{"travel", "food"},
		LastSentiment: &sentiment,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	st, err := m.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.LastSentiment != 0.4 || len(st.RecentTopics) != 2 {
		t.Fatalf("state = %+v", st)
	}
}

func TestMemory_NullNeverOverwrites(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	a := 0.5
	if err := m.Update(ctx, "s1", engine.Delta{LastSentiment: &a}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	ts := int64(2)
	if err := m.Update(ctx, "s1", engine.Delta{LastSuggestionTS: &ts}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	st, _ := m.Get(ctx, "s1")
	if st.LastSentiment != 0.5 {
		t.Fatalf("sentiment clobbered: %+v", st)
	}
	if st.LastSuggestionTS != 2 {
		t.Fatalf("suggestion ts = %d, want 2", st.LastSuggestionTS)
	}
}

func TestMemory_LazyEviction(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()

	now := time.Unix(1000, 0)
	m.Now = func() time.Time { return now }

	ts := int64(500)
	if err := m.Update(ctx, "s1", engine.Delta{LastSuggestionTS: &ts}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// One second past the TTL the entry is gone.
	now = now.Add(time.Hour + time.Second)
	st, err := m.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.LastSuggestionTS != 0 {
		t.Fatalf("expired entry still readable: %+v", st)
	}
	if m.Len() != 0 {
		t.Fatalf("entry not evicted, len=%d", m.Len())
	}
}

func TestMemory_UpdateResetsTTL(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()

	now := time.Unix(1000, 0)
	m.Now = func() time.Time { return now }

	ts := int64(500)
	m.Update(ctx, "s1", engine.Delta{LastSuggestionTS: &ts})

	// 50 minutes later a second update pushes the expiry out again.
	now = now.Add(50 * time.Minute)
	m.Update(ctx, "s1", engine.Delta{RecentTopics: []string{"music"}})

	// 50 more minutes: past the original expiry, inside the renewed one.
	now = now.Add(50 * time.Minute)
	st, _ := m.Get(ctx, "s1")
	if st.LastSuggestionTS != 500 {
		t.Fatalf("entry expired despite renewal: %+v", st)
	}
}

func TestMemory_SessionsIndependent(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	a := int64(1)
	b := int64(2)
	m.Update(ctx, "s1", engine.Delta{LastSuggestionTS: &a})
	m.Update(ctx, "s2", engine.Delta{LastSuggestionTS: &b})

	s1, _ := m.Get(ctx, "s1")
	s2, _ := m.Get(ctx, "s2")
	if s1.LastSuggestionTS != 1 || s2.LastSuggestionTS != 2 {
		t.Fatalf("cross-session bleed: s1=%+v s2=%+v", s1, s2)
	}
}
