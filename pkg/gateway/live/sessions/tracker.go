// Package sessions tracks live coaching sessions so shutdown can
// notify, cancel, and wait for them.
package sessions

import (
	"context"
	"sync"
)

// Handle is what a registered session exposes to the tracker. Notify
// sends a best-effort error frame to the client; Cancel aborts the
// session loop.
type Handle struct {
	Cancel func()
	Notify func(code, message string) error
}

// Tracker is a registry of running sessions. The zero value is not
// usable; call NewTracker. All methods tolerate a nil receiver so
// wiring can leave the tracker out entirely.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
}

type trackedSession struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
	}
}

// Register adds a session and returns its unregister func. Registering
// the same session id again supersedes the old entry; a client
// reconnecting with the same id must not leave a ghost registration
// holding up shutdown.
func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedSession{handle: h}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	old := t.sessions[sessionID]
	t.sessions[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// Count reports the number of live sessions, for the readiness probe.
func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// NotifyAll sends an error frame to every live session. Callbacks run
// outside the lock; a slow client write must not block registration.
func (t *Tracker) NotifyAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}

	var notifies []func(code, message string) error
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Notify == nil {
			continue
		}
		notifies = append(notifies, entry.handle.Notify)
	}
	t.mu.Unlock()

	for _, notify := range notifies {
		_ = notify(code, message)
		sent++
	}
	return sent
}

// CancelAll aborts every live session loop.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every session has unregistered or ctx expires.
// Returns false on timeout.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
