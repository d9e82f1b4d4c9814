// Package lifecycle holds the shared process lifecycle flag consulted
// by the readiness probe and the websocket handler during graceful
// shutdown.
package lifecycle

import "sync/atomic"

// Lifecycle flips to draining when shutdown starts: readiness goes
// false and new coaching sessions are refused while live ones finish.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
