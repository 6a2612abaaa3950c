// Package automation coordinates the set of listeners as one unit so the
// daemon, the control API, and the CLI all see a single start/stop surface.
package automation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/user/mastopilot/internal/listener"
	"github.com/user/mastopilot/internal/types"
)

// Supervisor owns the listeners and starts and stops them together.
type Supervisor struct {
	mu        sync.Mutex
	listeners []*listener.Listener
}

// New creates a Supervisor over the given listeners.
func New(listeners ...*listener.Listener) *Supervisor {
	return &Supervisor{listeners: listeners}
}

// Start launches every listener that is not already running. Calling Start
// on a running supervisor is a no-op.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		l.Start()
	}
}

// Stop requests a graceful stop of every listener and waits for all of
// them, bounded by timeout overall. Returns false if any listener was
// still busy when the timeout expired.
func (s *Supervisor) Stop(timeout time.Duration) bool {
	s.mu.Lock()
	listeners := append([]*listener.Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.RequestStop()
	}

	deadline := time.Now().Add(timeout)
	stopped := true
	for _, l := range listeners {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if !l.AwaitStopped(remaining) {
			slog.Warn("listener did not stop in time", "listener", l.Name())
			stopped = false
		}
	}
	return stopped
}

// Status reports a snapshot of every listener.
func (s *Supervisor) Status() []types.ListenerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make([]types.ListenerStatus, 0, len(s.listeners))
	for _, l := range s.listeners {
		statuses = append(statuses, l.Status())
	}
	return statuses
}

// Running reports whether any listener is currently active.
func (s *Supervisor) Running() bool {
	for _, st := range s.Status() {
		if st.Phase != types.PhaseStopped {
			return true
		}
	}
	return false
}
