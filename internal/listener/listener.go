// Package listener implements the polling loop state machine. Each
// listener owns one loop over one external source: fetch, detect,
// generate, publish, record, sleep. Listeners share nothing but the
// underlying state store files, whose key spaces never overlap.
package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/mastopilot/internal/types"
)

// CycleFunc runs one complete poll cycle. A returned error means the
// source fetch itself failed; per-event failures are handled inside the
// cycle and never surface here.
type CycleFunc func(ctx context.Context) error

// Option configures a Listener.
type Option func(*Listener)

// WithErrorHook installs a callback invoked after every failed cycle with
// the current consecutive-error count.
func WithErrorHook(hook func(name string, streak int, err error)) Option {
	return func(l *Listener) { l.onError = hook }
}

// Listener drives one poll loop through the phases
// stopped -> starting -> running -> stopping -> stopped. A stop request is
// observed at the top of the loop and at the top of the sleep; a cycle in
// progress always runs to completion first.
type Listener struct {
	name     string
	interval time.Duration
	cycle    CycleFunc
	onError  func(name string, streak int, err error)

	mu      sync.Mutex
	phase   string
	lastRun time.Time
	lastErr string
	streak  int
	stop    chan struct{}
	done    chan struct{}
}

// New creates a listener in the stopped phase.
func New(name string, interval time.Duration, cycle CycleFunc, opts ...Option) *Listener {
	l := &Listener{
		name:     name,
		interval: interval,
		cycle:    cycle,
		phase:    types.PhaseStopped,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the listener's name.
func (l *Listener) Name() string { return l.name }

// Start launches the poll loop. Starting a listener that is not stopped is
// a no-op; it returns whether a new loop was launched.
func (l *Listener) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != types.PhaseStopped {
		return false
	}
	l.phase = types.PhaseStarting
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stop, l.done)
	slog.Info("listener starting", "listener", l.name, "interval", l.interval)
	return true
}

// RequestStop asks the loop to stop at its next suspension point without
// waiting for it to finish.
func (l *Listener) RequestStop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == types.PhaseStopped || l.phase == types.PhaseStopping {
		return
	}
	l.phase = types.PhaseStopping
	close(l.stop)
}

// AwaitStopped blocks until the loop has fully stopped or the timeout
// expires. Returns true if the listener is stopped.
func (l *Listener) AwaitStopped(timeout time.Duration) bool {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stop requests a graceful stop and waits for it, bounded by timeout.
func (l *Listener) Stop(timeout time.Duration) bool {
	l.RequestStop()
	return l.AwaitStopped(timeout)
}

// Status returns a snapshot of the listener's state.
func (l *Listener) Status() types.ListenerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return types.ListenerStatus{
		Name:        l.name,
		Phase:       l.phase,
		Interval:    l.interval,
		LastRun:     l.lastRun,
		LastError:   l.lastErr,
		ErrorStreak: l.streak,
	}
}

func (l *Listener) run(stop, done chan struct{}) {
	defer close(done)
	l.setPhase(types.PhaseRunning)

	for {
		select {
		case <-stop:
			l.finish()
			return
		default:
		}

		l.runCycle()

		select {
		case <-stop:
			l.finish()
			return
		case <-time.After(l.interval):
		}
	}
}

// runCycle executes one cycle and records the outcome. The cycle context
// is deliberately not tied to the stop channel: cancellation is
// cooperative, and in-flight external calls are bounded by their own
// timeouts.
func (l *Listener) runCycle() {
	err := l.cycle(context.Background())

	l.mu.Lock()
	l.lastRun = time.Now().UTC()
	if err == nil {
		l.streak = 0
		l.lastErr = ""
		l.mu.Unlock()
		return
	}
	l.lastErr = err.Error()
	l.streak++
	streak := l.streak
	l.mu.Unlock()

	slog.Error("poll cycle failed", "listener", l.name, "error", err, "streak", streak)
	if l.onError != nil {
		l.onError(l.name, streak, err)
	}
}

func (l *Listener) setPhase(phase string) {
	l.mu.Lock()
	// A stop request may have arrived before the loop observed it; don't
	// overwrite stopping with running.
	if l.phase != types.PhaseStopping {
		l.phase = phase
	}
	l.mu.Unlock()
}

func (l *Listener) finish() {
	l.mu.Lock()
	l.phase = types.PhaseStopped
	l.mu.Unlock()
	slog.Info("listener stopped", "listener", l.name)
}
