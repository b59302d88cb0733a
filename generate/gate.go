package generate

import (
	"context"
	"errors"
	"sync"
	"time"

	fimlet "github.com/Paranoid-AF/fimlet"
)

// ErrSuperseded is returned by Gate.Wait when a newer invocation replaced the pending timer.
var ErrSuperseded = errors.New("superseded by a newer completion request")

// Gate is a single-slot debounce for completion requests.
//
// Every call to Wait first cancels the timer of an earlier call that has not
// fired yet. Explicit invocations pass straight through; automatic ones wait
// for the delay. Only the pending timer is ever cancelled by a newer call:
// work that already passed the gate keeps running until its own context ends.
type Gate struct {
	delay time.Duration

	mu      sync.Mutex
	pending *pendingTimer
}

type pendingTimer struct {
	timer      *time.Timer
	fired      chan struct{}
	superseded chan struct{}
}

// NewGate creates a gate with the given delay for automatic triggers.
func NewGate(delay time.Duration) *Gate {
	if delay < 0 {
		delay = 0
	}
	return &Gate{delay: delay}
}

// Wait blocks until the request may proceed to inference.
// It returns nil when the request should run, ErrSuperseded when a newer call
// replaced it, or ctx.Err() when the caller cancelled first.
func (g *Gate) Wait(ctx context.Context, trigger fimlet.TriggerKind) error {
	g.mu.Lock()
	g.cancelPendingLocked()

	if trigger.Explicit() {
		g.mu.Unlock()
		return ctx.Err()
	}

	p := &pendingTimer{
		fired:      make(chan struct{}),
		superseded: make(chan struct{}),
	}
	// The callback takes g.mu, so it cannot observe the slot before p is stored.
	p.timer = time.AfterFunc(g.delay, func() {
		g.mu.Lock()
		if g.pending != p {
			g.mu.Unlock()
			return
		}
		g.pending = nil
		g.mu.Unlock()
		close(p.fired)
	})
	g.pending = p
	g.mu.Unlock()

	select {
	case <-p.fired:
		return nil
	case <-p.superseded:
		return ErrSuperseded
	case <-ctx.Done():
		g.mu.Lock()
		if g.pending == p {
			p.timer.Stop()
			g.pending = nil
		}
		g.mu.Unlock()
		return ctx.Err()
	}
}

// Pending reports whether a delayed request is waiting for its timer.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// Stop cancels the pending timer, if any. Its waiter returns ErrSuperseded.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelPendingLocked()
}

// cancelPendingLocked clears the slot (must hold g.mu).
func (g *Gate) cancelPendingLocked() {
	if g.pending == nil {
		return
	}
	g.pending.timer.Stop()
	close(g.pending.superseded)
	g.pending = nil
}
