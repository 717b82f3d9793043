// Package timer provides the repeating countdown primitive behind every
// timed session phase.
package timer

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TickFunc receives the number of elapsed ticks, starting at 1. Returning
// false stops the run and fires the completion callback.
type TickFunc func(elapsed int) bool

// PhaseTimer runs at most one repeating countdown at a time. Starting a new
// run cancels any previous one first, so a re-entered phase can never leave
// a duplicate ticker behind.
type PhaseTimer struct {
	clk clock.Clock

	mu      sync.Mutex
	seq     uint64
	pending *clock.Timer
}

// New creates a PhaseTimer on the given clock. A nil clock falls back to the
// real one.
func New(clk clock.Clock) *PhaseTimer {
	if clk == nil {
		clk = clock.New()
	}
	return &PhaseTimer{clk: clk}
}

// Start begins ticking every interval. onComplete fires exactly once when
// onTick returns false; it never fires on Cancel. onComplete may be nil.
func (t *PhaseTimer) Start(interval time.Duration, onTick TickFunc, onComplete func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	seq := t.seq
	t.armLocked(seq, interval, 0, onTick, onComplete)
}

// Cancel stops any active run. Safe to call repeatedly or when the timer was
// never started.
func (t *PhaseTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

// Running reports whether a run is currently active.
func (t *PhaseTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

func (t *PhaseTimer) cancelLocked() {
	t.seq++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *PhaseTimer) armLocked(seq uint64, interval time.Duration, elapsed int, onTick TickFunc, onComplete func()) {
	t.pending = t.clk.AfterFunc(interval, func() {
		t.fire(seq, interval, elapsed+1, onTick, onComplete)
	})
}

func (t *PhaseTimer) fire(seq uint64, interval time.Duration, elapsed int, onTick TickFunc, onComplete func()) {
	t.mu.Lock()
	if seq != t.seq {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	// The callback runs outside the lock so it may call Start or Cancel on
	// this timer without deadlocking.
	cont := onTick(elapsed)

	t.mu.Lock()
	if seq != t.seq {
		// Cancelled or restarted from inside the callback.
		t.mu.Unlock()
		return
	}
	if !cont {
		t.seq++
		t.pending = nil
		t.mu.Unlock()
		if onComplete != nil {
			onComplete()
		}
		return
	}
	t.armLocked(seq, interval, elapsed, onTick, onComplete)
	t.mu.Unlock()
}
