// Package breathing implements the guided breathing cycle engine and the
// narrated welcome sequence that precedes a session.
package breathing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tmehta/shanti/internal/timer"
)

// SubPhase is one segment of a breathing cycle.
type SubPhase string

const (
	SubPhaseInhale SubPhase = "inhale"
	SubPhaseHold   SubPhase = "hold"
	SubPhaseExhale SubPhase = "exhale"
)

// Mode selects which breathing variant a run uses.
type Mode string

const (
	// ModeInduction is the short fixed-cycle run at session start.
	ModeInduction Mode = "induction"
	// ModeExtended is the timed run offered after the conversation.
	ModeExtended Mode = "extended"
)

// Run is the observable state of an active breathing run.
type Run struct {
	Mode             Mode     `json:"mode"`
	SubPhase         SubPhase `json:"subPhase"`
	CyclesCompleted  int      `json:"cyclesCompleted"`
	MaxCycles        int      `json:"maxCycles,omitempty"`
	SubPhaseTimer    int      `json:"subPhaseTimer,omitempty"`
	SubPhaseProgress int      `json:"subPhaseProgress"`
	TotalRemaining   int      `json:"totalRemainingSeconds,omitempty"`
}

// Config holds the timing parameters for both modes.
type Config struct {
	SubPhaseSeconds int           // length of one inhale or exhale
	InductionCycles int           // cycles before the induction completes
	InductionLinger time.Duration // pause after the last cycle before advancing
	ExtendedSeconds int           // total length of the extended run
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		SubPhaseSeconds: 4,
		InductionCycles: 3,
		InductionLinger: 2 * time.Second,
		ExtendedSeconds: 180,
	}
}

// Engine runs breathing cycles and reports state changes through callbacks.
// Callbacks fire from timer goroutines, never while the engine lock is held.
type Engine struct {
	clk clock.Clock
	cfg Config

	// Extended mode keeps three independently ticking timers: the overall
	// countdown, the sub-phase alternation, and the per-second sub-phase
	// progress. They are started together and cancelled together.
	subPhase *timer.PhaseTimer
	progress *timer.PhaseTimer
	overall  *timer.PhaseTimer

	mu     sync.Mutex
	active bool
	run    Run
	linger *clock.Timer
}

// NewEngine creates an engine on the given clock. A nil clock falls back to
// the real one.
func NewEngine(clk clock.Clock, cfg Config) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{
		clk:      clk,
		cfg:      cfg,
		subPhase: timer.New(clk),
		progress: timer.New(clk),
		overall:  timer.New(clk),
	}
}

// StartInduction begins the fixed-cycle run. Re-entry resets the cycle count.
// onComplete fires once, after the linger delay that follows the last cycle.
func (e *Engine) StartInduction(onUpdate func(Run), onComplete func()) {
	e.cancelTimers()

	e.mu.Lock()
	e.active = true
	e.run = Run{
		Mode:      ModeInduction,
		SubPhase:  SubPhaseInhale,
		MaxCycles: e.cfg.InductionCycles,
	}
	e.mu.Unlock()

	interval := time.Duration(e.cfg.SubPhaseSeconds) * time.Second
	e.subPhase.Start(interval, func(int) bool {
		e.mu.Lock()
		if e.run.SubPhase == SubPhaseExhale {
			e.run.SubPhase = SubPhaseInhale
			e.run.CyclesCompleted++
		} else {
			e.run.SubPhase = SubPhaseExhale
		}
		done := e.run.CyclesCompleted >= e.run.MaxCycles
		snap := e.run
		e.mu.Unlock()

		if onUpdate != nil {
			onUpdate(snap)
		}
		return !done
	}, func() {
		// Let the "cycles complete" affordance render before advancing.
		e.mu.Lock()
		e.linger = e.clk.AfterFunc(e.cfg.InductionLinger, func() {
			e.mu.Lock()
			e.active = false
			e.mu.Unlock()
			if onComplete != nil {
				onComplete()
			}
		})
		e.mu.Unlock()
	})
}

// StartExtended begins the timed run. Completion is driven solely by the
// overall countdown reaching zero; the sub-phase alternation keeps flipping
// through the final second.
func (e *Engine) StartExtended(onUpdate func(Run), onComplete func()) {
	e.cancelTimers()

	e.mu.Lock()
	e.active = true
	e.run = Run{
		Mode:           ModeExtended,
		SubPhase:       SubPhaseInhale,
		SubPhaseTimer:  e.cfg.SubPhaseSeconds,
		TotalRemaining: e.cfg.ExtendedSeconds,
	}
	e.mu.Unlock()

	span := e.cfg.SubPhaseSeconds
	flipInterval := time.Duration(span) * time.Second

	// Per-second sub-phase countdown and progress. Derived from the tick
	// count so the state at a flip boundary does not depend on which of the
	// coincident timers fires first.
	e.progress.Start(time.Second, func(elapsed int) bool {
		within := elapsed % span
		e.mu.Lock()
		if within == 0 {
			e.run.SubPhaseTimer = span
			e.run.SubPhaseProgress = 0
		} else {
			e.run.SubPhaseTimer = span - within
			e.run.SubPhaseProgress = within * (100 / span)
		}
		snap := e.run
		e.mu.Unlock()

		if onUpdate != nil {
			onUpdate(snap)
		}
		return true
	}, nil)

	e.subPhase.Start(flipInterval, func(int) bool {
		e.mu.Lock()
		if e.run.SubPhase == SubPhaseInhale {
			e.run.SubPhase = SubPhaseExhale
		} else {
			e.run.SubPhase = SubPhaseInhale
		}
		e.run.SubPhaseTimer = span
		e.run.SubPhaseProgress = 0
		snap := e.run
		e.mu.Unlock()

		if onUpdate != nil {
			onUpdate(snap)
		}
		return true
	}, nil)

	e.overall.Start(time.Second, func(elapsed int) bool {
		e.mu.Lock()
		e.run.TotalRemaining = e.cfg.ExtendedSeconds - elapsed
		remaining := e.run.TotalRemaining
		snap := e.run
		e.mu.Unlock()

		if onUpdate != nil {
			onUpdate(snap)
		}
		return remaining > 0
	}, func() {
		// All three timers go down together.
		e.subPhase.Cancel()
		e.progress.Cancel()
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
		if onComplete != nil {
			onComplete()
		}
	})
}

// Cancel stops any active run without firing completion. Idempotent.
func (e *Engine) Cancel() {
	e.cancelTimers()
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
}

// Active reports whether a run is in progress.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Snapshot returns the current run state.
func (e *Engine) Snapshot() Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

func (e *Engine) cancelTimers() {
	e.subPhase.Cancel()
	e.progress.Cancel()
	e.overall.Cancel()
	e.mu.Lock()
	if e.linger != nil {
		e.linger.Stop()
		e.linger = nil
	}
	e.mu.Unlock()
}
