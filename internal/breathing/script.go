package breathing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Step is one timed segment of a scripted sequence. Narration is advisory:
// it is handed to the step callback and has no effect on scheduling.
type Step struct {
	Label     string
	SubPhase  SubPhase
	Narration string
	Duration  time.Duration
}

// WelcomeScript returns the narrated induction played before a session: an
// instruction step, then three in/hold/out cycles, then a completion step.
func WelcomeScript() []Step {
	steps := []Step{{
		Label:     "instruction",
		Narration: "Take a moment to breathe with us.",
		Duration:  4 * time.Second,
	}}
	for i := 0; i < 3; i++ {
		steps = append(steps,
			Step{Label: "breathe_in", SubPhase: SubPhaseInhale, Narration: "Slowly breathe in.", Duration: 5 * time.Second},
			Step{Label: "hold", SubPhase: SubPhaseHold, Narration: "Hold.", Duration: 3 * time.Second},
			Step{Label: "breathe_out", SubPhase: SubPhaseExhale, Narration: "Slowly breathe out.", Duration: 5 * time.Second},
		)
	}
	steps = append(steps, Step{
		Label:     "complete",
		Narration: "You may open your eyes now. Welcome to Shanti.",
		Duration:  3 * time.Second,
	})
	return steps
}

// ScriptRunner advances through a step list on a single scheduler: one timer,
// one step per elapsed duration. Cancelling between steps leaves no orphaned
// callbacks behind.
type ScriptRunner struct {
	clk   clock.Clock
	steps []Step

	mu      sync.Mutex
	idx     int
	pending *clock.Timer
	running bool

	onStep func(Step)
	onDone func()
}

// NewScriptRunner creates a runner for the given steps. onStep fires at the
// start of each step, onDone once after the last step's duration elapses.
func NewScriptRunner(clk clock.Clock, steps []Step, onStep func(Step), onDone func()) *ScriptRunner {
	if clk == nil {
		clk = clock.New()
	}
	return &ScriptRunner{clk: clk, steps: steps, onStep: onStep, onDone: onDone}
}

// Run starts the sequence. Calling Run on an already-running or finished
// runner is a no-op.
func (r *ScriptRunner) Run() {
	r.mu.Lock()
	if r.running || r.idx > 0 {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()
	r.advance()
}

func (r *ScriptRunner) advance() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	if r.idx >= len(r.steps) {
		r.running = false
		r.mu.Unlock()
		if r.onDone != nil {
			r.onDone()
		}
		return
	}
	step := r.steps[r.idx]
	r.idx++
	r.pending = r.clk.AfterFunc(step.Duration, r.advance)
	r.mu.Unlock()

	if r.onStep != nil {
		r.onStep(step)
	}
}

// Cancel stops the sequence; onDone will not fire. Idempotent.
func (r *ScriptRunner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}
