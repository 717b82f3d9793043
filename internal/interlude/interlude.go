// Package interlude manages the ambient-audio phases of a session: a
// countdown interlude before the conversation and a looping interlude after
// the extended breathing run.
package interlude

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tmehta/shanti/internal/timer"
)

// Player abstracts the host's audio element. Implementations must tolerate
// calls regardless of load state; playback failures are reported back through
// AudioError, not return values.
type Player interface {
	Play()
	Pause()
	Rewind()
	SetLoop(loop bool)
}

// Mode selects the interlude's completion semantics.
type Mode string

const (
	// ModeCountdown advances the session when the timer expires or the user
	// skips.
	ModeCountdown Mode = "countdown"
	// ModeLoop plays indefinitely; only an explicit user action advances.
	ModeLoop Mode = "loop"
)

// Run is the observable state of an active interlude.
type Run struct {
	Mode             Mode `json:"mode"`
	RemainingSeconds int  `json:"remainingSeconds,omitempty"`
	AudioReady       bool `json:"audioReady"`
	AudioErrored     bool `json:"audioErrored"`
}

// Controller owns the audio element and at most one countdown at a time.
// Audio readiness and failure flags persist across modes: both interludes
// share the same underlying track.
type Controller struct {
	clk       clock.Clock
	player    Player
	countdown *timer.PhaseTimer

	mu           sync.Mutex
	active       bool
	mode         Mode
	remaining    int
	audioReady   bool
	audioErrored bool
}

// New creates a controller for the given player.
func New(clk clock.Clock, player Player) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		clk:       clk,
		player:    player,
		countdown: timer.New(clk),
	}
}

// StartCountdown enters countdown mode: the track starts from the beginning
// without looping and the timer counts down from seconds. On expiry onExpire
// fires and the audio is left playing; stopping it is the next phase's call.
func (c *Controller) StartCountdown(seconds int, onUpdate func(Run), onExpire func()) {
	c.countdown.Cancel()

	c.mu.Lock()
	c.active = true
	c.mode = ModeCountdown
	c.remaining = seconds
	c.mu.Unlock()

	c.player.Rewind()
	c.player.SetLoop(false)
	c.player.Play()

	c.countdown.Start(time.Second, func(elapsed int) bool {
		c.mu.Lock()
		c.remaining = seconds - elapsed
		left := c.remaining
		snap := c.snapshotLocked()
		c.mu.Unlock()

		if onUpdate != nil {
			onUpdate(snap)
		}
		return left > 0
	}, func() {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		if onExpire != nil {
			onExpire()
		}
	})
}

// StartLoop enters loop mode: the track restarts and loops indefinitely.
// There is no timer; the phase advances only on an explicit user action.
func (c *Controller) StartLoop() {
	c.countdown.Cancel()

	c.mu.Lock()
	c.active = true
	c.mode = ModeLoop
	c.remaining = 0
	c.mu.Unlock()

	c.player.Rewind()
	c.player.SetLoop(true)
	c.player.Play()
}

// Skip cancels the countdown and stops and rewinds the track. The caller
// advances to the same phase natural expiry would have reached.
func (c *Controller) Skip() {
	c.Stop()
}

// Stop cancels any countdown and stops and rewinds the track. Idempotent.
func (c *Controller) Stop() {
	c.countdown.Cancel()

	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.mu.Unlock()

	if wasActive {
		c.player.Pause()
		c.player.Rewind()
	}
}

// CancelCountdown stops the countdown without touching the audio. Used when
// the session advances while the track should keep playing.
func (c *Controller) CancelCountdown() {
	c.countdown.Cancel()
}

// StartAudio handles the manual "start music" control: restart playback
// without resetting the countdown.
func (c *Controller) StartAudio() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	mode := c.mode
	c.mu.Unlock()

	c.player.Rewind()
	c.player.SetLoop(mode == ModeLoop)
	c.player.Play()
}

// AudioReady records that the host finished loading the track.
func (c *Controller) AudioReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioReady = true
}

// AudioError records a load or playback failure. Non-fatal: the phase can
// still be advanced manually.
func (c *Controller) AudioError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioErrored = true
}

// ShowManualStart reports whether the manual start control is meaningful:
// only while the track is neither ready nor errored.
func (c *Controller) ShowManualStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.audioReady && !c.audioErrored
}

// Active reports whether an interlude is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Snapshot returns the current interlude state.
func (c *Controller) Snapshot() Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Run {
	return Run{
		Mode:             c.mode,
		RemainingSeconds: c.remaining,
		AudioReady:       c.audioReady,
		AudioErrored:     c.audioErrored,
	}
}
