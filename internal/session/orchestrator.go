// Package session orchestrates one wellbeing session: the guided breathing
// induction, the ambient interludes, the conversational exchange, and the
// feedback capture. One orchestrator serves one connected host.
package session

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tmehta/shanti/internal/breathing"
	"github.com/tmehta/shanti/internal/conversation"
	"github.com/tmehta/shanti/internal/convlog"
	"github.com/tmehta/shanti/internal/feedback"
	"github.com/tmehta/shanti/internal/interlude"
)

// Timings collects every duration the session flow depends on.
type Timings struct {
	Breathing      breathing.Config
	PreludeSeconds int
}

// DefaultTimings returns the production session timings.
func DefaultTimings() Timings {
	return Timings{
		Breathing:      breathing.DefaultConfig(),
		PreludeSeconds: 55,
	}
}

// Deps wires an orchestrator. Clock, Logger and DrawExitThreshold may be nil;
// the rest is required.
type Deps struct {
	Clock     clock.Clock
	Responder conversation.Responder
	Feedback  *feedback.Client
	Player    interlude.Player
	Publisher Publisher
	Logger    *slog.Logger
	Diag      *convlog.Logger
	// DrawExitThreshold picks the round-trip count at which the conversation
	// exit control appears. Called once per session.
	DrawExitThreshold func() int
	Timings           Timings
	AudioTrackURL     string
	UserID            string
	SessionID         string
}

// Orchestrator drives the session phase machine. All state mutation happens
// under mu; component callbacks and snapshot publishing run outside it.
type Orchestrator struct {
	clk           clock.Clock
	publisher     Publisher
	logger        *slog.Logger
	fb            *feedback.Client
	audioTrackURL string
	sessionID     string

	engine  *breathing.Engine
	ambient *interlude.Controller
	loop    *conversation.Loop

	preludeSeconds int

	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	phase             Phase
	feedbackSubmitted bool
	closed            bool
	lastActive        time.Time
}

// New builds an orchestrator in the initial breathing phase. Nothing runs
// until Start.
func New(deps Deps) *Orchestrator {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	draw := deps.DrawExitThreshold
	if draw == nil {
		draw = func() int { return 7 + rand.IntN(2) }
	}
	fb := deps.Feedback
	if fb == nil {
		fb = feedback.New("", 0, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		clk:            clk,
		publisher:      deps.Publisher,
		logger:         logger,
		fb:             fb,
		audioTrackURL:  deps.AudioTrackURL,
		sessionID:      deps.SessionID,
		engine:         breathing.NewEngine(clk, deps.Timings.Breathing),
		ambient:        interlude.New(clk, deps.Player),
		preludeSeconds: deps.Timings.PreludeSeconds,
		ctx:            ctx,
		cancel:         cancel,
		phase:          PhaseInitialBreathing,
		lastActive:     clk.Now(),
	}
	o.loop = conversation.New(conversation.Config{
		Responder:     deps.Responder,
		ExitThreshold: draw(),
		UserID:        deps.UserID,
		SessionID:     deps.SessionID,
		OnChange:      o.conversationChanged,
		Logger:        logger,
		Diag:          deps.Diag,
	})
	return o
}

// Start begins the induction breathing run and publishes the initial state.
func (o *Orchestrator) Start() {
	o.engine.StartInduction(o.breathingUpdate, o.inductionComplete)
	o.publish()
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// LastActive returns the time of the most recent user action.
func (o *Orchestrator) LastActive() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActive
}

// Touch records user activity for idle accounting.
func (o *Orchestrator) Touch() {
	o.mu.Lock()
	o.lastActive = o.clk.Now()
	o.mu.Unlock()
}

// StartMusic restarts audio playback during an interlude without resetting
// the countdown. Ignored outside the interlude phases.
func (o *Orchestrator) StartMusic() {
	if p := o.Phase(); p != PhasePreludeInterlude && p != PhasePostludeInterlude {
		return
	}
	o.ambient.StartAudio()
	o.publish()
}

// SkipToChat cuts the prelude interlude short. The audio stops; natural
// expiry would have left it playing.
func (o *Orchestrator) SkipToChat(ctx context.Context) {
	if o.Phase() != PhasePreludeInterlude {
		return
	}
	o.ambient.Skip()
	o.enterConversation(ctx)
}

// SubmitUserTurn forwards one user reply to the conversation loop.
func (o *Orchestrator) SubmitUserTurn(ctx context.Context, text string) {
	if o.Phase() != PhaseConversation {
		return
	}
	o.loop.Submit(ctx, text)
}

// CloseConversation ends the conversation on the user's initiative.
func (o *Orchestrator) CloseConversation() {
	if o.Phase() != PhaseConversation {
		return
	}
	o.loop.CloseManually()
}

// StartExtendedBreathing accepts the post-conversation breathing offer.
func (o *Orchestrator) StartExtendedBreathing() {
	o.mu.Lock()
	if o.phase != PhaseSessionEnded {
		o.mu.Unlock()
		return
	}
	o.phase = PhaseExtendedBreathing
	o.mu.Unlock()

	o.engine.StartExtended(o.breathingUpdate, o.extendedComplete)
	o.publish()
}

// GoToFeedback moves to the feedback form from the session-ended screen or
// the postlude interlude. Any playing audio stops.
func (o *Orchestrator) GoToFeedback() {
	o.mu.Lock()
	if o.phase != PhaseSessionEnded && o.phase != PhasePostludeInterlude {
		o.mu.Unlock()
		return
	}
	o.phase = PhaseFeedback
	o.mu.Unlock()

	o.ambient.Stop()
	o.publish()
}

// SubmitFeedback accepts the feedback text and fires the sink submission in
// the background. The session reaches the submitted state regardless of the
// sink outcome.
func (o *Orchestrator) SubmitFeedback(text string, meta FeedbackMeta) {
	o.mu.Lock()
	if o.phase != PhaseFeedback {
		o.mu.Unlock()
		return
	}
	o.phase = PhaseFeedbackSubmitted
	o.feedbackSubmitted = true
	o.mu.Unlock()

	go func() {
		if err := o.fb.Submit(o.ctx, feedback.Submission{
			UserAgent: meta.UserAgent,
			Platform:  meta.Platform,
			Language:  meta.Language,
			Feedback:  text,
		}); err != nil {
			o.logger.Warn("feedback submission failed", "error", err, "session_id", o.sessionID)
		}
	}()
	o.publish()
}

// AudioReady records that the host loaded the ambient track.
func (o *Orchestrator) AudioReady() {
	o.ambient.AudioReady()
	o.publish()
}

// AudioError records an ambient-track load or playback failure.
func (o *Orchestrator) AudioError() {
	o.ambient.AudioError()
	o.logger.Warn("ambient audio failed on host", "session_id", o.sessionID)
	o.publish()
}

// Close tears the session down: every timer stops, audio stops, the feedback
// context is cancelled. Idempotent. No snapshot is published.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.engine.Cancel()
	o.ambient.Stop()
}

// Snapshot assembles the current observable state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	phase := o.phase
	submitted := o.feedbackSubmitted
	o.mu.Unlock()

	s := Snapshot{
		SessionID:         o.sessionID,
		Phase:             phase,
		AudioTrackURL:     o.audioTrackURL,
		FeedbackSubmitted: submitted,
	}
	switch phase {
	case PhaseInitialBreathing, PhaseExtendedBreathing:
		run := o.engine.Snapshot()
		s.Breathing = &run
	case PhasePreludeInterlude, PhasePostludeInterlude:
		run := o.ambient.Snapshot()
		s.Interlude = &run
		s.ShowManualStart = o.ambient.ShowManualStart()
	case PhaseConversation, PhaseSessionEnded:
		st := o.loop.State()
		s.Conversation = &st
	}
	return s
}

func (o *Orchestrator) breathingUpdate(breathing.Run) {
	o.publish()
}

func (o *Orchestrator) inductionComplete() {
	o.mu.Lock()
	if o.closed || o.phase != PhaseInitialBreathing {
		o.mu.Unlock()
		return
	}
	o.phase = PhasePreludeInterlude
	o.mu.Unlock()

	o.ambient.StartCountdown(o.preludeSeconds, o.interludeUpdate, o.preludeExpired)
	o.publish()
}

func (o *Orchestrator) interludeUpdate(interlude.Run) {
	o.publish()
}

func (o *Orchestrator) preludeExpired() {
	// The track keeps playing into the conversation; only the countdown ends.
	o.enterConversation(o.ctx)
}

func (o *Orchestrator) enterConversation(ctx context.Context) {
	o.mu.Lock()
	if o.closed || o.phase != PhasePreludeInterlude {
		o.mu.Unlock()
		return
	}
	o.phase = PhaseConversation
	o.mu.Unlock()

	o.ambient.CancelCountdown()
	o.publish()
	o.loop.Start(ctx)
}

func (o *Orchestrator) conversationChanged() {
	st := o.loop.State()
	o.mu.Lock()
	if st.Ended && o.phase == PhaseConversation {
		o.phase = PhaseSessionEnded
	}
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) extendedComplete() {
	o.mu.Lock()
	if o.closed || o.phase != PhaseExtendedBreathing {
		o.mu.Unlock()
		return
	}
	o.phase = PhasePostludeInterlude
	o.mu.Unlock()

	o.ambient.StartLoop()
	o.publish()
}

func (o *Orchestrator) publish() {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed || o.publisher == nil {
		return
	}
	o.publisher.Publish(o.Snapshot())
}
