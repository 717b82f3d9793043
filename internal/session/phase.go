package session

// Phase is a mutually-exclusive top-level mode of the session. Transitions
// follow a fixed graph owned by the orchestrator; entering a phase always
// cancels the timers of the phase being left.
type Phase string

const (
	PhaseInitialBreathing  Phase = "initial_breathing"
	PhasePreludeInterlude  Phase = "prelude_interlude"
	PhaseConversation      Phase = "conversation"
	PhaseSessionEnded      Phase = "session_ended"
	PhaseExtendedBreathing Phase = "extended_breathing"
	PhasePostludeInterlude Phase = "postlude_interlude"
	PhaseFeedback          Phase = "feedback"
	PhaseFeedbackSubmitted Phase = "feedback_submitted"
)
