// Package conversation owns the session transcript and the exchange loop
// with the conversational-response service.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/tmehta/shanti/internal/convlog"
	"github.com/tmehta/shanti/internal/therapy"
)

// Local prompts used when the service is unreachable. Degradation is
// deliberate: one attempt per user action, no retry, the conversation keeps
// going.
const (
	FallbackOpening = "How are you feeling today?"
	FallbackPrompt  = "Tell me more about that."
	BreathingOffer  = "Would you like a 3-minute breathing session for extra relaxation?"
)

// progressingAfter is the transcript length past which the session-state
// hint flips from beginning to progressing.
const progressingAfter = 8

// Responder produces the next prompt for a transcript.
type Responder interface {
	Exchange(ctx context.Context, req therapy.Request) (*therapy.Response, error)
}

// State is the observable conversation state.
type State struct {
	CurrentQuestion  string `json:"currentQuestion"`
	LastUserResponse string `json:"lastUserResponse,omitempty"`
	AwaitingResponse bool   `json:"awaitingResponse"`
	Started          bool   `json:"started"`
	Ended            bool   `json:"ended"`
	ExitRevealed     bool   `json:"exitRevealed"`
	Turns            int    `json:"turns"`
}

// Config wires a Loop.
type Config struct {
	Responder Responder
	// ExitThreshold is the round-trip count at which the exit control is
	// revealed. Drawn once at session construction, never re-rolled.
	ExitThreshold int
	UserID        string
	SessionID     string
	// OnChange fires after every state mutation, outside the loop's lock.
	OnChange func()
	Logger   *slog.Logger
	Diag     *convlog.Logger
}

// Loop drives the conversation phase. Submissions are serialized: a second
// submission while one is in flight is a no-op.
type Loop struct {
	responder     Responder
	exitThreshold int
	userID        string
	sessionID     string
	onChange      func()
	logger        *slog.Logger
	diag          *convlog.Logger

	mu               sync.Mutex
	transcript       []therapy.Turn
	currentQuestion  string
	lastUserResponse string
	inFlight         bool
	started          bool
	ended            bool
	exitRevealed     bool
}

// New creates a conversation loop.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		responder:     cfg.Responder,
		exitThreshold: cfg.ExitThreshold,
		userID:        cfg.UserID,
		sessionID:     cfg.SessionID,
		onChange:      cfg.OnChange,
		logger:        logger,
		diag:          cfg.Diag,
	}
}

// Start opens the session with an empty transcript. Invoked once; repeated
// calls are no-ops. On service failure the fixed local opening is adopted.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.inFlight {
		l.mu.Unlock()
		return
	}
	l.inFlight = true
	l.mu.Unlock()
	l.notify()

	resp, err := l.responder.Exchange(ctx, therapy.Request{
		Messages:     []therapy.Turn{},
		SessionState: therapy.StateBeginning,
	})

	l.mu.Lock()
	l.inFlight = false
	l.started = true
	if err != nil {
		l.logger.Warn("failed to start conversation, using local opening", "error", err)
		l.currentQuestion = FallbackOpening
	} else {
		l.currentQuestion = resp.Question
	}
	question := l.currentQuestion
	l.mu.Unlock()

	l.diag.Log(convlog.Event{
		UserID: l.userID, SessionID: l.sessionID,
		EventType: convlog.EventSessionStart, Content: question,
	})
	if err != nil {
		l.logDiagError(err)
	}
	l.notify()
}

// Submit appends the pending round-trip and exchanges the transcript with
// the service. Empty input (after trimming) and in-flight submissions are
// no-ops. Returns whether the submission was accepted.
func (l *Loop) Submit(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	l.mu.Lock()
	if !l.started || l.ended || l.inFlight {
		l.mu.Unlock()
		return false
	}

	// The assistant turn carries the question this reply answers.
	l.transcript = append(l.transcript,
		therapy.Turn{Role: therapy.RoleAssistant, Content: l.currentQuestion},
		therapy.Turn{Role: therapy.RoleUser, Content: text},
	)
	l.lastUserResponse = text
	l.inFlight = true

	roundTrips := len(l.transcript) / 2
	if roundTrips >= l.exitThreshold && !l.exitRevealed {
		l.exitRevealed = true
	}

	state := therapy.StateBeginning
	if len(l.transcript) > progressingAfter {
		state = therapy.StateProgressing
	}
	messages := make([]therapy.Turn, len(l.transcript))
	copy(messages, l.transcript)
	l.mu.Unlock()

	l.diag.Log(convlog.Event{
		UserID: l.userID, SessionID: l.sessionID,
		EventType: convlog.EventTurnUser, Content: text,
	})
	l.notify()

	resp, err := l.responder.Exchange(ctx, therapy.Request{
		Messages:     messages,
		SessionState: state,
	})

	l.mu.Lock()
	l.inFlight = false
	switch {
	case err != nil:
		l.logger.Warn("therapy exchange failed, using local prompt", "error", err, "turns", len(messages))
		l.currentQuestion = FallbackPrompt
	case resp.ShouldEnd:
		l.ended = true
		l.currentQuestion = ""
	default:
		l.currentQuestion = resp.Question
		l.lastUserResponse = ""
	}
	question := l.currentQuestion
	ended := l.ended
	l.mu.Unlock()

	if err != nil {
		l.logDiagError(err)
	} else if ended {
		l.diag.Log(convlog.Event{
			UserID: l.userID, SessionID: l.sessionID,
			EventType: convlog.EventSessionEnd, Content: "service signalled end",
		})
	} else {
		l.diag.Log(convlog.Event{
			UserID: l.userID, SessionID: l.sessionID,
			EventType: convlog.EventTurnAssist, Content: question,
		})
	}
	l.notify()
	return true
}

// CloseManually ends the session on the user's initiative, substituting the
// breathing-session offer in place of the next question.
func (l *Loop) CloseManually() {
	l.mu.Lock()
	if l.ended {
		l.mu.Unlock()
		return
	}
	l.ended = true
	l.currentQuestion = BreathingOffer
	l.mu.Unlock()

	l.diag.Log(convlog.Event{
		UserID: l.userID, SessionID: l.sessionID,
		EventType: convlog.EventSessionEnd, Content: "closed by user",
	})
	l.notify()
}

// State returns the observable conversation state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		CurrentQuestion:  l.currentQuestion,
		LastUserResponse: l.lastUserResponse,
		AwaitingResponse: l.inFlight,
		Started:          l.started,
		Ended:            l.ended,
		ExitRevealed:     l.exitRevealed,
		Turns:            len(l.transcript),
	}
}

// Transcript returns a copy of the transcript.
func (l *Loop) Transcript() []therapy.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]therapy.Turn, len(l.transcript))
	copy(out, l.transcript)
	return out
}

func (l *Loop) notify() {
	if l.onChange != nil {
		l.onChange()
	}
}

func (l *Loop) logDiagError(err error) {
	l.diag.Log(convlog.Event{
		UserID: l.userID, SessionID: l.sessionID,
		EventType: convlog.EventServiceError, Error: err.Error(),
	})
}
