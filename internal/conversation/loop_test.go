package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tmehta/shanti/internal/therapy"
)

// fakeResponder returns queued responses in order, or err for every call.
type fakeResponder struct {
	mu        sync.Mutex
	responses []*therapy.Response
	err       error
	requests  []therapy.Request
}

func (f *fakeResponder) Exchange(_ context.Context, req therapy.Request) (*therapy.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &therapy.Response{Question: "And how does that feel?"}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeResponder) lastRequest() therapy.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newLoop(r Responder, threshold int) *Loop {
	return New(Config{Responder: r, ExitThreshold: threshold, UserID: "u", SessionID: "s"})
}

func TestStart_AdoptsOpeningQuestion(t *testing.T) {
	r := &fakeResponder{responses: []*therapy.Response{{Question: "How are you?"}}}
	l := newLoop(r, 7)

	l.Start(context.Background())

	st := l.State()
	if st.CurrentQuestion != "How are you?" {
		t.Errorf("unexpected question: %q", st.CurrentQuestion)
	}
	if !st.Started || st.Ended {
		t.Errorf("unexpected state: %+v", st)
	}
	req := r.lastRequest()
	if len(req.Messages) != 0 || req.SessionState != therapy.StateBeginning {
		t.Errorf("start must send an empty transcript with state beginning: %+v", req)
	}
}

func TestStart_FallbackOnFailure(t *testing.T) {
	l := newLoop(&fakeResponder{err: errors.New("connection refused")}, 7)
	l.Start(context.Background())

	if got := l.State().CurrentQuestion; got != FallbackOpening {
		t.Errorf("expected local opening, got %q", got)
	}
}

func TestSubmit_AppendsRoundTripPairs(t *testing.T) {
	r := &fakeResponder{responses: []*therapy.Response{
		{Question: "How are you?"},
		{Question: "What made today okay?"},
	}}
	l := newLoop(r, 7)
	l.Start(context.Background())

	if !l.Submit(context.Background(), "I'm okay") {
		t.Fatal("submission should be accepted")
	}

	turns := l.Transcript()
	if len(turns) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(turns))
	}
	if turns[0].Role != therapy.RoleAssistant || turns[0].Content != "How are you?" {
		t.Errorf("first entry must carry the answered question: %+v", turns[0])
	}
	if turns[1].Role != therapy.RoleUser || turns[1].Content != "I'm okay" {
		t.Errorf("second entry must be the user reply: %+v", turns[1])
	}
	if got := l.State().CurrentQuestion; got != "What made today okay?" {
		t.Errorf("unexpected next question: %q", got)
	}
	if got := l.State().LastUserResponse; got != "" {
		t.Errorf("last-response echo must clear on success, got %q", got)
	}
}

func TestSubmit_EmptyAndUnstartedAreNoOps(t *testing.T) {
	l := newLoop(&fakeResponder{}, 7)

	if l.Submit(context.Background(), "hello") {
		t.Error("submit before start must be a no-op")
	}

	l.Start(context.Background())
	if l.Submit(context.Background(), "   \n\t ") {
		t.Error("whitespace-only submit must be a no-op")
	}
	if got := l.State().Turns; got != 0 {
		t.Errorf("transcript must stay empty, got %d turns", got)
	}
}

func TestSubmit_ServiceFailureFallsBack(t *testing.T) {
	r := &fakeResponder{responses: []*therapy.Response{{Question: "How are you?"}}}
	l := newLoop(r, 7)
	l.Start(context.Background())

	r.mu.Lock()
	r.err = errors.New("boom")
	r.mu.Unlock()

	l.Submit(context.Background(), "I'm okay")

	st := l.State()
	if st.CurrentQuestion != FallbackPrompt {
		t.Errorf("expected fallback prompt, got %q", st.CurrentQuestion)
	}
	if st.Ended {
		t.Error("a failed exchange must not end the session")
	}
	if st.Turns != 2 {
		t.Errorf("the round-trip stays on the transcript, got %d", st.Turns)
	}
}

func TestSubmit_ShouldEndClearsQuestion(t *testing.T) {
	r := &fakeResponder{responses: []*therapy.Response{
		{Question: "How are you?"},
		{Question: "bye", ShouldEnd: true},
	}}
	l := newLoop(r, 7)
	l.Start(context.Background())
	l.Submit(context.Background(), "I feel better now")

	st := l.State()
	if !st.Ended {
		t.Fatal("shouldEnd must end the session")
	}
	if st.CurrentQuestion != "" {
		t.Errorf("question must clear on service end, got %q", st.CurrentQuestion)
	}
}

func TestSessionStateHint(t *testing.T) {
	r := &fakeResponder{responses: []*therapy.Response{{Question: "Q0"}}}
	l := newLoop(r, 99)
	l.Start(context.Background())

	for i := 1; i <= 5; i++ {
		l.Submit(context.Background(), fmt.Sprintf("reply %d", i))
		req := r.lastRequest()
		want := therapy.StateBeginning
		if 2*i > 8 {
			want = therapy.StateProgressing
		}
		if req.SessionState != want {
			t.Errorf("after %d round-trips expected %q, got %q", i, want, req.SessionState)
		}
		if len(req.Messages) != 2*i {
			t.Errorf("transcript length after %d turns: want %d, got %d", i, 2*i, len(req.Messages))
		}
	}
}

func TestExitThresholdReveal(t *testing.T) {
	for _, threshold := range []int{7, 8} {
		t.Run(fmt.Sprintf("threshold_%d", threshold), func(t *testing.T) {
			r := &fakeResponder{responses: []*therapy.Response{{Question: "Q0"}}}
			l := newLoop(r, threshold)
			l.Start(context.Background())

			for i := 1; i <= threshold+2; i++ {
				l.Submit(context.Background(), fmt.Sprintf("reply %d", i))
				st := l.State()
				wantRevealed := i >= threshold
				if st.ExitRevealed != wantRevealed {
					t.Fatalf("after %d round-trips revealed=%v, want %v", i, st.ExitRevealed, wantRevealed)
				}
			}
		})
	}
}

func TestCloseManually_OffersBreathing(t *testing.T) {
	r := &fakeResponder{responses: []*therapy.Response{{Question: "How are you?"}}}
	l := newLoop(r, 7)
	l.Start(context.Background())

	l.CloseManually()

	st := l.State()
	if !st.Ended {
		t.Fatal("manual close must end the session")
	}
	if st.CurrentQuestion != BreathingOffer {
		t.Errorf("manual close substitutes the breathing offer, got %q", st.CurrentQuestion)
	}

	// Already-ended close is a no-op.
	l.CloseManually()
	if got := l.State().CurrentQuestion; got != BreathingOffer {
		t.Errorf("repeat close changed the prompt: %q", got)
	}
}

func TestEndToEndScenario(t *testing.T) {
	r := &fakeResponder{responses: []*therapy.Response{
		{Question: "How are you?"},
		{Question: "What made today okay?"},
	}}
	l := newLoop(r, 7)

	l.Start(context.Background())
	if got := l.State().CurrentQuestion; got != "How are you?" {
		t.Fatalf("opening question: %q", got)
	}

	l.Submit(context.Background(), "I'm okay")
	st := l.State()
	if st.Turns != 2 || st.CurrentQuestion != "What made today okay?" {
		t.Fatalf("after first turn: %+v", st)
	}

	for i := 0; i < 6; i++ {
		l.Submit(context.Background(), "still here")
	}
	if !l.State().ExitRevealed {
		t.Fatal("exit control should be revealed after 7 round-trips")
	}

	r.mu.Lock()
	r.responses = []*therapy.Response{{ShouldEnd: true}}
	r.mu.Unlock()
	l.Submit(context.Background(), "I feel good now")

	st = l.State()
	if !st.Ended || st.CurrentQuestion != "" {
		t.Fatalf("after service end: %+v", st)
	}
	if !st.ExitRevealed {
		t.Error("exit control must never hide again")
	}
}
