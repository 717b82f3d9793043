package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"

	"github.com/tmehta/shanti/internal/breathing"
	"github.com/tmehta/shanti/internal/identity"
	"github.com/tmehta/shanti/internal/session"
	"github.com/tmehta/shanti/internal/therapy"
)

type stubResponder struct{}

func (stubResponder) Exchange(context.Context, therapy.Request) (*therapy.Response, error) {
	return &therapy.Response{Question: "How are you feeling?"}, nil
}

func testHandler(mock *clock.Mock) *Handler {
	return NewHandler(HandlerConfig{
		Hub:       NewHub(),
		Responder: stubResponder{},
		Clock:     mock,
		Timings: session.Timings{
			Breathing: breathing.Config{
				SubPhaseSeconds: 4,
				InductionCycles: 3,
				InductionLinger: 2 * time.Second,
				ExtendedSeconds: 180,
			},
			PreludeSeconds: 55,
		},
		AudioTrackURL: "/audio/ambient.mp3",
		IsDev:         true,
	})
}

func dial(t *testing.T, h *Handler) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(identity.Middleware(true)(h))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		cancel()
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return ws, func() {
		_ = ws.Close(websocket.StatusNormalClosure, "test done")
		cancel()
		srv.Close()
	}
}

func readMessage(t *testing.T, ws *websocket.Conn) serverMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var msg serverMessage
	if err := readJSON(ctx, ws, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func readJSON(ctx context.Context, ws *websocket.Conn, v *serverMessage) error {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(t *testing.T, ws *websocket.Conn, v clientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandler_WelcomeThenSessionStart(t *testing.T) {
	mock := clock.NewMock()
	h := testHandler(mock)
	ws, done := dial(t, h)
	defer done()

	first := readMessage(t, ws)
	if first.Type != msgNarration || first.Narration.Step != "instruction" {
		t.Fatalf("first message: %+v", first)
	}
	if h.hub.Count() != 1 {
		t.Errorf("expected one registered session, got %d", h.hub.Count())
	}

	// The read loop answers keepalives during the narration.
	writeJSON(t, ws, clientMessage{Type: "ping"})
	if msg := readMessage(t, ws); msg.Type != msgPong {
		t.Fatalf("expected pong, got %+v", msg)
	}

	// Drive the whole 46-second narration.
	mock.Add(46 * time.Second)

	steps := []string{}
	for {
		msg := readMessage(t, ws)
		if msg.Type == msgSessionReady {
			break
		}
		if msg.Type != msgNarration {
			t.Fatalf("expected narration, got %+v", msg)
		}
		steps = append(steps, msg.Narration.Step)
	}
	if len(steps) != 10 || steps[len(steps)-1] != "complete" {
		t.Fatalf("narration steps: %v", steps)
	}

	state := readMessage(t, ws)
	if state.Type != msgState || state.State.Phase != session.PhaseInitialBreathing {
		t.Fatalf("expected initial breathing state, got %+v", state)
	}
	if state.State.AudioTrackURL != "/audio/ambient.mp3" {
		t.Errorf("state missing track url: %+v", state.State)
	}
}

func TestHandler_NewSessionSendsResetAndCloses(t *testing.T) {
	mock := clock.NewMock()
	h := testHandler(mock)
	ws, done := dial(t, h)
	defer done()

	if msg := readMessage(t, ws); msg.Type != msgNarration {
		t.Fatalf("expected narration, got %+v", msg)
	}

	writeJSON(t, ws, clientMessage{Type: "action", Action: actionNewSession})
	if msg := readMessage(t, ws); msg.Type != msgReset {
		t.Fatalf("expected reset, got %+v", msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg serverMessage
	if err := readJSON(ctx, ws, &msg); err == nil {
		t.Fatalf("connection should close after reset, got %+v", msg)
	}
}

func TestHandler_UnknownActionReported(t *testing.T) {
	mock := clock.NewMock()
	h := testHandler(mock)
	ws, done := dial(t, h)
	defer done()

	if msg := readMessage(t, ws); msg.Type != msgNarration {
		t.Fatalf("expected narration, got %+v", msg)
	}

	writeJSON(t, ws, clientMessage{Type: "action", Action: "summon_dragon"})
	if msg := readMessage(t, ws); msg.Type != msgError || msg.Error != "unknown_action" {
		t.Fatalf("expected unknown_action error, got %+v", msg)
	}
}

func TestHandler_OriginRejectedOutsideDev(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Hub:           NewHub(),
		Responder:     stubResponder{},
		AllowedOrigin: "https://app.example.com",
		IsDev:         false,
	})

	r := httptest.NewRequest(http.MethodGet, "/ws/session", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}
