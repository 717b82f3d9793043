package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/tmehta/shanti/internal/breathing"
	"github.com/tmehta/shanti/internal/conversation"
	"github.com/tmehta/shanti/internal/convlog"
	"github.com/tmehta/shanti/internal/feedback"
	"github.com/tmehta/shanti/internal/identity"
	"github.com/tmehta/shanti/internal/session"
)

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Hub           *Hub
	Responder     conversation.Responder
	Feedback      *feedback.Client
	Diag          *convlog.Logger
	Clock         clock.Clock
	Timings       session.Timings
	AudioTrackURL string
	AllowedOrigin string
	IsDev         bool
	Logger        *slog.Logger
}

// Handler upgrades /ws/session requests and runs one session per connection.
type Handler struct {
	hub           *Hub
	responder     conversation.Responder
	fb            *feedback.Client
	diag          *convlog.Logger
	clk           clock.Clock
	timings       session.Timings
	audioTrackURL string
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewHandler creates a session gateway handler.
func NewHandler(cfg HandlerConfig) *Handler {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:           cfg.Hub,
		responder:     cfg.Responder,
		fb:            cfg.Feedback,
		diag:          cfg.Diag,
		clk:           clk,
		timings:       cfg.Timings,
		audioTrackURL: cfg.AudioTrackURL,
		allowedOrigin: cfg.AllowedOrigin,
		isDev:         cfg.IsDev,
		logger:        logger,
	}
}

// wsSession is the per-connection write side. It serializes writes and
// implements both the snapshot publisher and the host audio element.
type wsSession struct {
	ws     *websocket.Conn
	logger *slog.Logger
	ring   *snapshotRing

	mu sync.Mutex
}

func (s *wsSession) send(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to encode server message", "error", err, "type", msg.Type)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ws.Write(context.Background(), websocket.MessageText, data); err != nil {
		s.logger.Debug("websocket write failed", "error", err, "type", msg.Type)
	}
}

// Publish pushes a state snapshot to the host.
func (s *wsSession) Publish(snap session.Snapshot) {
	s.ring.Push(snap)
	s.send(serverMessage{Type: msgState, State: &snap})
}

func (s *wsSession) audio(command string, loop bool) {
	s.send(serverMessage{Type: msgAudio, Audio: &audioCommand{Command: command, Loop: loop}})
}

func (s *wsSession) Play()   { s.audio("play", false) }
func (s *wsSession) Pause()  { s.audio("pause", false) }
func (s *wsSession) Rewind() { s.audio("rewind", false) }
func (s *wsSession) SetLoop(loop bool) {
	s.audio("loop", loop)
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	connID := ulid.Make().String()
	h.logger.Info("session connection request", "user_id", userID, "conn_id", connID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	sess := &wsSession{
		ws:     ws,
		logger: h.logger,
		ring:   newSnapshotRing(defaultRingSize),
	}

	orch := session.New(session.Deps{
		Clock:         h.clk,
		Responder:     h.responder,
		Feedback:      h.fb,
		Player:        sess,
		Publisher:     sess,
		Logger:        h.logger,
		Diag:          h.diag,
		Timings:       h.timings,
		AudioTrackURL: h.audioTrackURL,
		UserID:        userID,
		SessionID:     connID,
	})
	defer orch.Close()

	client := &Client{
		UserID: userID,
		ConnID: connID,
		Runner: orch,
		CloseConn: func(reason string) {
			_ = ws.Close(websocket.StatusGoingAway, reason)
		},
	}
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	// The narrated welcome runs before the session machine starts; the first
	// state snapshot follows the final narration step.
	script := breathing.NewScriptRunner(h.clk, breathing.WelcomeScript(), func(step breathing.Step) {
		sess.send(serverMessage{Type: msgNarration, Narration: &narrationPayload{
			Step:       step.Label,
			SubPhase:   step.SubPhase,
			Text:       step.Narration,
			DurationMs: step.Duration.Milliseconds(),
		}})
	}, func() {
		sess.send(serverMessage{Type: msgSessionReady})
		orch.Start()
	})
	defer script.Cancel()
	script.Run()

	h.readLoop(r, ws, sess, orch)
	h.logger.Info("session connection ended", "user_id", userID, "conn_id", connID, "updates_sent", sess.ring.Total())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(r *http.Request, ws *websocket.Conn, sess *wsSession, orch *session.Orchestrator) {
	ctx := r.Context()
	userAgent := r.Header.Get("User-Agent")

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("websocket closed by client", "user_id", identity.UserIDFromContext(ctx))
			} else {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.send(serverMessage{Type: msgError, Error: "malformed_message"})
			continue
		}

		if msg.Type == "ping" {
			sess.send(serverMessage{Type: msgPong})
			continue
		}

		orch.Touch()
		switch msg.Action {
		case actionStartMusic:
			orch.StartMusic()
		case actionSkipToChat:
			orch.SkipToChat(ctx)
		case actionSendMessage:
			orch.SubmitUserTurn(ctx, msg.Text)
		case actionCloseSession:
			orch.CloseConversation()
		case actionStartBreathing:
			orch.StartExtendedBreathing()
		case actionGoToFeedback:
			orch.GoToFeedback()
		case actionSubmitFeedback:
			orch.SubmitFeedback(msg.Text, session.FeedbackMeta{
				UserAgent: userAgent,
				Platform:  msg.Platform,
				Language:  msg.Language,
			})
		case actionAudioReady:
			orch.AudioReady()
		case actionAudioError:
			orch.AudioError()
		case actionSync:
			if snap, ok := sess.ring.Latest(); ok {
				sess.send(serverMessage{Type: msgState, State: &snap})
			} else {
				snap := orch.Snapshot()
				sess.send(serverMessage{Type: msgState, State: &snap})
			}
		case actionNewSession:
			// The host reconnects for a fresh session; this one dies with the
			// connection.
			sess.send(serverMessage{Type: msgReset})
			return
		default:
			sess.send(serverMessage{Type: msgError, Error: "unknown_action"})
		}
	}
}
