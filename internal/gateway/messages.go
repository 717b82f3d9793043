package gateway

import (
	"github.com/tmehta/shanti/internal/breathing"
	"github.com/tmehta/shanti/internal/session"
)

// clientMessage is the envelope for everything the host sends. Type "ping"
// is a keepalive; type "action" carries one user action.
type clientMessage struct {
	Type     string `json:"type"`
	Action   string `json:"action,omitempty"`
	Text     string `json:"text,omitempty"`
	Platform string `json:"platform,omitempty"`
	Language string `json:"language,omitempty"`
}

const (
	actionStartMusic     = "start_music"
	actionSkipToChat     = "skip_to_chat"
	actionSendMessage    = "send_message"
	actionCloseSession   = "close_session"
	actionNewSession     = "new_session"
	actionStartBreathing = "start_breathing"
	actionGoToFeedback   = "go_to_feedback"
	actionSubmitFeedback = "submit_feedback"
	actionAudioReady     = "audio_ready"
	actionAudioError     = "audio_error"
	actionSync           = "sync"
)

// serverMessage is the envelope for everything pushed to the host.
type serverMessage struct {
	Type      string            `json:"type"`
	State     *session.Snapshot `json:"state,omitempty"`
	Narration *narrationPayload `json:"narration,omitempty"`
	Audio     *audioCommand     `json:"audio,omitempty"`
	Error     string            `json:"error,omitempty"`
}

const (
	msgState        = "state"
	msgNarration    = "narration"
	msgSessionReady = "session_ready"
	msgAudio        = "audio"
	msgReset        = "reset"
	msgPong         = "pong"
	msgError        = "error"
)

// narrationPayload is one step of the narrated welcome sequence.
type narrationPayload struct {
	Step       string             `json:"step"`
	SubPhase   breathing.SubPhase `json:"subPhase,omitempty"`
	Text       string             `json:"text"`
	DurationMs int64              `json:"durationMs"`
}

// audioCommand drives the host's audio element.
type audioCommand struct {
	Command string `json:"command"` // play, pause, rewind, loop
	Loop    bool   `json:"loop,omitempty"`
}
