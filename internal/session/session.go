package session

import (
	"github.com/tmehta/shanti/internal/breathing"
	"github.com/tmehta/shanti/internal/conversation"
	"github.com/tmehta/shanti/internal/interlude"
)

// Snapshot is the full observable session state pushed to the host after
// every change. Sub-states are present only for the phases they belong to.
type Snapshot struct {
	SessionID         string              `json:"sessionId"`
	Phase             Phase               `json:"phase"`
	AudioTrackURL     string              `json:"audioTrackUrl,omitempty"`
	Breathing         *breathing.Run      `json:"breathing,omitempty"`
	Interlude         *interlude.Run      `json:"interlude,omitempty"`
	Conversation      *conversation.State `json:"conversation,omitempty"`
	ShowManualStart   bool                `json:"showManualStart,omitempty"`
	FeedbackSubmitted bool                `json:"feedbackSubmitted,omitempty"`
}

// Publisher receives state snapshots for delivery to the host.
type Publisher interface {
	Publish(Snapshot)
}

// FeedbackMeta carries the host environment details attached to a feedback
// submission.
type FeedbackMeta struct {
	UserAgent string
	Platform  string
	Language  string
}
