// Package api provides the small HTTP surface next to the WebSocket gateway.
package api

import (
	"encoding/json"
	"net/http"
)

// SessionCounter reports how many sessions are currently connected.
type SessionCounter interface {
	Count() int
}

// Handler serves the JSON endpoints.
type Handler struct {
	sessions         SessionCounter
	responderEnabled bool
	feedbackEnabled  bool
}

// NewHandler creates a Handler.
func NewHandler(sessions SessionCounter, responderEnabled, feedbackEnabled bool) *Handler {
	return &Handler{
		sessions:         sessions,
		responderEnabled: responderEnabled,
		feedbackEnabled:  feedbackEnabled,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Health reports service liveness and the degradation flags: a session works
// without the responder or the feedback sink, just with local prompts.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":              "ok",
		"activeSessions":      h.sessions.Count(),
		"responderConfigured": h.responderEnabled,
		"feedbackConfigured":  h.feedbackEnabled,
	})
}
