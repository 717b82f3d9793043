// Package gateway is the WebSocket transport between a browser host and its
// session orchestrator: one connection, one orchestrator, torn down together.
package gateway

import (
	"log/slog"
	"sync"
	"time"
)

// Runner is the per-connection session the hub tracks.
type Runner interface {
	LastActive() time.Time
	Close()
}

// Client is one registered connection.
type Client struct {
	UserID string
	ConnID string
	Runner Runner
	// CloseConn closes the underlying transport with a reason. The read loop
	// then unwinds and unregisters the client.
	CloseConn func(reason string)
}

// Hub tracks active connections per user.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]map[string]*Client)}
}

// Register adds a connection for a user.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[c.UserID]; !exists {
		h.active[c.UserID] = make(map[string]*Client)
	}
	h.active[c.UserID][c.ConnID] = c
	slog.Info("session registered", "user_id", c.UserID, "conn_id", c.ConnID)
}

// Unregister removes a connection if it is still the registered one.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.active[c.UserID]; ok {
		if current, exists := conns[c.ConnID]; exists && current == c {
			delete(conns, c.ConnID)
			if len(conns) == 0 {
				delete(h.active, c.UserID)
			}
			slog.Info("session unregistered", "user_id", c.UserID, "conn_id", c.ConnID)
		}
	}
}

// Get returns the client for a user and connection, or nil.
func (h *Hub) Get(userID, connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conns, ok := h.active[userID]; ok {
		return conns[connID]
	}
	return nil
}

// Count returns the number of active connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.active {
		n += len(conns)
	}
	return n
}

// CloseUser closes every connection a user holds.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	conns := h.active[userID]
	delete(h.active, userID)
	h.mu.Unlock()

	for _, c := range conns {
		c.Runner.Close()
		if c.CloseConn != nil {
			c.CloseConn("session closed")
		}
		slog.Info("session closed", "user_id", c.UserID, "conn_id", c.ConnID)
	}
}

// SweepIdle closes every session whose last activity is before cutoff and
// returns how many were closed.
func (h *Hub) SweepIdle(cutoff time.Time) int {
	h.mu.Lock()
	var idle []*Client
	for _, conns := range h.active {
		for _, c := range conns {
			if c.Runner.LastActive().Before(cutoff) {
				idle = append(idle, c)
			}
		}
	}
	for _, c := range idle {
		delete(h.active[c.UserID], c.ConnID)
		if len(h.active[c.UserID]) == 0 {
			delete(h.active, c.UserID)
		}
	}
	h.mu.Unlock()

	for _, c := range idle {
		c.Runner.Close()
		if c.CloseConn != nil {
			c.CloseConn("idle timeout")
		}
		slog.Info("idle session closed", "user_id", c.UserID, "conn_id", c.ConnID)
	}
	return len(idle)
}
