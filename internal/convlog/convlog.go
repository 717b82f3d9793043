// Package convlog writes per-session NDJSON conversation diagnostics.
// Logging is best-effort: a full queue drops events rather than blocking the
// session.
package convlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event types recorded by the conversation loop.
const (
	EventSessionStart = "session_start"
	EventTurnUser     = "turn_user"
	EventTurnAssist   = "turn_assistant"
	EventServiceError = "service_error"
	EventSessionEnd   = "session_end"
)

// Config controls NDJSON conversation logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one NDJSON line.
type Event struct {
	Timestamp string `json:"ts"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Logger writes events to dir/<user_id>/<session_id>.ndjson from a single
// background worker.
type Logger struct {
	cfg    Config
	logger *slog.Logger

	queue chan Event
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// New creates a logger. A disabled config yields a logger whose Log is a
// no-op, so call sites never need a nil check.
func New(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{cfg: cfg, logger: logger}
	if !cfg.Enabled {
		return l, nil
	}

	if cfg.Dir == "" {
		return nil, fmt.Errorf("conversation log dir cannot be empty")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
		l.cfg.QueueSize = cfg.QueueSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l.queue = make(chan Event, cfg.QueueSize)
	l.done = make(chan struct{})
	go l.worker()
	return l, nil
}

// Log enqueues an event. Never blocks; drops with a warning when the queue
// is full or the logger is disabled/closed.
func (l *Logger) Log(e Event) {
	if l == nil || l.queue == nil {
		return
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}

	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	select {
	case l.queue <- e:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"event_type", e.EventType, "session_id", e.SessionID)
	}
}

// Close drains the queue and stops the worker. Idempotent.
func (l *Logger) Close() error {
	if l == nil || l.queue == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.queue)
	<-l.done
	return nil
}

func (l *Logger) worker() {
	defer close(l.done)
	for e := range l.queue {
		if err := l.write(e); err != nil {
			l.logger.Warn("failed to write conversation log event", "error", err)
		}
	}
}

func (l *Logger) write(e Event) error {
	user := sanitizeComponent(e.UserID)
	session := sanitizeComponent(e.SessionID)

	dir := filepath.Join(l.cfg.Dir, user)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session log dir: %w", err)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode log event: %w", err)
	}

	path := filepath.Join(dir, session+".ndjson")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append session log: %w", err)
	}
	return nil
}

func sanitizeComponent(s string) string {
	if s == "" {
		return "unknown"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
