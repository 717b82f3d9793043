package gateway

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeRunner struct {
	mu     sync.Mutex
	last   time.Time
	closed bool
}

func (f *fakeRunner) LastActive() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeRunner) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeRunner) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newClient(userID, connID string, last time.Time) (*Client, *fakeRunner) {
	r := &fakeRunner{last: last}
	return &Client{UserID: userID, ConnID: connID, Runner: r}, r
}

func TestHub_RegisterAndGet(t *testing.T) {
	h := NewHub()
	c, _ := newClient("user123", "conn-1", time.Now())

	h.Register(c)

	if got := h.Get("user123", "conn-1"); got != c {
		t.Errorf("expected client %v, got %v", c, got)
	}
	if h.Count() != 1 {
		t.Errorf("expected count 1, got %d", h.Count())
	}
}

func TestHub_Unregister(t *testing.T) {
	h := NewHub()
	c, _ := newClient("user123", "conn-1", time.Now())

	h.Register(c)
	h.Unregister(c)

	if got := h.Get("user123", "conn-1"); got != nil {
		t.Errorf("expected nil client, got %v", got)
	}
}

func TestHub_UnregisterStale(t *testing.T) {
	h := NewHub()
	c1, _ := newClient("user123", "conn-1", time.Now())
	c2, _ := newClient("user123", "conn-2", time.Now())

	h.Register(c1)
	h.Register(c2)
	h.Unregister(c1)

	if got := h.Get("user123", "conn-2"); got != c2 {
		t.Errorf("the other connection must remain, got %v", got)
	}
}

func TestHub_CloseUser(t *testing.T) {
	h := NewHub()
	c, r := newClient("user123", "conn-1", time.Now())
	closedReason := ""
	c.CloseConn = func(reason string) { closedReason = reason }

	h.Register(c)
	h.CloseUser("user123")

	if !r.isClosed() {
		t.Error("runner must be closed")
	}
	if closedReason == "" {
		t.Error("transport must be closed")
	}
	if h.Count() != 0 {
		t.Errorf("expected empty hub, got %d", h.Count())
	}
}

func TestHub_SweepIdle(t *testing.T) {
	h := NewHub()
	now := time.Now()
	idle, idleRunner := newClient("idler", "conn-1", now.Add(-2*time.Hour))
	fresh, freshRunner := newClient("active", "conn-2", now)

	h.Register(idle)
	h.Register(fresh)

	if n := h.SweepIdle(now.Add(-time.Hour)); n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if !idleRunner.isClosed() {
		t.Error("idle runner must be closed")
	}
	if freshRunner.isClosed() {
		t.Error("active runner must survive the sweep")
	}
	if got := h.Get("active", "conn-2"); got != fresh {
		t.Errorf("active client must stay registered, got %v", got)
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := NewHub()
	userID := "concurrentUser"

	go func() {
		for i := 0; i < 1000; i++ {
			c, _ := newClient(userID, "conn-"+strconv.Itoa(i), time.Now())
			h.Register(c)
		}
	}()

	go func() {
		for i := 0; i < 1000; i++ {
			h.Get(userID, "conn-"+strconv.Itoa(i))
		}
	}()

	time.Sleep(100 * time.Millisecond)
}
