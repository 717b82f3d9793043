package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type fakeHub struct {
	mu      sync.Mutex
	cutoffs []time.Time
	closed  int
}

func (f *fakeHub) SweepIdle(cutoff time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.closed
}

func (f *fakeHub) sweeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func waitForSweeps(t *testing.T, hub *fakeHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.sweeps() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d sweeps, got %d", want, hub.sweeps())
}

func TestReaper_SweepsOnInterval(t *testing.T) {
	mock := clock.NewMock()
	hub := &fakeHub{closed: 2}
	r := New(mock, hub, 30*time.Minute, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	mock.Add(time.Minute)
	waitForSweeps(t, hub, 1)

	mock.Add(time.Minute)
	waitForSweeps(t, hub, 2)

	mock.Add(time.Minute)
	waitForSweeps(t, hub, 3)

	hub.mu.Lock()
	cutoff := hub.cutoffs[0]
	hub.mu.Unlock()
	want := mock.Now().Add(-30 * time.Minute)
	if cutoff.After(want) {
		t.Errorf("cutoff %v is newer than now-ttl %v", cutoff, want)
	}
}

func TestReaper_StopsOnContextDone(t *testing.T) {
	mock := clock.NewMock()
	hub := &fakeHub{}
	r := New(mock, hub, 30*time.Minute, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	// Give the loop a moment to observe cancellation, then verify ticks no
	// longer reach the hub.
	time.Sleep(20 * time.Millisecond)
	before := hub.sweeps()
	mock.Add(5 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if hub.sweeps() != before {
		t.Errorf("sweeps after cancel: %d -> %d", before, hub.sweeps())
	}
}
