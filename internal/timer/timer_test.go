package timer

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestPhaseTimer_TicksUntilStop(t *testing.T) {
	mock := clock.NewMock()
	pt := New(mock)

	var ticks []int
	completions := 0
	pt.Start(time.Second, func(elapsed int) bool {
		ticks = append(ticks, elapsed)
		return elapsed < 3
	}, func() {
		completions++
	})

	mock.Add(5 * time.Second)

	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %v", ticks)
	}
	for i, e := range ticks {
		if e != i+1 {
			t.Errorf("tick %d reported elapsed %d", i, e)
		}
	}
	if completions != 1 {
		t.Errorf("expected completion to fire exactly once, got %d", completions)
	}
	if pt.Running() {
		t.Error("timer should not be running after natural completion")
	}
}

func TestPhaseTimer_CancelStopsTicks(t *testing.T) {
	mock := clock.NewMock()
	pt := New(mock)

	ticks := 0
	completions := 0
	pt.Start(time.Second, func(int) bool {
		ticks++
		return true
	}, func() {
		completions++
	})

	mock.Add(2 * time.Second)
	pt.Cancel()
	mock.Add(5 * time.Second)

	if ticks != 2 {
		t.Errorf("expected 2 ticks before cancel, got %d", ticks)
	}
	if completions != 0 {
		t.Errorf("cancel must not fire completion, got %d", completions)
	}
}

func TestPhaseTimer_CancelIdempotent(t *testing.T) {
	mock := clock.NewMock()
	pt := New(mock)

	// Never started.
	pt.Cancel()
	pt.Cancel()

	pt.Start(time.Second, func(int) bool { return true }, nil)
	pt.Cancel()
	pt.Cancel()

	mock.Add(3 * time.Second)
	if pt.Running() {
		t.Error("timer should be stopped")
	}
}

func TestPhaseTimer_StartCancelsPrevious(t *testing.T) {
	mock := clock.NewMock()
	pt := New(mock)

	firstTicks := 0
	pt.Start(time.Second, func(int) bool {
		firstTicks++
		return true
	}, nil)

	mock.Add(time.Second)

	secondTicks := 0
	pt.Start(time.Second, func(int) bool {
		secondTicks++
		return true
	}, nil)

	mock.Add(3 * time.Second)

	if firstTicks != 1 {
		t.Errorf("previous run must stop when a new run starts, got %d ticks", firstTicks)
	}
	if secondTicks != 3 {
		t.Errorf("expected 3 ticks from the new run, got %d", secondTicks)
	}
}

func TestPhaseTimer_CancelFromInsideTick(t *testing.T) {
	mock := clock.NewMock()
	pt := New(mock)

	ticks := 0
	pt.Start(time.Second, func(int) bool {
		ticks++
		pt.Cancel()
		return true
	}, nil)

	mock.Add(4 * time.Second)
	if ticks != 1 {
		t.Errorf("expected a single tick, got %d", ticks)
	}
}
