// Package reaper closes sessions whose hosts have gone quiet. A browser tab
// left open holds its connection forever; the reaper reclaims it once the
// idle TTL passes.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

const sweepInterval = time.Minute

// Hub is the connection registry being swept.
type Hub interface {
	SweepIdle(cutoff time.Time) int
}

// Reaper periodically sweeps idle sessions out of a hub.
type Reaper struct {
	clk      clock.Clock
	hub      Hub
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// New creates a reaper. A non-positive interval falls back to the default.
func New(clk clock.Clock, hub Hub, ttl, interval time.Duration, logger *slog.Logger) *Reaper {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = sweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{clk: clk, hub: hub, ttl: ttl, interval: interval, logger: logger}
}

// Start runs the sweep loop in a background goroutine until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	ticker := r.clk.Ticker(r.interval)
	go func() {
		defer ticker.Stop()
		r.logger.Info("idle reaper started", "interval", r.interval, "ttl", r.ttl)

		for {
			select {
			case <-ticker.C:
				cutoff := r.clk.Now().Add(-r.ttl)
				if n := r.hub.SweepIdle(cutoff); n > 0 {
					r.logger.Info("idle sessions closed", "count", n)
				}
			case <-ctx.Done():
				r.logger.Info("idle reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
