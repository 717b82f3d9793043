package gateway

import (
	"sync"

	"github.com/tmehta/shanti/internal/session"
)

// snapshotRing keeps the most recent published snapshots so a host-initiated
// sync can replay the current state without going back to the orchestrator.
// Fixed size; old entries are overwritten.
type snapshotRing struct {
	mu    sync.Mutex
	buf   []session.Snapshot
	head  int
	count int
	total uint64
}

const defaultRingSize = 16

func newSnapshotRing(size int) *snapshotRing {
	if size <= 0 {
		size = defaultRingSize
	}
	return &snapshotRing{buf: make([]session.Snapshot, size)}
}

// Push appends a snapshot, overwriting the oldest entry when full.
func (r *snapshotRing) Push(s session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.total++
}

// Latest returns the most recently pushed snapshot.
func (r *snapshotRing) Latest() (session.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return session.Snapshot{}, false
	}
	idx := (r.head - 1 + len(r.buf)) % len(r.buf)
	return r.buf[idx], true
}

// Recent returns up to n snapshots, oldest first.
func (r *snapshotRing) Recent(n int) []session.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.count {
		n = r.count
	}
	out := make([]session.Snapshot, 0, n)
	for i := n; i > 0; i-- {
		idx := (r.head - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Total returns the all-time push count, including overwritten entries.
func (r *snapshotRing) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
