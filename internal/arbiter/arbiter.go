// Package arbiter implements the tuner arbiter (C1): round-robin placement
// across a fixed tuner pool, with priority-based preemption gated by
// ENABLE_PREEMPTION. The shape (mutex-guarded slice, context-aware wait loop,
// small sleep-then-retry budget) follows the teacher's sdtprobe worker's
// waitForQuiet/sweep pacing rather than a condition-variable design.
package arbiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Kind identifies why a tuner is being requested. The constants are ordered
// EPG < Live < DVR; which kind may preempt which is decided by
// findPreemptable (Live never preempts EPG).
type Kind int

const (
	EPG Kind = iota
	Live
	DVR
)

func (k Kind) String() string {
	switch k {
	case EPG:
		return "epg"
	case Live:
		return "live"
	case DVR:
		return "dvr"
	default:
		return "unknown"
	}
}

func priority(k Kind) int {
	switch k {
	case DVR:
		return 2
	case Live:
		return 1
	default:
		return 0
	}
}

// preemptTimeout bounds how long Acquire waits for a preempted lease to
// drain before giving up on that tuner and looking elsewhere.
const preemptTimeout = 3 * time.Second
const preemptPoll = 200 * time.Millisecond

// totalBudget bounds the whole Acquire call, across however many
// wait-then-retry rounds it takes.
const totalBudget = 5 * time.Second

// ErrNoTuner is returned once Acquire exhausts its retry budget.
var ErrNoTuner = fmt.Errorf("arbiter: no tuner available")

type slot struct {
	kind    Kind
	leaseID uint64
	busy    bool
	// revoke, when non-nil, asks the holder of this slot to release it at
	// its next opportunity (set by a preempting Acquire call).
	revoke chan struct{}
}

// Lease represents a granted tuner hold. Callers pass it back to Release.
type Lease struct {
	TunerID int
	Kind    Kind
	id      uint64
}

// Preempted returns a channel that's closed when a higher-priority request
// wants this tuner back. Sessions/scans should watch it and wind down.
func (a *Arbiter) Preempted(l *Lease) <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := &a.slots[l.TunerID]
	if s.revoke == nil {
		s.revoke = make(chan struct{})
	}
	return s.revoke
}

// Arbiter owns a fixed-size pool of tuners and arbitrates access to it.
type Arbiter struct {
	mu          sync.Mutex
	slots       []slot
	lastGranted int
	nextLeaseID uint64
	preemption  bool
	limiter     *rate.Limiter
}

// New builds an Arbiter over n tuners. enablePreemption mirrors
// config.Config.EnablePreemption.
func New(n int, enablePreemption bool) *Arbiter {
	return &Arbiter{
		slots:       make([]slot, n),
		lastGranted: n - 1,
		preemption:  enablePreemption,
		limiter:     rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// Len returns the configured tuner count.
func (a *Arbiter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}

// IsAllIdle reports whether every tuner is currently free. The EPG scan
// orchestrator polls this before starting a capture sweep.
func (a *Arbiter) IsAllIdle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.slots {
		if s.busy {
			return false
		}
	}
	return true
}

// InUse returns the number of tuners currently leased.
func (a *Arbiter) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.slots {
		if s.busy {
			n++
		}
	}
	return n
}

// Acquire grants a tuner lease for kind, preempting a lower-priority holder
// if necessary and permitted, and retrying within a roughly 5s budget
// before giving up.
func (a *Arbiter) Acquire(ctx context.Context, kind Kind) (*Lease, error) {
	deadline := time.Now().Add(totalBudget)
	for {
		if l := a.tryGrant(kind); l != nil {
			return l, nil
		}

		tunerID, ok := a.findPreemptable(kind)
		if ok {
			if l := a.waitForPreempted(ctx, tunerID, kind, deadline); l != nil {
				return l, nil
			}
		}

		if time.Now().After(deadline) || ctx.Err() != nil {
			return nil, ErrNoTuner
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, ErrNoTuner
		}
		if time.Now().After(deadline) {
			return nil, ErrNoTuner
		}
	}
}

// tryGrant looks for a free tuner starting at (lastGranted+1) mod N.
func (a *Arbiter) tryGrant(kind Kind) *Lease {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.slots)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		idx := (a.lastGranted + 1 + i) % n
		if !a.slots[idx].busy {
			return a.grantLocked(idx, kind)
		}
	}
	return nil
}

func (a *Arbiter) grantLocked(idx int, kind Kind) *Lease {
	a.nextLeaseID++
	a.slots[idx] = slot{kind: kind, leaseID: a.nextLeaseID, busy: true}
	a.lastGranted = idx
	return &Lease{TunerID: idx, Kind: kind, id: a.nextLeaseID}
}

// findPreemptable returns the first busy tuner kind may legally preempt.
// EPG requests never preempt anything. DVR may preempt a Live or EPG
// holder. Live may preempt only another Live holder, and only when
// preemption is enabled; it must never preempt EPG, since an in-progress
// scan releases itself shortly on its own.
func (a *Arbiter) findPreemptable(kind Kind) (int, bool) {
	if kind == EPG || (kind == Live && !a.preemption) {
		return 0, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.slots)
	for i := 0; i < n; i++ {
		idx := (a.lastGranted + 1 + i) % n
		s := &a.slots[idx]
		if !s.busy {
			continue
		}
		switch kind {
		case DVR:
			if s.kind == Live || s.kind == EPG {
				return idx, true
			}
		case Live:
			if s.kind == Live {
				return idx, true
			}
		}
	}
	return 0, false
}

// waitForPreempted signals the current holder of tunerID to release and
// polls for up to preemptTimeout (bounded further by deadline) for it to
// free up, then grants it to kind.
func (a *Arbiter) waitForPreempted(ctx context.Context, tunerID int, kind Kind, deadline time.Time) *Lease {
	a.mu.Lock()
	s := &a.slots[tunerID]
	if s.revoke == nil {
		s.revoke = make(chan struct{})
	}
	select {
	case <-s.revoke:
	default:
		close(s.revoke)
	}
	a.mu.Unlock()

	until := time.Now().Add(preemptTimeout)
	if deadline.Before(until) {
		until = deadline
	}
	ticker := time.NewTicker(preemptPoll)
	defer ticker.Stop()
	for time.Now().Before(until) {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		a.mu.Lock()
		if !a.slots[tunerID].busy {
			l := a.grantLocked(tunerID, kind)
			a.mu.Unlock()
			return l
		}
		a.mu.Unlock()
	}
	return nil
}

// Release frees the tuner held by l. Releasing a stale or already-released
// lease is a no-op, matching the idempotent-teardown idiom used throughout
// this gateway's child-process supervision.
func (a *Arbiter) Release(l *Lease) {
	if l == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if l.TunerID < 0 || l.TunerID >= len(a.slots) {
		return
	}
	s := &a.slots[l.TunerID]
	if !s.busy || s.leaseID != l.id {
		return
	}
	*s = slot{}
}
