package arbiter

import (
	"context"
	"testing"
	"time"
)

func TestAcquireRoundRobin(t *testing.T) {
	a := New(3, false)
	ctx := context.Background()

	l0, err := a.Acquire(ctx, Live)
	if err != nil {
		t.Fatalf("acquire 0: %v", err)
	}
	l1, err := a.Acquire(ctx, Live)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	if l0.TunerID == l1.TunerID {
		t.Fatalf("expected distinct tuners, got %d and %d", l0.TunerID, l1.TunerID)
	}
	if a.InUse() != 2 {
		t.Fatalf("InUse: got %d, want 2", a.InUse())
	}
}

func TestAcquireExhaustedReturnsErrWithoutPreemption(t *testing.T) {
	a := New(1, false)
	ctx := context.Background()
	if _, err := a.Acquire(ctx, Live); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	ctx2, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if _, err := a.Acquire(ctx2, Live); err != ErrNoTuner && err != context.DeadlineExceeded {
		t.Fatalf("expected no-tuner/deadline error, got %v", err)
	}
}

func TestEPGNeverPreempts(t *testing.T) {
	a := New(1, true)
	ctx := context.Background()
	if _, err := a.Acquire(ctx, Live); err != nil {
		t.Fatalf("live acquire: %v", err)
	}
	ctx2, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if _, err := a.Acquire(ctx2, EPG); err == nil {
		t.Fatal("expected EPG to fail to preempt a live lease")
	}
}

func TestLiveNeverPreemptsEPG(t *testing.T) {
	a := New(1, true)
	ctx := context.Background()
	if _, err := a.Acquire(ctx, EPG); err != nil {
		t.Fatalf("epg acquire: %v", err)
	}
	ctx2, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if _, err := a.Acquire(ctx2, Live); err == nil {
		t.Fatal("expected live to fail to preempt an in-progress epg scan")
	}
}

func TestLivePreemptsLiveOnlyWhenEnabled(t *testing.T) {
	a := New(1, false)
	ctx := context.Background()
	if _, err := a.Acquire(ctx, Live); err != nil {
		t.Fatalf("first live acquire: %v", err)
	}
	ctx2, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if _, err := a.Acquire(ctx2, Live); err == nil {
		t.Fatal("expected live-over-live preemption to be refused when disabled")
	}
}

func TestDVRPreemptsLiveWhenEnabled(t *testing.T) {
	a := New(1, true)
	ctx := context.Background()
	liveLease, err := a.Acquire(ctx, Live)
	if err != nil {
		t.Fatalf("live acquire: %v", err)
	}

	revoked := a.Preempted(liveLease)
	go func() {
		<-revoked
		time.Sleep(50 * time.Millisecond)
		a.Release(liveLease)
	}()

	ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	dvrLease, err := a.Acquire(ctx2, DVR)
	if err != nil {
		t.Fatalf("dvr preempt acquire: %v", err)
	}
	if dvrLease.TunerID != liveLease.TunerID {
		t.Fatalf("expected dvr to take over tuner %d, got %d", liveLease.TunerID, dvrLease.TunerID)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := New(1, false)
	ctx := context.Background()
	l, err := a.Acquire(ctx, Live)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	a.Release(l)
	a.Release(l)
	if a.InUse() != 0 {
		t.Fatalf("InUse after double release: got %d", a.InUse())
	}
}

func TestIsAllIdle(t *testing.T) {
	a := New(2, false)
	if !a.IsAllIdle() {
		t.Fatal("fresh arbiter should be all-idle")
	}
	l, err := a.Acquire(context.Background(), EPG)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if a.IsAllIdle() {
		t.Fatal("expected not all-idle with a lease held")
	}
	a.Release(l)
	if !a.IsAllIdle() {
		t.Fatal("expected all-idle again after release")
	}
}
