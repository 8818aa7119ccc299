package readiness

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerStartsNotReady(t *testing.T) {
	mgr := NewManager()
	if mgr.GetState() != StateNotReady {
		t.Fatalf("expected not_ready, got %s", mgr.GetState())
	}
	if mgr.IsReady() {
		t.Fatalf("fresh manager must not report ready")
	}
}

func TestManagerWaitUntilReadyResetsAfterRegression(t *testing.T) {
	mgr := NewManager()
	mgr.SetState(StateStarting)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- mgr.WaitUntilReady(ctx)
	}()

	select {
	case <-time.After(20 * time.Millisecond):
	case err := <-done:
		t.Fatalf("expected wait to block, got %v", err)
	}

	mgr.SetState(StateReady)

	if err := <-done; err != nil {
		t.Fatalf("expected wait to succeed after readiness, got %v", err)
	}

	mgr.SetState(StateStopping)

	regressionCtx, regressionCancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer regressionCancel()

	start := time.Now()
	if err := mgr.WaitUntilReady(regressionCtx); err == nil {
		t.Fatalf("expected wait to block when readiness regressed")
	} else if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("wait returned too quickly after regression")
	}

	mgr.SetState(StateReady)
	if err := mgr.WaitUntilReady(context.Background()); err != nil {
		t.Fatalf("expected immediate success after readiness restored, got %v", err)
	}
}

func TestManagerWaitUntilReadyTimeout(t *testing.T) {
	mgr := NewManager()

	err := mgr.WaitUntilReadyTimeout(10 * time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
