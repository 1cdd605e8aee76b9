package readiness

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGateWaitTimesOutWithTypedError(t *testing.T) {
	g := NewGate("embedding model")
	release := make(chan struct{})
	defer close(release)
	g.Start(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})

	err := g.Wait(context.Background(), 20*time.Millisecond)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected *TimeoutError, got %v", err)
	}
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("timeout should match ErrNotReady")
	}
	if g.Ready() {
		t.Fatalf("gate should not be ready")
	}
}

func TestGateWaitReturnsAfterWarmup(t *testing.T) {
	g := NewGate("embedding model")
	g.Start(context.Background(), func(ctx context.Context) error { return nil })
	if err := g.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !g.Ready() {
		t.Fatalf("gate should be ready")
	}
}

func TestGateWaitSurfacesWarmupFailure(t *testing.T) {
	boom := errors.New("model pull failed")
	g := NewGate("embedding model")
	g.Start(context.Background(), func(ctx context.Context) error { return boom })
	for i := 0; i < 2; i++ {
		if err := g.Wait(context.Background(), time.Second); !errors.Is(err, boom) {
			t.Fatalf("wait #%d = %v, want %v", i, err, boom)
		}
	}
	if g.Ready() {
		t.Fatalf("failed warm-up must not mark gate ready")
	}
}

func TestGateStartRunsOnce(t *testing.T) {
	g := NewGate("")
	calls := 0
	g.Start(context.Background(), func(ctx context.Context) error { calls++; return nil })
	g.Start(context.Background(), func(ctx context.Context) error { calls++; return nil })
	if err := g.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if calls != 1 {
		t.Fatalf("warm-up ran %d times, want 1", calls)
	}
}

func TestGateOpen(t *testing.T) {
	g := NewGate("x")
	g.Open()
	if !g.Ready() {
		t.Fatalf("opened gate should be ready")
	}
}
