// Package readiness gates request handling on a one-time background warm-up,
// such as pulling and probing an embedding model.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotReady is matched by every timeout returned from Gate.Wait.
var ErrNotReady = errors.New("dependency not ready")

// TimeoutError reports that the warm-up did not finish within the allowed wait.
type TimeoutError struct {
	Name   string
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s not ready after %s", e.Name, e.Waited)
}

// Is makes errors.Is(err, ErrNotReady) hold for timeouts.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrNotReady
}

// Gate is closed until its warm-up function returns.
type Gate struct {
	name  string
	once  sync.Once
	done  chan struct{}
	mu    sync.RWMutex
	err   error
	ready bool
}

// NewGate returns a gate that has not started yet.
func NewGate(name string) *Gate {
	if name == "" {
		name = "dependency"
	}
	return &Gate{name: name, done: make(chan struct{})}
}

// Start runs warm in a background goroutine. Only the first call has an effect.
func (g *Gate) Start(ctx context.Context, warm func(context.Context) error) {
	g.once.Do(func() {
		go func() {
			err := warm(ctx)
			g.mu.Lock()
			g.err = err
			g.ready = err == nil
			g.mu.Unlock()
			close(g.done)
		}()
	})
}

// Open marks the gate ready without a warm-up.
func (g *Gate) Open() {
	g.Start(context.Background(), func(context.Context) error { return nil })
	<-g.done
}

// Ready reports whether the warm-up finished successfully.
func (g *Gate) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}

// Err returns the warm-up error once the warm-up has finished.
func (g *Gate) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.err
}

// Wait blocks until the warm-up finishes, ctx ends, or timeout elapses.
// A finished warm-up that failed returns its error on every call.
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) error {
	select {
	case <-g.done:
		return g.Err()
	default:
	}
	if timeout <= 0 {
		return &TimeoutError{Name: g.name}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-g.done:
		return g.Err()
	case <-timer.C:
		return &TimeoutError{Name: g.name, Waited: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}
