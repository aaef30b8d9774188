package slabq

import (
	"context"
	"errors"
	"sync"
	"time"
)

// signal is a broadcast wakeup primitive for in-process waiters, combined
// with a bounded poll tick so a waiter also notices state changes made by
// another process sharing the same storage directory (a broadcast only
// reaches goroutines in this process; a separate process advancing the
// same slab files leaves no in-process channel to close).
type signal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

// broadcast wakes every waiter currently blocked in wait.
func (s *signal) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.ch)
	s.ch = make(chan struct{})
}

// wait blocks until the next broadcast, poll elapses, or ctx is done,
// whichever comes first. A zero or negative poll disables the poll tick,
// relying on broadcast and ctx alone.
func (s *signal) wait(ctx context.Context, poll time.Duration) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	if poll <= 0 {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return errors.Join(ErrCancelled, ctx.Err())
		}
	}

	timer := time.NewTimer(poll)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Join(ErrCancelled, ctx.Err())
	}
}
