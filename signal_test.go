package slabq

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSignalBroadcastWakesWaiter(t *testing.T) {
	s := newSignal()
	done := make(chan error, 1)

	go func() {
		done <- s.wait(context.Background(), time.Hour)
	}()

	time.Sleep(10 * time.Millisecond) // give the goroutine time to start waiting
	s.broadcast()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Failed test: wait returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Failed test: wait did not return after broadcast")
	}
}

func TestSignalWaitReturnsOnPollTick(t *testing.T) {
	s := newSignal()
	if err := s.wait(context.Background(), 5*time.Millisecond); err != nil {
		t.Errorf("Failed test: wait returned %v, want nil after poll tick", err)
	}
}

func TestSignalWaitReturnsOnContextCancellation(t *testing.T) {
	s := newSignal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.wait(ctx, time.Hour)
	if err == nil {
		t.Fatal("Failed test: expected error on cancelled context")
	}
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("Failed test: expect errors.Is(err, ErrCancelled), got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Failed test: expect errors.Is(err, context.Canceled), got %v", err)
	}
}
