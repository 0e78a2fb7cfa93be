package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalSchedulerRunsImmediatelyThenTicks(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	s := NewIntervalScheduler(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx, func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop(context.Background())

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 runs, got %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestIntervalSchedulerStop(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	s := NewIntervalScheduler(5 * time.Millisecond)

	if err := s.Start(context.Background(), func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	// Let the immediate run land, then stop and verify no further runs.
	for runs.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if got := runs.Load(); got > settled+1 {
		t.Fatalf("scheduler kept running after Stop: %d runs after %d", got, settled)
	}

	// Stopping twice is harmless.
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop error: %v", err)
	}
}

func TestIntervalSchedulerStopWhileTicking(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	s := NewIntervalScheduler(time.Millisecond)

	// The context stays live: Stop on its own must terminate the goroutine.
	ctx := context.Background()

	if err := s.Start(ctx, func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	for runs.Load() < 3 {
		time.Sleep(time.Millisecond)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	settled := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if got := runs.Load(); got > settled+1 {
		t.Fatalf("goroutine survived Stop: %d runs after %d", got, settled)
	}

	// A stopped scheduler restarts cleanly.
	var second atomic.Int64
	if err := s.Start(ctx, func(time.Time) { second.Add(1) }); err != nil {
		t.Fatalf("restart error: %v", err)
	}
	defer s.Stop(ctx)

	deadline := time.After(2 * time.Second)
	for second.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("restarted scheduler never ran")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestIntervalSchedulerNilJob(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(time.Millisecond)
	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start with nil job: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
}
