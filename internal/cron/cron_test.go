package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseEvery(t *testing.T) {
	d, err := ParseEvery("@every 100ms")
	if err != nil || d != 100*time.Millisecond {
		t.Fatalf("parse every: %v %v", d, err)
	}
	if _, err := ParseEvery("* * * * *"); err == nil {
		t.Fatalf("expected error for unsupported cron expr")
	}
}

func TestParseEveryInvalid(t *testing.T) {
	if _, err := ParseEvery("every 1s"); err == nil { // missing '@'
		t.Fatalf("expected error for bad format")
	}
	if _, err := ParseEvery("@every -1s"); err == nil {
		t.Fatalf("expected error for non-positive duration")
	}
	if _, err := ParseEvery("@every soon"); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestSchedulerAddValidation(t *testing.T) {
	s := NewScheduler(quiet())
	run := func(context.Context) error { return nil }

	if err := s.Add(&Job{Schedule: "@every 1s", Run: run}); err == nil {
		t.Fatalf("expected error for empty job name")
	}
	if err := s.Add(&Job{Name: "a", Run: run}); err == nil {
		t.Fatalf("expected error for empty schedule")
	}
	if err := s.Add(&Job{Name: "b", Schedule: "@every 1s"}); err == nil {
		t.Fatalf("expected error for missing run func")
	}
	if err := s.Add(&Job{Name: "c", Schedule: "not@every", Run: run}); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
	if err := s.Add(&Job{Name: "ok", Schedule: "@every 1s", Run: run}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Add(&Job{Name: "ok", Schedule: "@every 1s", Run: run}); err == nil {
		t.Fatalf("expected error for duplicate name")
	}
}

func TestSchedulerRunsAndNonOverlap(t *testing.T) {
	s := NewScheduler(quiet())
	var active, maxActive atomic.Int32
	job := &Job{
		Name:     "j1",
		Schedule: "@every 10ms",
		Run: func(ctx context.Context) error {
			n := active.Add(1)
			defer active.Add(-1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
			}
			return nil
		},
	}
	if err := s.Add(job); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for job.Skipped() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()

	if job.Runs() == 0 {
		t.Fatalf("expected the job to run at least once")
	}
	if job.Skipped() == 0 {
		t.Fatalf("expected overlapping ticks to be skipped")
	}
	if maxActive.Load() != 1 {
		t.Fatalf("expected at most one active run, saw %d", maxActive.Load())
	}
}

func TestSchedulerRunAtStartAndErrors(t *testing.T) {
	s := NewScheduler(quiet())
	fired := make(chan struct{}, 1)
	job := &Job{
		Name:       "boom",
		Schedule:   "@every 1h",
		RunAtStart: true,
		Run: func(context.Context) error {
			fired <- struct{}{}
			return errors.New("boom")
		},
	}
	if err := s.Add(job); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("expected an immediate run")
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error on second start")
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	NewScheduler(nil).Stop()
}
