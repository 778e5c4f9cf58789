// Package cron runs functions on "@every <duration>" schedules.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Job is a scheduled function.
// Schedule supports only the form "@every <duration>" (e.g., "@every 1h").
// Non-overlap: while a run of the job is active, further ticks are skipped.
//
// Name must be unique across jobs inside the same Scheduler.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
	// RunAtStart fires the first run immediately instead of after one period.
	RunAtStart bool

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
}

// Runs is the number of runs started so far.
func (j *Job) Runs() int64 { return j.runs.Load() }

// Skipped is the number of ticks dropped because a run was still active.
func (j *Job) Skipped() int64 { return j.skipped.Load() }

// ParseEvery parses schedules of the form "@every <duration>".
func ParseEvery(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "@every ") {
		return 0, fmt.Errorf("unsupported schedule: %s (only @every <duration> supported)", expr)
	}
	durStr := strings.TrimSpace(strings.TrimPrefix(expr, "@every "))
	d, err := time.ParseDuration(durStr)
	if err != nil {
		return 0, fmt.Errorf("invalid @every duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("@every duration must be > 0")
	}
	return d, nil
}

func (j *Job) validate() error {
	if j.Name == "" {
		return errors.New("cron job requires a name")
	}
	if j.Schedule == "" {
		return errors.New("cron job requires a schedule")
	}
	if j.Run == nil {
		return errors.New("cron job requires a run function")
	}
	_, err := ParseEvery(j.Schedule)
	return err
}

// Scheduler runs jobs until Stop is called or its context ends.
type Scheduler struct {
	Logger *slog.Logger

	mu     sync.Mutex
	jobs   []*Job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{Logger: log}
}

func (s *Scheduler) Add(job *Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("cron job %s already exists", job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches all job loops. Call Stop to cancel.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}
	periods := make([]time.Duration, len(s.jobs))
	for i, j := range s.jobs {
		d, err := ParseEvery(j.Schedule)
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		periods[i] = d
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for i, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, j, periods[i])
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, j *Job, period time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(period)
	defer t.Stop()
	if j.RunAtStart {
		s.fire(ctx, j)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.fire(ctx, j)
		}
	}
}

// fire starts one run unless the previous one is still active.
func (s *Scheduler) fire(ctx context.Context, j *Job) {
	if !j.running.CompareAndSwap(false, true) {
		j.skipped.Add(1)
		s.Logger.Warn("previous run still active, skipping tick", "job", j.Name)
		return
	}
	j.runs.Add(1)
	s.wg.Add(1)
	// run in its own goroutine so a long run never blocks the ticker
	go func() {
		defer s.wg.Done()
		defer j.running.Store(false)
		start := time.Now()
		if err := j.Run(ctx); err != nil {
			s.Logger.Error("cron job failed", "job", j.Name, "duration", time.Since(start), "error", err)
			return
		}
		s.Logger.Info("cron job finished", "job", j.Name, "duration", time.Since(start))
	}()
}

// Stop cancels all jobs and waits for active runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}
