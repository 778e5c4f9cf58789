// Package scoop upgrades Windows hosts managed with scoop.
package scoop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/swupdate/internal/command"
	"github.com/loykin/swupdate/internal/report"
	"github.com/loykin/swupdate/internal/row"
	"github.com/loykin/swupdate/internal/worker"
)

// Name is the package manager key in row tags.
const Name = "scoop"

const (
	DefaultTries      = 5
	DefaultRetryDelay = 5 * time.Second
)

type Worker struct {
	Runner    command.Runner
	Processes ProcessTable
	// Root is the scoop installation directory, normally $SCOOP.
	Root string
	// RestartRunning stops apps that are running, updates and restarts
	// them. When false running apps are left alone.
	RestartRunning bool
	Tries          int
	RetryDelay     time.Duration
	Sleep          func(ctx context.Context, d time.Duration) error
}

// New returns a worker driving the scoop CLI on this host.
func New(restartRunning bool, tries int, log *slog.Logger) *Worker {
	return &Worker{
		Runner:         command.Exec{Shell: true, Logger: log},
		Processes:      HostProcesses{},
		Root:           os.Getenv("SCOOP"),
		RestartRunning: restartRunning,
		Tries:          tries,
	}
}

func (w *Worker) OS() string { return "windows" }

// Run updates the buckets, every outdated app not in use and, when allowed,
// the running ones. The row ends success only if no app failed.
func (w *Worker) Run(ctx context.Context, t *worker.Target) error {
	if err := w.run(ctx, t); err != nil {
		t.Logger.Error("scoop upgrade failed", "error", err)
		t.Fail(ctx, row.Unknown())
		return err
	}
	return nil
}

func (w *Worker) run(ctx context.Context, t *worker.Target) error {
	log := t.Logger
	if err := t.Report(ctx, row.StatusRunning, row.Unknown(), row.Unknown()); err != nil {
		return err
	}

	if !w.retry(ctx, log, "update") {
		log.Error("failed to update scoop buckets", "tries", w.tries())
	}

	apps, err := w.status(ctx)
	if err != nil {
		return err
	}
	body, err := report.Scoop(report.ScoopChanges{Machine: t.DisplayName, Apps: apps})
	if err != nil {
		return err
	}
	if err := t.Comment(ctx, body); err != nil {
		return err
	}

	names := make([]string, 0, len(apps))
	for _, a := range apps {
		names = append(names, a.Name)
	}
	running, err := w.running(ctx, names)
	if err != nil {
		return err
	}
	var idle []string
	for _, n := range names {
		if _, busy := running[n]; !busy {
			idle = append(idle, n)
		}
	}
	log.Info("scoop apps", "running", len(running), "not_running", len(idle))

	if err := t.Report(ctx, row.StatusRunning, row.Of(len(idle)), row.Unknown()); err != nil {
		return err
	}

	results := map[string]bool{}
	for _, app := range idle {
		results[app] = w.retry(ctx, log, "update", app)
	}
	for _, app := range names {
		procs, busy := running[app]
		if !busy {
			continue
		}
		if !w.RestartRunning {
			log.Warn("skipping running app", "app", app, "processes", len(procs))
			continue
		}
		w.stop(ctx, log, procs)
		results[app] = w.retry(ctx, log, "update", app)
		w.start(ctx, log, app, procs)
	}

	ok := 0
	for _, r := range results {
		if r {
			ok++
		}
	}
	failed := len(results) - ok
	status := row.StatusSuccess
	if failed > 0 {
		status = row.StatusFailed
	}
	if err := t.Report(ctx, status, row.Of(ok), row.Of(failed)); err != nil {
		return err
	}

	if left, err := w.status(ctx); err == nil {
		for _, a := range left {
			log.Info("app still outdated", "app", a.Name)
		}
	}
	log.Info("scoop update completed")
	return nil
}

func (w *Worker) status(ctx context.Context) ([]App, error) {
	res, err := w.Runner.Run(ctx, "scoop", "status")
	if err != nil {
		return nil, fmt.Errorf("scoop status: %w", err)
	}
	return ParseStatus(res.Stdout), nil
}

func (w *Worker) running(ctx context.Context, apps []string) (map[string][]Process, error) {
	if len(apps) == 0 || w.Processes == nil || w.Root == "" {
		return map[string][]Process{}, nil
	}
	procs, err := w.Processes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	return RunningApps(filepath.Join(w.Root, "apps"), apps, procs), nil
}

// retry runs `scoop args...` until it succeeds or the tries run out.
func (w *Worker) retry(ctx context.Context, log *slog.Logger, args ...string) bool {
	for i := 1; i <= w.tries(); i++ {
		_, err := w.Runner.Run(ctx, "scoop", args...)
		if err == nil {
			return true
		}
		log.Warn("scoop command failed", "args", args, "try", i, "error", err)
		if i < w.tries() {
			if w.sleep(ctx, w.retryDelay()) != nil {
				return false
			}
		}
	}
	return false
}

func (w *Worker) stop(ctx context.Context, log *slog.Logger, procs []Process) {
	for _, p := range procs {
		if err := w.Processes.Terminate(ctx, p.PID); err != nil {
			log.Warn("failed to stop process", "name", p.Name, "pid", p.PID, "error", err)
			continue
		}
		log.Info("stopped process", "name", p.Name, "pid", p.PID)
	}
}

// start relaunches the stopped executables from the app's current directory.
func (w *Worker) start(ctx context.Context, log *slog.Logger, app string, procs []Process) {
	current := filepath.Join(w.Root, "apps", app, "current")
	for _, p := range procs {
		exe := filepath.Join(current, p.Name)
		if _, err := os.Stat(exe); err != nil {
			log.Warn("executable not found", "path", exe)
			continue
		}
		if _, err := w.Runner.Run(ctx, "start", `""`, exe); err != nil {
			log.Warn("failed to start", "path", exe, "error", err)
			continue
		}
		log.Info("started", "path", exe)
	}
}

func (w *Worker) tries() int {
	if w.Tries > 0 {
		return w.Tries
	}
	return DefaultTries
}

func (w *Worker) retryDelay() time.Duration {
	if w.RetryDelay > 0 {
		return w.RetryDelay
	}
	return DefaultRetryDelay
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	if w.Sleep != nil {
		return w.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
