// Package apt upgrades Debian and Ubuntu hosts with apt-get.
package apt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loykin/swupdate/internal/command"
	"github.com/loykin/swupdate/internal/report"
	"github.com/loykin/swupdate/internal/row"
	"github.com/loykin/swupdate/internal/worker"
)

// Name is the package manager key in row tags.
const Name = "apt"

// ErrNotRoot is returned when apt-get cannot be run with privileges.
var ErrNotRoot = errors.New("apt updates must run as root")

type Worker struct {
	Runner      command.Runner
	Reboot      bool
	RebootDelay time.Duration
	IsRoot      func() bool
	Sleep       func(ctx context.Context, d time.Duration) error
}

// New returns a worker running apt-get non-interactively on this host.
func New(reboot bool, delay time.Duration, log *slog.Logger) *Worker {
	return &Worker{
		Runner:      command.Exec{Env: []string{"DEBIAN_FRONTEND=noninteractive"}, Logger: log},
		Reboot:      reboot,
		RebootDelay: delay,
	}
}

func (w *Worker) OS() string { return "linux" }

// Run marks the row running, simulates and applies a dist-upgrade, then
// writes the final counts. Any failure ends with a best-effort failed write.
func (w *Worker) Run(ctx context.Context, t *worker.Target) error {
	if !w.isRoot() {
		t.Logger.Error("this command must be run as root")
		return ErrNotRoot
	}
	if err := w.run(ctx, t); err != nil {
		t.Logger.Error("apt upgrade failed", "error", err)
		t.Fail(ctx, row.Of(1))
		return err
	}
	return nil
}

func (w *Worker) run(ctx context.Context, t *worker.Target) error {
	log := t.Logger
	log.Info("starting apt update and full upgrade")
	if err := t.Report(ctx, row.StatusRunning, row.Unknown(), row.Unknown()); err != nil {
		return err
	}

	before, err := w.plan(ctx, log)
	if err != nil {
		return err
	}
	log.Info("apt plan", "upgrade", len(before.Upgrade), "install", len(before.Install), "remove", len(before.Remove))

	if before.Empty() {
		return t.Report(ctx, row.StatusSuccess, row.Of(0), row.Of(0))
	}

	body, err := report.Apt(report.AptChanges{
		Machine: t.DisplayName,
		Upgrade: before.Upgrade,
		Install: before.Install,
		Remove:  before.Remove,
	})
	if err != nil {
		return err
	}
	if err := t.Comment(ctx, body); err != nil {
		return err
	}
	if err := t.Report(ctx, row.StatusRunning, row.Of(len(before.Upgrade)), row.Unknown()); err != nil {
		return err
	}

	log.Info("upgrading packages")
	status := row.StatusSuccess
	if _, err := w.Runner.Run(ctx, "apt-get", "-y", "dist-upgrade"); err != nil {
		log.Error("apt-get dist-upgrade failed", "error", err)
		status = row.StatusFailed
	}

	after, err := w.plan(ctx, log)
	if err != nil {
		return err
	}
	upgraded := len(before.Upgrade) - len(after.Upgrade)
	failed := len(before.Upgrade) - upgraded
	log.Info("apt result", "upgraded", upgraded, "remaining", len(after.Upgrade))
	if err := t.Report(ctx, status, row.Of(upgraded), row.Of(failed)); err != nil {
		return err
	}
	log.Info("upgrade complete")

	if !w.Reboot {
		return nil
	}
	log.Info("restarting the system", "delay", w.RebootDelay)
	if err := w.sleep(ctx, w.RebootDelay); err != nil {
		return nil
	}
	if _, err := w.Runner.Run(ctx, "shutdown", "-r", "0"); err != nil {
		log.Error("reboot failed", "error", err)
	}
	return nil
}

// plan refreshes the package lists and simulates a dist-upgrade.
func (w *Worker) plan(ctx context.Context, log *slog.Logger) (Plan, error) {
	res, err := w.Runner.Run(ctx, "apt-get", "update")
	logStderr(log, "apt-get update", res.Stderr)
	if err != nil {
		return Plan{}, fmt.Errorf("apt-get update: %w", err)
	}
	res, err = w.Runner.Run(ctx, "apt-get", "-s", "-V", "dist-upgrade")
	logStderr(log, "apt-get -s -V dist-upgrade", res.Stderr)
	if err != nil {
		return Plan{}, fmt.Errorf("apt-get dist-upgrade simulation: %w", err)
	}
	p := ParseSimulation(res.Stdout)
	if p.Unparsed > 0 {
		log.Warn("failed to parse apt-get lines", "count", p.Unparsed)
	}
	return p, nil
}

// logStderr maps apt's E:/W: prefixes onto log levels.
func logStderr(log *slog.Logger, cmd, stderr string) {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "E:"):
			log.Error("apt stderr", "command", cmd, "line", line)
		case strings.HasPrefix(line, "W:"):
			log.Warn("apt stderr", "command", cmd, "line", line)
		default:
			log.Debug("apt stderr", "command", cmd, "line", line)
		}
	}
}

func (w *Worker) isRoot() bool {
	if w.IsRoot != nil {
		return w.IsRoot()
	}
	return os.Geteuid() == 0
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
