// Package worker finds the rows owned by this host and hands each one to the
// updater registered for its package manager.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/loykin/swupdate/internal/coordinator"
	"github.com/loykin/swupdate/internal/document"
	"github.com/loykin/swupdate/internal/eol"
	"github.com/loykin/swupdate/internal/row"
)

// RowWriter commits a mutation to one row.
type RowWriter interface {
	Update(ctx context.Context, addr row.Address, m row.Mutation) (*coordinator.Result, error)
}

// Snapshotter returns a freshly fetched document.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*document.Document, error)
}

// Commenter posts a narrative comment next to the document.
type Commenter interface {
	Comment(ctx context.Context, body string) error
}

// Updater upgrades one package manager and reports through a Target.
type Updater interface {
	// OS is the runtime.GOOS value the updater requires.
	OS() string
	Run(ctx context.Context, t *Target) error
}

// Target is everything an updater needs to report on its row.
type Target struct {
	Address     row.Address
	DisplayName string
	EOL         eol.Info
	Rows        RowWriter
	Comments    Commenter
	Logger      *slog.Logger
}

// Mutation builds a row mutation carrying the host's EOL cell.
func (t *Target) Mutation(status row.Status, upgraded, failed row.Count) row.Mutation {
	text := t.EOL.Text
	if text == "" {
		text = eol.Unknown
	}
	return row.Mutation{
		Status:      status,
		Upgraded:    upgraded,
		Failed:      failed,
		EOL:         &text,
		EOLCritical: t.EOL.Critical,
	}
}

// Report commits a status and counts for the target's row.
func (t *Target) Report(ctx context.Context, status row.Status, upgraded, failed row.Count) error {
	_, err := t.Rows.Update(ctx, t.Address, t.Mutation(status, upgraded, failed))
	return err
}

// Fail makes one best-effort attempt to mark the row failed. Its own error
// is logged and dropped.
func (t *Target) Fail(ctx context.Context, failed row.Count) {
	if err := t.Report(ctx, row.StatusFailed, row.Unknown(), failed); err != nil {
		t.logger().Error("could not record failed status", "error", err)
	}
}

// Comment posts body; a failure is returned to the updater.
func (t *Target) Comment(ctx context.Context, body string) error {
	if t.Comments == nil {
		return nil
	}
	if err := t.Comments.Comment(ctx, body); err != nil {
		return fmt.Errorf("post comment: %w", err)
	}
	return nil
}

func (t *Target) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// Hostname is the machine key used in row tags.
func Hostname() (string, error) {
	if runtime.GOOS == "windows" {
		if n := strings.TrimSpace(os.Getenv("COMPUTERNAME")); n != "" {
			return n, nil
		}
	}
	return os.Hostname()
}

type Worker struct {
	Machine  string
	GOOS     string
	Docs     Snapshotter
	Rows     RowWriter
	Comments Commenter
	Updaters map[string]Updater
	// EOL is evaluated once per run.
	EOL    func(ctx context.Context) eol.Info
	Logger *slog.Logger
}

// Outcome is the per package manager result of a run.
type Outcome struct {
	PackageManager string
	Skipped        bool
	Err            error
	Duration       time.Duration
}

// ErrUnknownPackageManager marks rows whose package manager has no updater.
var ErrUnknownPackageManager = errors.New("unknown package manager")

// RunOnce processes every row of this machine. One package manager failing
// never stops the others; the joined errors are returned at the end.
func (w *Worker) RunOnce(ctx context.Context) ([]Outcome, error) {
	log := w.Logger
	if log == nil {
		log = slog.Default()
	}
	goos := w.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	doc, err := w.Docs.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch issue body: %w", err)
	}
	pms := doc.PackageManagers(w.Machine)
	if len(pms) == 0 {
		log.Warn("no package managers found", "machine", w.Machine)
		return nil, nil
	}
	display, ok := doc.DisplayName(w.Machine)
	if !ok {
		display = w.Machine
	}
	log.Info("package managers", "machine", w.Machine, "package_managers", pms)

	info := eol.Info{Text: eol.Unknown}
	if w.EOL != nil {
		info = w.EOL(ctx)
	}

	var outcomes []Outcome
	var errs []error
	for _, pm := range pms {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		start := time.Now()
		o := Outcome{PackageManager: pm}
		u, ok := w.Updaters[pm]
		switch {
		case !ok:
			o.Err = fmt.Errorf("%w: %s", ErrUnknownPackageManager, pm)
			log.Error("unknown package manager", "package_manager", pm)
		case u.OS() != goos:
			o.Skipped = true
			log.Warn("skipping package manager for another OS", "package_manager", pm, "requires", u.OS(), "os", goos)
		default:
			t := &Target{
				Address:     row.Address{Machine: w.Machine, PackageManager: pm},
				DisplayName: display,
				EOL:         info,
				Rows:        w.Rows,
				Comments:    w.Comments,
				Logger:      log.With("machine", w.Machine, "package_manager", pm),
			}
			if err := u.Run(ctx, t); err != nil {
				o.Err = fmt.Errorf("%s: %w", pm, err)
				log.Error("update cycle failed", "package_manager", pm, "error", err)
			}
		}
		o.Duration = time.Since(start)
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, errors.Join(errs...)
}

// Names lists registered package managers in sorted order.
func (w *Worker) Names() []string {
	out := make([]string, 0, len(w.Updaters))
	for k := range w.Updaters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
