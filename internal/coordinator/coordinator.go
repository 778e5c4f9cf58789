// Package coordinator implements the optimistic fetch, mutate and commit loop
// that writes one row of the shared issue body.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/swupdate/internal/document"
	"github.com/loykin/swupdate/internal/history"
	"github.com/loykin/swupdate/internal/issue"
	"github.com/loykin/swupdate/internal/metrics"
	"github.com/loykin/swupdate/internal/row"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
)

// Store is the remote document. Replace overwrites the whole body.
type Store interface {
	Fetch(ctx context.Context) (string, error)
	Replace(ctx context.Context, body string) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	MaxAttempts int
	// Backoff is multiplied by the attempt number between attempts.
	Backoff time.Duration
	Sleep   SleepFunc
	Sink    history.Sink
	Logger  *slog.Logger
	Now     func() time.Time
}

// Coordinator keeps no document between calls: every Update starts from a
// fresh fetch.
type Coordinator struct {
	store Store
	opts  Options
}

// Result is the committed view of a successful Update.
type Result struct {
	Attempts int
	Row      row.Row
	Document *document.Document
}

func New(store Store, opts Options) *Coordinator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.Sink == nil {
		opts.Sink = history.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{store: store, opts: opts}
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Snapshot fetches and parses the current document.
func (c *Coordinator) Snapshot(ctx context.Context) (*document.Document, error) {
	body, err := c.store.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return document.Parse(body), nil
}

// Update writes m into the row at addr. An invalid status is rejected before
// the store is contacted. A missing row fails at once with *RowNotFoundError;
// fetch and commit failures are retried and end in *ExhaustedError.
func (c *Coordinator) Update(ctx context.Context, addr row.Address, m row.Mutation) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	log := c.opts.Logger.With("machine", addr.Machine, "package_manager", addr.PackageManager)

	var last error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		metrics.IncAttempt(addr.Machine, addr.PackageManager)
		c.emit(ctx, history.EventAttempt, addr, m.Status, attempt, nil)

		res, err := c.attempt(ctx, addr, m)
		if err == nil {
			res.Attempts = attempt
			metrics.IncCommit(addr.Machine, addr.PackageManager)
			metrics.ObserveAttempts(addr.Machine, addr.PackageManager, attempt)
			metrics.SetStatus(addr.Machine, addr.PackageManager, string(m.Status))
			c.emit(ctx, history.EventCommit, addr, m.Status, attempt, nil)
			log.Debug("row committed", "status", m.Status, "attempt", attempt)
			return res, nil
		}

		var nf *RowNotFoundError
		if errors.As(err, &nf) {
			metrics.IncNotFound(addr.Machine, addr.PackageManager)
			c.emit(ctx, history.EventNotFound, addr, m.Status, attempt, err)
			return nil, err
		}

		last = err
		if attempt == c.opts.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("update %s: %w", addr, ctx.Err())
		}
		metrics.IncRetry(addr.Machine, addr.PackageManager)
		c.emit(ctx, history.EventRetry, addr, m.Status, attempt, err)
		wait := c.opts.Backoff * time.Duration(attempt)
		log.Warn("update attempt failed, retrying", "attempt", attempt, "wait", wait, "conflict", issue.IsConflict(err), "error", err)
		if err := c.opts.Sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("update %s: %w", addr, err)
		}
	}

	metrics.IncExhausted(addr.Machine, addr.PackageManager)
	metrics.ObserveAttempts(addr.Machine, addr.PackageManager, c.opts.MaxAttempts)
	c.emit(ctx, history.EventExhausted, addr, m.Status, c.opts.MaxAttempts, last)
	log.Error("update gave up", "attempts", c.opts.MaxAttempts, "error", last)
	return nil, &ExhaustedError{Address: addr, Attempts: c.opts.MaxAttempts, Last: last}
}

// attempt runs one fetch, parse, locate, mutate, build and commit cycle.
func (c *Coordinator) attempt(ctx context.Context, addr row.Address, m row.Mutation) (*Result, error) {
	body, err := c.store.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	doc := document.Parse(body)
	r, ok := doc.Row(addr)
	if !ok {
		return nil, &RowNotFoundError{Address: addr}
	}
	if err := r.Apply(m); err != nil {
		return nil, err
	}
	if err := c.store.Replace(ctx, doc.Build()); err != nil {
		return nil, err
	}
	return &Result{Row: *r, Document: doc}, nil
}

func (c *Coordinator) emit(ctx context.Context, typ history.EventType, addr row.Address, st row.Status, attempt int, cause error) {
	e := history.Event{
		Type:           typ,
		OccurredAt:     c.opts.Now().UTC(),
		Machine:        addr.Machine,
		PackageManager: addr.PackageManager,
		Status:         string(st),
		Attempt:        attempt,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if err := c.opts.Sink.Send(ctx, e); err != nil {
		c.opts.Logger.Debug("history sink failed", "event", typ, "error", err)
	}
}
