// Package workertest provides an in-memory issue for updater tests.
package workertest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/swupdate/internal/coordinator"
	"github.com/loykin/swupdate/internal/document"
	"github.com/loykin/swupdate/internal/eol"
	"github.com/loykin/swupdate/internal/row"
	"github.com/loykin/swupdate/internal/worker"
)

// Issue is an in-memory issue body with comments. It records every body it
// was asked to store.
type Issue struct {
	mu       sync.Mutex
	body     string
	Bodies   []string
	Comments []string
}

func NewIssue(body string) *Issue { return &Issue{body: body} }

func (i *Issue) Fetch(context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.body, nil
}

func (i *Issue) Replace(_ context.Context, body string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.body = body
	i.Bodies = append(i.Bodies, body)
	return nil
}

func (i *Issue) Comment(_ context.Context, body string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Comments = append(i.Comments, body)
	return nil
}

func (i *Issue) Body() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.body
}

// Row decodes the current row at addr.
func (i *Issue) Row(addr row.Address) (row.Row, bool) {
	r, ok := document.Parse(i.Body()).Row(addr)
	if !ok {
		return row.Row{}, false
	}
	return *r, true
}

// History decodes the row at addr from every stored body, oldest first.
func (i *Issue) History(addr row.Address) []row.Row {
	i.mu.Lock()
	bodies := append([]string(nil), i.Bodies...)
	i.mu.Unlock()
	var out []row.Row
	for _, b := range bodies {
		if r, ok := document.Parse(b).Row(addr); ok {
			out = append(out, *r)
		}
	}
	return out
}

// Target builds a worker target writing through a coordinator on issue.
func Target(issue *Issue, addr row.Address, info eol.Info) *worker.Target {
	c := coordinator.New(issue, coordinator.Options{
		Sleep:  func(context.Context, time.Duration) error { return nil },
		Logger: Discard(),
	})
	return &worker.Target{
		Address:     addr,
		DisplayName: addr.Machine,
		EOL:         info,
		Rows:        c,
		Comments:    issue,
		Logger:      Discard(),
	}
}

// Discard is a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
