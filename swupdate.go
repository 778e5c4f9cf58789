// Package swupdate is the embedding API: it wires a configuration into an
// agent that keeps this machine's rows of the shared status issue current,
// and exposes the self-hosted issue store.
package swupdate

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/swupdate/internal/apt"
	cfg "github.com/loykin/swupdate/internal/config"
	"github.com/loykin/swupdate/internal/coordinator"
	"github.com/loykin/swupdate/internal/docstore"
	storefactory "github.com/loykin/swupdate/internal/docstore/factory"
	"github.com/loykin/swupdate/internal/eol"
	"github.com/loykin/swupdate/internal/history"
	historyfactory "github.com/loykin/swupdate/internal/history/factory"
	"github.com/loykin/swupdate/internal/issue"
	"github.com/loykin/swupdate/internal/metrics"
	"github.com/loykin/swupdate/internal/row"
	"github.com/loykin/swupdate/internal/scoop"
	"github.com/loykin/swupdate/internal/server"
	"github.com/loykin/swupdate/internal/worker"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.FileConfig

type Address = row.Address

type Mutation = row.Mutation

type Status = row.Status

type Count = row.Count

type Outcome = worker.Outcome

type HistorySink = history.Sink

type IssueStore = docstore.Store

const (
	StatusPending = row.StatusPending
	StatusRunning = row.StatusRunning
	StatusSuccess = row.StatusSuccess
	StatusFailed  = row.StatusFailed
)

func Unknown() Count { return row.Unknown() }
func Of(n int) Count { return row.Of(n) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Coordinator is a thin facade over internal/coordinator.
type Coordinator struct{ inner *coordinator.Coordinator }

// DocumentStore is the remote issue body the coordinator rewrites.
type DocumentStore = coordinator.Store

type CoordinatorOptions = coordinator.Options

func NewCoordinator(s DocumentStore, opts CoordinatorOptions) *Coordinator {
	return &Coordinator{inner: coordinator.New(s, opts)}
}

// Update commits m to the row at addr and returns the number of attempts it took.
func (c *Coordinator) Update(ctx context.Context, addr Address, m Mutation) (int, error) {
	res, err := c.inner.Update(ctx, addr, m)
	if err != nil {
		return 0, err
	}
	return res.Attempts, nil
}

// Rows lists the addresses present in the current document.
func (c *Coordinator) Rows(ctx context.Context) ([]Address, error) {
	doc, err := c.inner.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]Address(nil), doc.Order...), nil
}

// ErrIssueNotFound is returned when the configured issue does not exist.
var ErrIssueNotFound = errors.New("issue not found")

// Agent updates every package manager this machine owns a row for.
type Agent struct {
	Machine string
	Issue   *issue.Client

	coord  *coordinator.Coordinator
	worker *worker.Worker
	sinks  io.Closer
}

// NewAgent builds the issue client, history sinks, coordinator and
// updaters described by c. The caller must Close the agent.
func NewAgent(c *Config, log *slog.Logger) (*Agent, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	token, err := c.ResolveToken()
	if err != nil {
		return nil, err
	}
	client, err := issue.NewClient(issue.Config{
		BaseURL:    c.GitHub.BaseURL,
		Repository: c.GitHub.Repository,
		Number:     c.GitHub.Issue,
		Token:      token,
		Timeout:    c.GitHub.Timeout,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	machine, err := worker.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	sinks, closer, err := historyfactory.Open(c.History.DSNs)
	if err != nil {
		return nil, err
	}
	a := &Agent{Machine: machine, Issue: client, sinks: closer}

	a.coord = coordinator.New(client, coordinator.Options{
		MaxAttempts: c.Retry.MaxAttempts,
		Backoff:     c.Retry.Backoff,
		Sink:        sinks,
		Logger:      log,
	})
	a.worker = &worker.Worker{
		Machine:  machine,
		Docs:     a.coord,
		Rows:     a.coord,
		Comments: client,
		Updaters: map[string]worker.Updater{
			apt.Name:   apt.New(c.Apt.Reboot, c.Apt.RebootDelay, log),
			scoop.Name: scoop.New(c.Scoop.RestartRunning, c.Scoop.UpdateTries, log),
		},
		EOL: func(ctx context.Context) eol.Info {
			return eol.Lookup(ctx, eol.DefaultProbe(), time.Now())
		},
		Logger: log,
	}
	return a, nil
}

// RunOnce performs one update cycle for every row of this machine.
func (a *Agent) RunOnce(ctx context.Context) ([]Outcome, error) {
	out, err := a.worker.RunOnce(ctx)
	return out, a.explain(err)
}

// Rows lists the addresses present in the current document.
func (a *Agent) Rows(ctx context.Context) ([]Address, error) {
	rows, err := (&Coordinator{inner: a.coord}).Rows(ctx)
	return rows, a.explain(err)
}

// explain marks a 404 from the issue endpoint with ErrIssueNotFound.
func (a *Agent) explain(err error) error {
	if err == nil || !issue.IsNotFound(err) {
		return err
	}
	return fmt.Errorf("%w: %s (check github.repository and github.issue): %w", ErrIssueNotFound, a.Issue.URL(), err)
}

// PackageManagers lists the updaters this agent can dispatch to.
func (a *Agent) PackageManagers() []string { return a.worker.Names() }

func (a *Agent) Close() error {
	if a.sinks == nil {
		return nil
	}
	return a.sinks.Close()
}

// OpenIssueStore opens the self-hosted issue store at dsn.
func OpenIssueStore(ctx context.Context, dsn string) (IssueStore, error) {
	return storefactory.Open(ctx, dsn)
}

// IssueStoreHandler serves the GitHub issue subset backed by s under basePath.
func IssueStoreHandler(s IssueStore, basePath, token string, log *slog.Logger) http.Handler {
	return server.NewRouter(s, basePath, token, log).Handler()
}

// NewIssueStoreServer starts an HTTP server for s on addr. A nil tlsCfg
// serves plain HTTP.
func NewIssueStoreServer(addr string, s IssueStore, token string, tlsCfg *tls.Config, log *slog.Logger) (*http.Server, error) {
	return server.NewServer(addr, server.NewRouter(s, "", token, log), tlsCfg)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer starts an HTTP server on addr exposing /metrics using the
// default registry.
func NewMetricsServer(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && log != nil {
			log.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	return srv
}
