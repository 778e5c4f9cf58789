package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/loykin/swupdate"
	"github.com/loykin/swupdate/internal/config"
	"github.com/loykin/swupdate/internal/cron"
	"github.com/loykin/swupdate/internal/eol"
	storetls "github.com/loykin/swupdate/internal/tls"
	"github.com/loykin/swupdate/internal/worker"
)

type command struct {
	out    io.Writer
	errOut io.Writer
	global *GlobalFlags
	// day stamps the log file name; tests pin it
	now func() time.Time
}

// setup loads the config and opens the logger. The returned closer flushes
// the log file.
func (c *command) setup() (*config.FileConfig, *slog.Logger, io.Closer, error) {
	fc, err := config.Load(c.global.ConfigPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if c.global.LogLevel != "" {
		fc.Log.Level = c.global.LogLevel
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	log, closer := fc.LoggerConfig().Open(c.errOut, now())
	slog.SetDefault(log)
	return fc, log, closer, nil
}

// Run performs one update cycle.
func (c *command) Run(ctx context.Context, f RunFlags) error {
	fc, log, closer, err := c.setup()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	if err := applyRunFlags(fc, f); err != nil {
		return err
	}

	agent, err := swupdate.NewAgent(fc, log)
	if err != nil {
		return err
	}
	defer func() { _ = agent.Close() }()

	log.Info("update started", "machine", agent.Machine, "issue", agent.Issue.URL())
	outcomes, err := agent.RunOnce(ctx)
	c.printOutcomes(outcomes)
	if err != nil {
		return err
	}
	log.Info("update finished", "machine", agent.Machine)
	return nil
}

func applyRunFlags(fc *config.FileConfig, f RunFlags) error {
	if f.Issue != "" {
		n, err := config.ValidIssueNumber(f.Issue)
		if err != nil {
			return err
		}
		fc.GitHub.Issue = n
	}
	if f.Repository != "" {
		fc.GitHub.Repository = f.Repository
	}
	return nil
}

// Daemon repeats update cycles until interrupted.
func (c *command) Daemon(ctx context.Context, f DaemonFlags) error {
	fc, log, closer, err := c.setup()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	every := fc.Schedule.Every
	if f.Every > 0 {
		every = f.Every
	}
	listen := fc.Metrics.Listen
	if f.MetricsListen != "" {
		listen = f.MetricsListen
	}

	agent, err := swupdate.NewAgent(fc, log)
	if err != nil {
		return err
	}
	defer func() { _ = agent.Close() }()

	if listen != "" {
		if err := swupdate.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		srv := swupdate.NewMetricsServer(listen, log)
		defer func() { _ = srv.Close() }()
		log.Info("metrics listening", "addr", listen)
	}

	sch := cron.NewScheduler(log)
	job := &cron.Job{
		Name:       "update",
		Schedule:   "@every " + every.String(),
		RunAtStart: !f.SkipFirst,
		Run: func(ctx context.Context) error {
			_, err := agent.RunOnce(ctx)
			return err
		},
	}
	if err := sch.Add(job); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(orBackground(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sch.Start(ctx); err != nil {
		return err
	}
	log.Info("daemon started", "machine", agent.Machine, "every", every)
	<-ctx.Done()
	sch.Stop()
	log.Info("daemon stopped", "runs", job.Runs(), "skipped", job.Skipped())
	return nil
}

// Rows prints every row address of the issue and marks this machine's.
func (c *command) Rows(ctx context.Context) error {
	fc, log, closer, err := c.setup()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	agent, err := swupdate.NewAgent(fc, log)
	if err != nil {
		return err
	}
	defer func() { _ = agent.Close() }()

	rows, err := agent.Rows(orBackground(ctx))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MACHINE\tPACKAGE MANAGER\tTHIS HOST")
	for _, r := range rows {
		mine := ""
		if r.Machine == agent.Machine {
			mine = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Machine, r.PackageManager, mine)
	}
	return tw.Flush()
}

// EOL prints the detected OS and the EOL cell this host would report.
func (c *command) EOL(ctx context.Context, now time.Time) error {
	p := eol.DefaultProbe()
	info := eol.Lookup(orBackground(ctx), p, now)
	host, _ := worker.Hostname()
	printJSON(c.out, map[string]any{
		"machine":  host,
		"os":       info.OS,
		"version":  info.Version,
		"eol":      info.Text,
		"critical": info.Critical,
	})
	return nil
}

// ServeStore serves the self-hosted issue store until interrupted.
func (c *command) ServeStore(ctx context.Context, f StoreFlags) error {
	fc, log, closer, err := c.setup()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	listen, dsn, token := fc.Store.Listen, fc.Store.DSN, fc.Store.Token
	if f.Listen != "" {
		listen = f.Listen
	}
	if f.DSN != "" {
		dsn = f.DSN
	}
	if f.Token != "" {
		token = f.Token
	}
	if token == "" {
		log.Warn("issue store runs without authentication")
	}
	tlsOpts := fc.Store.TLS
	if f.TLSDir != "" {
		tlsOpts = storetls.Options{Enabled: true, Dir: f.TLSDir, AutoGenerate: true, MinVersion: tlsOpts.MinVersion}
	}
	tlsCfg, err := storetls.Setup(tlsOpts)
	if err != nil {
		return fmt.Errorf("store tls: %w", err)
	}

	ctx, stop := signal.NotifyContext(orBackground(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()
	st, err := swupdate.OpenIssueStore(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	srv, err := swupdate.NewIssueStoreServer(listen, st, token, tlsCfg, log)
	if err != nil {
		return err
	}
	log.Info("issue store listening", "addr", srv.Addr, "tls", tlsCfg != nil)
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
