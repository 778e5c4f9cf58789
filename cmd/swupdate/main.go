package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// set by -ldflags "-X main.version=..."
var version = "dev"

func main() {
	root := buildRoot(&command{out: os.Stdout, errOut: os.Stderr})
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot(c *command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	daemonFlags := &DaemonFlags{}
	storeFlags := &StoreFlags{}

	root := createRootCommand(globalFlags)
	root.SetOut(c.out)
	root.SetErr(c.errOut)
	c.global = globalFlags

	root.AddCommand(
		createRunCommand(c, runFlags),
		createDaemonCommand(c, daemonFlags),
		createRowsCommand(c),
		createEOLCommand(c),
		createServeStoreCommand(c, storeFlags),
		createVersionCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "swupdate",
		Short: "Upgrade this machine and report it on a shared status issue",
		Long: `swupdate upgrades the packages of this machine (apt on Linux, scoop on
Windows) and records the result in the row of a shared GitHub issue table
tagged with this machine's hostname.

Examples:
  swupdate run 42                       # one cycle against issue #42
  swupdate daemon --every 6h            # repeat every six hours
  swupdate rows --config swupdate.toml  # list rows of the issue
  swupdate serve-store --listen :8080   # self-hosted issue store`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadDotEnv(flags.EnvDir)
		},
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.EnvDir, "env-dir", ".", "directory holding .env and .env.local")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	return root
}

func createRunCommand(c *command, f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [issue]",
		Short: "Run one update cycle",
		Long: `Run one update cycle for every row of this machine.
The optional argument overrides github.issue from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.Issue = args[0]
			}
			return c.Run(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Repository, "repository", "", "owner/name of the repository holding the issue")
	return cmd
}

func createDaemonCommand(c *command, f *DaemonFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run update cycles on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Daemon(cmd.Context(), *f)
		},
	}
	cmd.Flags().DurationVar(&f.Every, "every", 0, "interval between cycles (default from schedule.every)")
	cmd.Flags().StringVar(&f.MetricsListen, "metrics-listen", "", "address for the Prometheus /metrics endpoint")
	cmd.Flags().BoolVar(&f.SkipFirst, "skip-first", false, "wait one interval before the first cycle")
	return cmd
}

func createRowsCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "rows",
		Short: "List the rows of the status issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Rows(cmd.Context())
		},
	}
}

func createEOLCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "eol",
		Short: "Show the detected OS and its end of life",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.EOL(cmd.Context(), time.Now())
		},
	}
}

func createServeStoreCommand(c *command, f *StoreFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-store",
		Short: "Serve a self-hosted GitHub-compatible issue store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ServeStore(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "listen address (default from store.listen)")
	cmd.Flags().StringVar(&f.DSN, "dsn", "", "sqlite or postgres DSN (default from store.dsn)")
	cmd.Flags().StringVar(&f.Token, "token", "", "bearer token clients must present (default from store.token)")
	cmd.Flags().StringVar(&f.TLSDir, "tls-dir", "", "serve HTTPS with the certificate in this dir, generating a self-signed one if missing")
	return cmd
}

func createVersionCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(c.out, "swupdate", version)
		},
	}
}
