package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glorpus-work/querykit/internal/cli"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	noColor    bool
	session    bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "querykit",
		Short: "Query RPM repository metadata over D-Bus",
		Long: `querykit answers package queries about several RPM distributions:
- serve: load repository metadata and answer on the message bus
- search, files, query, repoquery: ask a running daemon
- config, cache: manage the local installation`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			cli.InitColor()
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: $QUERYKIT_CONFIG or /etc/querykit/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().BoolVar(&session, "session", false, "use the session bus instead of the configured one")

	// Set up CLI pkg variables
	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.NoColor = &noColor
	cli.Session = &session

	cmd.AddCommand(
		cli.NewServeCmd(),
		cli.NewSearchCmd(),
		cli.NewFilesCmd(),
		cli.NewQueryCmd(),
		cli.NewRepoqueryCmd(),
		cli.NewDistrosCmd(),
		cli.NewStatusCmd(),
		cli.NewRefreshCmd(),
		cli.NewConfigCmd(),
		cli.NewCacheCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
