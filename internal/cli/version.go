package cli

import (
	"context"
	"fmt"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/hashicorp/go-version"
	"github.com/spf13/cobra"
)

// Build information. Version is also published by the daemon.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var daemonVersion bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version information for querykit and, with --daemon, the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(stdout, "querykit version %s\n", Version)
			_, _ = fmt.Fprintf(stdout, "Build date: %s\n", BuildDate)
			_, _ = fmt.Fprintf(stdout, "Git commit: %s\n", GitCommit)
			if !daemonVersion {
				return nil
			}
			return withClient(cmd, func(_ context.Context, c daemon) error {
				remote, err := c.Version()
				if err != nil {
					return fmt.Errorf("failed to read daemon version: %w", err)
				}
				_, _ = fmt.Fprintf(stdout, "Daemon version: %s\n", remote)
				if cmp, err := compareVersions(Version, remote); err != nil {
					logger.Debug("Cannot compare versions", logger.Fields{"error": err})
				} else if cmp != 0 {
					printWarning("client and daemon versions differ")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&daemonVersion, "daemon", false, "also show the version of the running daemon")

	return cmd
}

func compareVersions(local, remote string) (int, error) {
	lv, err := version.NewVersion(local)
	if err != nil {
		return 0, err
	}
	rv, err := version.NewVersion(remote)
	if err != nil {
		return 0, err
	}
	return lv.Compare(rv), nil
}
