package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewDistrosCmd creates the distros command.
func NewDistrosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distros",
		Short: "List the distributions the daemon can answer for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(_ context.Context, c daemon) error {
				ids, err := c.Distros()
				if err != nil {
					return fmt.Errorf("failed to read distributions: %w", err)
				}
				return printLines(ids)
			})
		},
	}

	return cmd
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the load state of every configured distribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c daemon) error {
				status, err := c.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to read status: %w", err)
				}

				tw := tabwriter.NewWriter(stdout, 0, 0, TabWidth, ' ', 0)
				_, _ = fmt.Fprintln(tw, "DISTRO\tSTATE\tPACKAGES\tERROR")
				for _, s := range status {
					state := s.State
					switch state {
					case "loaded":
						state = successColor.Sprint(state)
					case "failed":
						state = errorColor.Sprint(state)
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", nameColor.Sprint(s.Distro), state, s.Packages, s.LastError)
				}
				return tw.Flush()
			})
		},
	}

	return cmd
}

// NewRefreshCmd creates the refresh command.
func NewRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh [distro]",
		Short: "Reload repository metadata",
		Long: `Ask the daemon to reload the metadata of one distribution, or of every
loaded distribution when none is named. A distribution that fails to
reload keeps answering from its previous metadata.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var distro string
			if len(args) == 1 {
				distro = args[0]
			}
			msg := "Refreshing all distributions"
			if distro != "" {
				msg = "Refreshing " + distro
			}
			return withClient(cmd, func(ctx context.Context, c daemon) error {
				return runWithSpinner(msg, func() error {
					return c.Refresh(ctx, distro)
				})
			})
		},
	}

	return cmd
}
