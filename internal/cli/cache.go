package cli

import (
	"fmt"
	"slices"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/cache"
	"github.com/glorpus-work/querykit/pkg/config"
	"github.com/glorpus-work/querykit/pkg/sack"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command with subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the metadata cache",
		Long:  "Show information about and clean the downloaded metadata and built indexes",
	}

	cmd.AddCommand(
		newCacheCleanCmd(),
		newCacheInfoCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var opts cache.CleanOptions

	cmd := &cobra.Command{
		Use:   "clean [distro...]",
		Short: "Clean the metadata cache",
		Long: `Remove downloaded metadata and built indexes. Without arguments every
distribution is cleaned. The daemon rebuilds what it needs on its next load.`,
		RunE: func(_ *cobra.Command, args []string) error {
			opts.Distros = args
			return runCacheClean(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Metadata, "metadata", false, "Clean only downloaded metadata")
	cmd.Flags().BoolVar(&opts.Indexes, "indexes", false, "Clean only built indexes")

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			op, _, err := cacheOperation()
			if err != nil {
				return err
			}
			info, err := op.GetInfo()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, info)
			return err
		},
	}
}

func newCacheDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dir",
		Short: "Show cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			op, _, err := cacheOperation()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, op.GetDirectory())
			return err
		},
	}
}

func cacheOperation() (*cache.Operation, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dir, err := cfg.ResolvedCacheDir()
	if err != nil {
		return nil, nil, err
	}
	return cache.NewOperation(cache.NewManager(dir)), cfg, nil
}

func runCacheClean(opts cache.CleanOptions) error {
	op, cfg, err := cacheOperation()
	if err != nil {
		return err
	}

	msg, err := op.Clean(opts)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, msg)

	if opts.Metadata && !opts.Indexes {
		return nil
	}
	forgetIndexes(cfg, opts.Distros)
	return nil
}

// forgetIndexes drops the recorded index state of the cleaned distributions.
// A running daemon holds the state database; its records are then left to
// be invalidated on the next load.
func forgetIndexes(cfg *config.Config, only []string) {
	path, err := cfg.StorePath()
	if err != nil {
		logger.Warn("Cannot locate state database", logger.Fields{"error": err})
		return
	}
	store, err := cache.OpenStore(path, sack.SchemaVersion)
	if err != nil {
		logger.Warn("State database is busy, skipping", logger.Fields{"path": path, "error": err})
		return
	}
	defer func() { _ = store.Close() }()

	ids, err := store.List()
	if err != nil {
		logger.Warn("Failed to list recorded indexes", logger.Fields{"error": err})
		return
	}
	for _, id := range ids {
		if len(only) > 0 && !slices.Contains(only, id) {
			continue
		}
		if err := store.Delete(id); err != nil {
			logger.Warn("Failed to forget index", logger.Fields{"distro": id, "error": err})
		}
	}
}
