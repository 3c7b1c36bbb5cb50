package cli

import (
	"context"
	"fmt"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/bus"
	"github.com/glorpus-work/querykit/pkg/config"
	"github.com/glorpus-work/querykit/pkg/service"
	"github.com/spf13/cobra"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
	NoColor    *bool
	Session    *bool
)

// loadConfig loads the configuration file named by --config, or the default
// one, and applies the global flags to it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	if Session != nil && *Session {
		cfg.Bus.Type = config.BusSession
	}
	logger.InitLogger(cfg.Settings.LogLevel, logger.ParseFormat(cfg.Settings.LogFormat))
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err})
		return ""
	}
	return defaultPath
}

// daemon is the part of bus.Client the commands use.
type daemon interface {
	SearchPackages(ctx context.Context, query, distro string) ([]service.PackageTuple, error)
	ListFiles(ctx context.Context, pkg, distro string) ([]string, error)
	QueryRepoPackage(ctx context.Context, pkg, queryType, distro string) ([]string, error)
	QueryRepo(ctx context.Context, queries map[string]string, distro string) ([]service.PackageTuple, error)
	Refresh(ctx context.Context, distro string) error
	Status(ctx context.Context) ([]bus.StatusTuple, error)
	Distros() ([]string, error)
	Version() (string, error)
	Close() error
}

// dial is swapped in tests.
var dial = func(cfg *config.Config) (daemon, error) {
	return bus.Dial(cfg.Bus.Type, cfg.Bus.Name, cfg.Bus.Path)
}

// withClient dials the daemon named in the configuration and runs fn.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c daemon) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := dial(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, client)
}
