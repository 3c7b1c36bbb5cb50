package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/config"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/spf13/cobra"
)

// NewConfigCmd creates the config command with subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View, create and check the querykit configuration",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
		newConfigValidateCmd(),
		newConfigDistrosCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Print the effective configuration, defaults included, as YAML",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			_, err = stdout.Write(data)
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  "Create a configuration file holding the default distribution table",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration file")

	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration",
		Long:  "Load the configuration and resolve every distribution without contacting any mirror",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			distros, err := cfg.ResolveDistros()
			if err != nil {
				return err
			}
			printSuccess("%s is valid (%d distributions)", getConfigPath(), len(distros))
			return nil
		},
	}
}

func newConfigDistrosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distros",
		Short: "Show the resolved distribution table",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			distros, err := cfg.ResolveDistros()
			if err != nil {
				return err
			}

			printHeader("Distributions (%d):", len(distros))
			tw := tabwriter.NewWriter(stdout, 0, 0, TabWidth, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tRELEASE\tARCHES\tREPOS")
			for _, d := range distros {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.ReleaseVer, strings.Join(d.Arches, ","), d.ReposDir)
			}
			return tw.Flush()
		},
	}
}

func runConfigInit(force bool) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite): %w", configPath, errors.ErrConfigFileExists)
	}

	if err := config.DefaultConfig().SaveConfig(configPath); err != nil {
		return fmt.Errorf("failed to save default configuration: %w", err)
	}

	logger.Success("Configuration file created", logger.Fields{"path": configPath})
	return nil
}
