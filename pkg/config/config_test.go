package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glorpus-work/querykit/pkg/auth"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Settings.LogLevel)
	assert.Equal(t, BusSystem, cfg.Bus.Type)
	assert.Equal(t, "com.github.Appadeia.QueryKit", cfg.Bus.Name)
	assert.Equal(t, "/com/github/Appadeia/QueryKit", cfg.Bus.Path)
	assert.Equal(t, "@every 24h", cfg.Settings.RefreshSchedule)
	assert.Equal(t, []string{"https"}, cfg.Settings.URLSchemes)
	assert.False(t, cfg.Settings.RetryFailedDistros)
	require.NoError(t, cfg.Validate())

	ids := make([]string, 0, len(cfg.Distros))
	for _, d := range cfg.Distros {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{
		"fedora", "tumbleweed", "leap", "openmandriva", "mageia",
		"centos", "packman-leap", "packman-tumbleweed", "rpmfusion",
	}, ids)
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `bus:
  type: session
settings:
  log_level: debug
  refresh_schedule: "@every 1h"
  load_timeout: 5m
  retry_failed_distros: true
defaults:
  arch: x86_64
  substitutions:
    contentdir: pub
distros:
  - id: fedora
    releasever: "41"
  - id: tumbleweed
    arch: aarch64`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), fsutil.FileModeDefault))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, BusSession, cfg.Bus.Type)
	assert.Equal(t, DefaultBusName, cfg.Bus.Name)
	assert.Equal(t, "debug", cfg.Settings.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.Settings.LoadTimeout)
	assert.Equal(t, DefaultHTTPTimeout, cfg.Settings.HTTPTimeout)
	assert.True(t, cfg.Settings.RetryFailedDistros)
	require.Len(t, cfg.Distros, 2)
	assert.Equal(t, "41", cfg.Distros[0].ReleaseVer)
	assert.Equal(t, "x86_64", cfg.Defaults.Arch)
}

func TestLoadConfig_TOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	configContent := `[settings]
log_level = "warn"
http_timeout = "10s"
max_concurrent_loads = 2

[[distros]]
id = "mageia"
releasever = "9"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), fsutil.FileModeDefault))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Settings.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Settings.HTTPTimeout)
	assert.Equal(t, 2, cfg.Settings.MaxConcurrentLoads)
	require.Len(t, cfg.Distros, 1)
	assert.Equal(t, "mageia", cfg.Distros[0].ID)
}

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Distros, len(DefaultDistros()))
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, errors.ErrEmptyConfigPath)
}

func TestSaveConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.LogLevel = "debug"
	cfg.Settings.LoadTimeout = 90 * time.Second
	cfg.Distros = []*Distro{{ID: "fedora", ReleaseVer: "40", Arches: []string{"noarch", "x86_64", "i686"}}}

	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.SaveConfig(configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", loaded.Settings.LogLevel)
	assert.Equal(t, 90*time.Second, loaded.Settings.LoadTimeout)
	require.Len(t, loaded.Distros, 1)
	assert.Equal(t, []string{"noarch", "x86_64", "i686"}, loaded.Distros[0].Arches)

	_, err = os.Stat(configPath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid bus type",
			mutate:  func(c *Config) { c.Bus.Type = "tcp" },
			wantErr: errors.ErrInvalidBusType,
		},
		{
			name:    "invalid schedule",
			mutate:  func(c *Config) { c.Settings.RefreshSchedule = "every day" },
			wantErr: errors.ErrInvalidSchedule,
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Settings.LoadTimeout = -time.Second },
			wantErr: errors.ErrNegativeDuration,
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Settings.MaxConcurrentLoads = 0 },
			wantErr: errors.ErrConcurrencyTooLow,
		},
		{
			name:    "unknown scheme",
			mutate:  func(c *Config) { c.Settings.URLSchemes = []string{"rsync"} },
			wantErr: errors.ErrInvalidURLScheme,
		},
		{
			name:    "ambiguous credential",
			mutate:  func(c *Config) { c.Settings.Credentials = []auth.Credential{{Host: "mirror", Username: "u", Token: "t"}} },
			wantErr: errors.ErrInvalidCredential,
		},
		{
			name:   "credentials",
			mutate: func(c *Config) { c.Settings.Credentials = []auth.Credential{{Host: "mirror", Username: "u", Password: "p"}} },
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Settings.LogLevel = "trace" },
			wantErr: errors.ErrInvalidLogLevel,
		},
		{
			name:    "duplicate distro",
			mutate:  func(c *Config) { c.Distros = append(c.Distros, &Distro{ID: "fedora"}) },
			wantErr: errors.ErrDuplicateDistro,
		},
		{
			name:    "empty distro id",
			mutate:  func(c *Config) { c.Distros = append(c.Distros, &Distro{}) },
			wantErr: errors.ErrEmptyDistroID,
		},
		{
			name:    "gpgcheck enabled",
			mutate:  func(c *Config) { c.Distros[0].GPGCheck = true },
			wantErr: errors.ErrSignatureCheckUnsupported,
		},
		{
			name:    "zchunk in defaults",
			mutate:  func(c *Config) { c.Defaults.Zchunk = true },
			wantErr: errors.ErrZchunkUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfigFromReader_ValidationWrapped(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("settings:\n  log_format: xml\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfigValidation)
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("QUERYKIT_CONFIG", "")
	p, err := GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/querykit/config.yaml", p)

	t.Setenv("QUERYKIT_CONFIG", "/tmp/qk.yaml")
	p, err = GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/qk.yaml", p)
}

func TestLoadConfig_ShippedConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "dist", "config.yaml"))
	require.NoError(t, err)

	ids := make([]string, 0, len(cfg.Distros))
	for _, d := range cfg.Distros {
		ids = append(ids, d.ID)
	}
	want := make([]string, 0, len(DefaultDistros()))
	for _, d := range DefaultDistros() {
		want = append(want, d.ID)
	}
	assert.Equal(t, want, ids)
	assert.True(t, cfg.Settings.WatchRepos)

	require.NotNil(t, cfg.Defaults.LoadFilelists)
	assert.True(t, *cfg.Defaults.LoadFilelists)
}
