// Package config provides configuration management for the QueryKit daemon.
// It loads the distribution table, bus settings and refresh policy from a YAML
// (or TOML) file, fills in defaults and validates the result.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/glorpus-work/querykit/pkg/auth"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/fsutil"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Bus      BusConfig `yaml:"bus" toml:"bus"`
	Settings Settings  `yaml:"settings" toml:"settings"`

	// Defaults is merged into every distribution before its own values are resolved.
	Defaults Distro    `yaml:"defaults,omitempty" toml:"defaults"`
	Distros  []*Distro `yaml:"distros" toml:"distros"`
}

// BusConfig selects the message bus and the name the service claims on it.
type BusConfig struct {
	Type string `yaml:"type" toml:"type"` // system, session
	Name string `yaml:"name" toml:"name"`
	Path string `yaml:"path" toml:"path"`
}

// Settings represents general daemon settings.
type Settings struct {
	// Install-relative locations. Relative paths resolve against the binary's directory.
	DataDir  string `yaml:"data_dir" toml:"data_dir"`
	CacheDir string `yaml:"cache_dir" toml:"cache_dir"`
	StateDir string `yaml:"state_dir" toml:"state_dir"`

	// Refresh policy
	RefreshSchedule    string        `yaml:"refresh_schedule" toml:"refresh_schedule"`
	LoadTimeout        time.Duration `yaml:"load_timeout" toml:"load_timeout"`
	MaxConcurrentLoads int           `yaml:"max_concurrent_loads" toml:"max_concurrent_loads"`
	RetryFailedDistros bool          `yaml:"retry_failed_distros" toml:"retry_failed_distros"`
	WatchRepos         bool          `yaml:"watch_repos" toml:"watch_repos"`

	// Network settings
	HTTPTimeout            time.Duration `yaml:"http_timeout" toml:"http_timeout"`
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads" toml:"max_concurrent_downloads"`
	UserAgent              string        `yaml:"user_agent,omitempty" toml:"user_agent"`
	URLSchemes             []string      `yaml:"url_schemes" toml:"url_schemes"`
	// Credentials authenticate metadata requests to private mirrors, by host.
	Credentials []auth.Credential `yaml:"credentials,omitempty" toml:"credentials"`

	// Result cache
	DisableCache bool          `yaml:"disable_cache" toml:"disable_cache"`
	CacheTTL     time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`
	CacheSize    uint64        `yaml:"cache_size" toml:"cache_size"`

	// Observability
	LogLevel       string `yaml:"log_level" toml:"log_level"`
	LogFormat      string `yaml:"log_format" toml:"log_format"`
	MetricsAddress string `yaml:"metrics_address,omitempty" toml:"metrics_address"`
}

// Default configuration values.
const (
	DefaultBusName            = "com.github.Appadeia.QueryKit"
	DefaultBusPath            = "/com/github/Appadeia/QueryKit"
	DefaultRefreshSchedule    = "@every 24h"
	DefaultLoadTimeout        = 30 * time.Minute
	DefaultHTTPTimeout        = 60 * time.Second
	DefaultMaxConcurrentLoads = 3
	DefaultMaxDownloads       = 4
	DefaultCacheTTL           = 5 * time.Minute
	DefaultCacheSize          = 4096

	BusSystem  = "system"
	BusSession = "session"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with the stock distribution table.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Type: BusSystem,
			Name: DefaultBusName,
			Path: DefaultBusPath,
		},
		Settings: Settings{
			DataDir:                filepath.Join("/usr/share", fsutil.AppName, "repos"),
			CacheDir:               filepath.Join("/var/cache", fsutil.AppName),
			StateDir:               filepath.Join("/var/lib", fsutil.AppName),
			RefreshSchedule:        DefaultRefreshSchedule,
			LoadTimeout:            DefaultLoadTimeout,
			MaxConcurrentLoads:     DefaultMaxConcurrentLoads,
			HTTPTimeout:            DefaultHTTPTimeout,
			MaxConcurrentDownloads: DefaultMaxDownloads,
			URLSchemes:             []string{"https"},
			CacheTTL:               DefaultCacheTTL,
			CacheSize:              DefaultCacheSize,
			LogLevel:               "info",
			LogFormat:              "text",
		},
		Distros: DefaultDistros(),
	}
}

// LoadConfig loads configuration from a file. A missing file yields DefaultConfig.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	if strings.EqualFold(filepath.Ext(absPath), ".toml") {
		return LoadTOMLFromReader(file)
	}
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads YAML configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}
	return finish(&config)
}

// LoadTOMLFromReader loads TOML configuration from an io.Reader.
func LoadTOMLFromReader(reader io.Reader) (*Config, error) {
	var config Config
	if _, err := toml.NewDecoder(reader).Decode(&config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}
	return finish(&config)
}

func finish(config *Config) (*Config, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigValidation, err.Error())
	}
	return config, nil
}

// SaveConfig writes the configuration as YAML, replacing path atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	data, err := c.ToYAML()
	if err != nil {
		return err
	}

	tempPath := absPath + ".tmp"
	if err := os.WriteFile(tempPath, data, fsutil.FileModeDefault); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileRename, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return buf.Bytes(), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if err := validateBus(c.Bus); err != nil {
		return err
	}
	if err := validateSettings(c.Settings); err != nil {
		return err
	}
	return validateDistros(c.Defaults, c.Distros)
}

func validateBus(b BusConfig) error {
	switch b.Type {
	case BusSystem, BusSession:
	default:
		return errors.ErrInvalidBusTypeWithDetails(b.Type)
	}
	return nil
}

func validateSettings(s Settings) error {
	if _, err := cron.ParseStandard(s.RefreshSchedule); err != nil {
		return errors.ErrInvalidScheduleWithDetails(s.RefreshSchedule, err)
	}
	durations := map[string]time.Duration{
		"load_timeout": s.LoadTimeout,
		"http_timeout": s.HTTPTimeout,
		"cache_ttl":    s.CacheTTL,
	}
	for name, d := range durations {
		if d < 0 {
			return errors.ErrNegativeDurationWithName(name)
		}
	}
	if s.MaxConcurrentLoads < 1 {
		return errors.ErrConcurrencyTooLowWithName("max_concurrent_loads")
	}
	if s.MaxConcurrentDownloads < 1 {
		return errors.ErrConcurrencyTooLowWithName("max_concurrent_downloads")
	}
	for _, scheme := range s.URLSchemes {
		switch scheme {
		case "http", "https", "ftp", "file":
		default:
			return errors.ErrInvalidURLSchemeWithDetails(scheme)
		}
	}
	if _, err := auth.NewHosts(s.Credentials); err != nil {
		return err
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return errors.ErrInvalidLogLevelWithDetails(s.LogLevel)
	}
	if s.LogFormat != "text" && s.LogFormat != "json" {
		return errors.ErrInvalidLogFormatWithDetails(s.LogFormat)
	}
	return nil
}

func validateDistros(defaults Distro, distros []*Distro) error {
	if defaults.GPGCheck {
		return errors.Wrap(errors.ErrSignatureCheckUnsupported, "defaults")
	}
	if defaults.Zchunk {
		return errors.Wrap(errors.ErrZchunkUnsupported, "defaults")
	}
	seen := make(map[string]bool, len(distros))
	for i, d := range distros {
		if d == nil || d.ID == "" {
			return errors.ErrEmptyDistroIDWithIndex(i)
		}
		if seen[d.ID] {
			return errors.ErrDuplicateDistroWithID(d.ID)
		}
		seen[d.ID] = true
		if d.GPGCheck {
			return errors.Wrap(errors.ErrSignatureCheckUnsupported, d.ID)
		}
		if d.Zchunk {
			return errors.Wrap(errors.ErrZchunkUnsupported, d.ID)
		}
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path. The
// QUERYKIT_CONFIG environment variable takes precedence.
func GetDefaultConfigPath() (string, error) {
	if p := os.Getenv("QUERYKIT_CONFIG"); p != "" {
		return p, nil
	}
	return filepath.Join("/etc", fsutil.AppName, "config.yaml"), nil
}

// StorePath is the bbolt database that remembers built repository indexes.
func (c *Config) StorePath() (string, error) {
	dir, err := fsutil.ResolveInstallRelative(c.Settings.StateDir)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve state_dir")
	}
	return filepath.Join(dir, "state.db"), nil
}

// ResolvedCacheDir is the cache directory shared by every distribution.
func (c *Config) ResolvedCacheDir() (string, error) {
	dir, err := fsutil.ResolveInstallRelative(c.Settings.CacheDir)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve cache_dir")
	}
	return dir, nil
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Bus.Type == "" {
		c.Bus.Type = defaults.Bus.Type
	}
	if c.Bus.Name == "" {
		c.Bus.Name = defaults.Bus.Name
	}
	if c.Bus.Path == "" {
		c.Bus.Path = defaults.Bus.Path
	}

	s, d := &c.Settings, defaults.Settings
	if s.DataDir == "" {
		s.DataDir = d.DataDir
	}
	if s.CacheDir == "" {
		s.CacheDir = d.CacheDir
	}
	if s.StateDir == "" {
		s.StateDir = d.StateDir
	}
	if s.RefreshSchedule == "" {
		s.RefreshSchedule = d.RefreshSchedule
	}
	if s.LoadTimeout == 0 {
		s.LoadTimeout = d.LoadTimeout
	}
	if s.MaxConcurrentLoads == 0 {
		s.MaxConcurrentLoads = d.MaxConcurrentLoads
	}
	if s.HTTPTimeout == 0 {
		s.HTTPTimeout = d.HTTPTimeout
	}
	if s.MaxConcurrentDownloads == 0 {
		s.MaxConcurrentDownloads = d.MaxConcurrentDownloads
	}
	if len(s.URLSchemes) == 0 {
		s.URLSchemes = d.URLSchemes
	}
	if s.CacheTTL == 0 {
		s.CacheTTL = d.CacheTTL
	}
	if s.CacheSize == 0 {
		s.CacheSize = d.CacheSize
	}
	if s.LogLevel == "" {
		s.LogLevel = d.LogLevel
	}
	if s.LogFormat == "" {
		s.LogFormat = d.LogFormat
	}

	if c.Distros == nil {
		c.Distros = defaults.Distros
	}
}

// String renders a one-line summary used in startup logs.
func (c *Config) String() string {
	ids := make([]string, 0, len(c.Distros))
	for _, d := range c.Distros {
		ids = append(ids, d.ID)
	}
	return fmt.Sprintf("bus=%s distros=[%s] schedule=%q", c.Bus.Type, strings.Join(ids, ","), c.Settings.RefreshSchedule)
}
