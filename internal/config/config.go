package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/loykin/swupdate/internal/logger"
	storetls "github.com/loykin/swupdate/internal/tls"
)

const (
	EnvPrefix        = "SWUPDATE"
	DefaultTokenFile = "data/github_token.txt"
	DefaultBaseURL   = "https://api.github.com"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	GitHub   GitHubConfig   `toml:"github" mapstructure:"github"`
	Retry    RetryConfig    `toml:"retry" mapstructure:"retry"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	Schedule ScheduleConfig `toml:"schedule" mapstructure:"schedule"`
	Apt      AptConfig      `toml:"apt" mapstructure:"apt"`
	Scoop    ScoopConfig    `toml:"scoop" mapstructure:"scoop"`
	Store    StoreConfig    `toml:"store" mapstructure:"store"`
}

type GitHubConfig struct {
	Repository string        `toml:"repository" mapstructure:"repository"`
	Issue      int           `toml:"issue" mapstructure:"issue"`
	Token      string        `toml:"token" mapstructure:"token"`
	TokenFile  string        `toml:"token_file" mapstructure:"token_file"`
	BaseURL    string        `toml:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Backoff     time.Duration `toml:"backoff" mapstructure:"backoff"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// HistoryConfig lists sink DSNs; see history/factory for the formats.
type HistoryConfig struct {
	DSNs []string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type ScheduleConfig struct {
	Every time.Duration `toml:"every" mapstructure:"every"`
}

type AptConfig struct {
	Reboot      bool          `toml:"reboot" mapstructure:"reboot"`
	RebootDelay time.Duration `toml:"reboot_delay" mapstructure:"reboot_delay"`
}

type ScoopConfig struct {
	RestartRunning bool `toml:"restart_running" mapstructure:"restart_running"`
	UpdateTries    int  `toml:"update_tries" mapstructure:"update_tries"`
}

// StoreConfig configures the self-hosted issue store served by serve-store.
type StoreConfig struct {
	Listen string           `toml:"listen" mapstructure:"listen"`
	DSN    string           `toml:"dsn" mapstructure:"dsn"`
	Token  string           `toml:"token" mapstructure:"token"`
	TLS    storetls.Options `toml:"tls" mapstructure:"tls"`
}

// LoadDotEnv loads .env and .env.local from dir into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(dir string) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	_ = godotenv.Load(filepath.Join(dir, ".env.local"))
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("github.repository", "")
	v.SetDefault("github.issue", 0)
	v.SetDefault("github.token", "")
	v.SetDefault("github.token_file", DefaultTokenFile)
	v.SetDefault("github.base_url", DefaultBaseURL)
	v.SetDefault("github.timeout", 30*time.Second)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff", 2*time.Second)
	v.SetDefault("log.level", string(logger.LevelInfo))
	v.SetDefault("log.format", string(logger.FormatText))
	v.SetDefault("log.color", false)
	v.SetDefault("log.dir", logger.DefaultDir())
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("history.dsn", []string{})
	v.SetDefault("metrics.listen", "")
	v.SetDefault("schedule.every", time.Hour)
	v.SetDefault("apt.reboot", false)
	v.SetDefault("apt.reboot_delay", 10*time.Second)
	v.SetDefault("scoop.restart_running", false)
	v.SetDefault("scoop.update_tries", 5)
	v.SetDefault("store.listen", ":8080")
	v.SetDefault("store.dsn", "sqlite://swupdate-store.db")
	v.SetDefault("store.token", "")
	v.SetDefault("store.tls.enabled", false)
	v.SetDefault("store.tls.auto_generate", false)

	// names used by CI runners and the log directory override
	_ = v.BindEnv("github.repository", EnvPrefix+"_GITHUB_REPOSITORY", "GITHUB_REPOSITORY")
	_ = v.BindEnv("log.dir", EnvPrefix+"_LOG_DIR", logger.EnvLogDir)
	return v
}

// Load reads the TOML file at path (optional) and applies environment
// overrides. Env files named in the config are loaded before overrides are
// resolved.
func Load(path string) (*FileConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		for _, f := range v.GetStringSlice("env_files") {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", f, err)
			}
		}
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Validate checks the fields every command needs to reach the issue.
func (c *FileConfig) Validate() error {
	var errs []error
	owner, name, ok := strings.Cut(c.GitHub.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		errs = append(errs, fmt.Errorf("github.repository must be owner/name, got %q", c.GitHub.Repository))
	}
	if c.GitHub.Issue <= 0 {
		errs = append(errs, errors.New("github.issue must be a positive issue number"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry.max_attempts must be positive"))
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, errors.New("retry.backoff must not be negative"))
	}
	return errors.Join(errs...)
}

// LoggerConfig maps the [log] section onto the logger package.
func (c *FileConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(c.Log.Level),
			Format:     logger.Format(c.Log.Format),
			Color:      c.Log.Color,
			TimeStamps: true,
		},
		File: logger.FileConfig{
			Dir:        c.Log.Dir,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}

// ResolveToken returns the configured token, falling back to the token file.
func (c *FileConfig) ResolveToken() (string, error) {
	if t := strings.TrimSpace(c.GitHub.Token); t != "" {
		return t, nil
	}
	return LoadToken(c.GitHub.TokenFile)
}

// LoadToken reads a token file and trims surrounding whitespace.
func LoadToken(path string) (string, error) {
	if path == "" {
		path = DefaultTokenFile
	}
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	t := strings.TrimSpace(string(b))
	if t == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return t, nil
}

// ValidIssueNumber parses an issue number given on the command line. Only
// plain decimal digits are accepted.
func ValidIssueNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("issue number is empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid issue number %q", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid issue number %q", s)
	}
	return n, nil
}
