// Package config loads client configuration from YAML with environment expansion.
//
// Values may reference environment variables as ${VAR} or ${VAR:-default}.
// A .env file next to the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level client configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Session   SessionConfig   `yaml:"session"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig describes the remote conversion API.
type APIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	UserAgent       string        `yaml:"user_agent"`
	MaxResponseSize int64         `yaml:"max_response_size"`
}

// SessionConfig controls credential handling.
type SessionConfig struct {
	ProtectedPrefixes []string `yaml:"protected_prefixes"`
	LoginPath         string   `yaml:"login_path"`
	// Token seeds the Token Store at startup, as if a credential was already live.
	Token string `yaml:"token"`
}

// ReconcileConfig controls the credit reconciliation poller.
type ReconcileConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	StepDelay   time.Duration `yaml:"step_delay"`
}

// JournalConfig controls the local conversion journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // stderr, stdout, or a file path
}

// Default returns a configuration populated with package defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:         DefaultAPIBaseURL,
			Timeout:         DefaultRequestTimeout,
			UserAgent:       DefaultUserAgent,
			MaxResponseSize: MaxResponseSize,
		},
		Session: SessionConfig{
			ProtectedPrefixes: append([]string(nil), DefaultProtectedPrefixes...),
			LoginPath:         LoginPath,
		},
		Reconcile: ReconcileConfig{
			MaxAttempts: DefaultReconcileAttempts,
			BaseDelay:   DefaultReconcileBaseDelay,
			StepDelay:   DefaultReconcileStepDelay,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    defaultJournalPath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
		},
	}
}

// Load reads a YAML config file. An empty path yields Default() with env overrides.
func Load(path string) (*Config, error) {
	loadDotEnv()

	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}

	// #nosec G304 -- path is supplied by the operator on the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML bytes on top of Default().
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := ExpandEnvWithDefaults(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.fillZeroValues()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL: %q", c.API.BaseURL)
	}
	if c.Reconcile.MaxAttempts < 1 {
		return fmt.Errorf("reconcile.max_attempts must be at least 1, got %d", c.Reconcile.MaxAttempts)
	}
	if c.Reconcile.BaseDelay < 0 || c.Reconcile.StepDelay < 0 {
		return errors.New("reconcile delays must not be negative")
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		return errors.New("journal.path is required when the journal is enabled")
	}
	return nil
}

// applyEnv lets a few well-known variables override the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("CONVERT_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("CONVERT_SESSION_TOKEN"); v != "" {
		c.Session.Token = v
	}
	if v := os.Getenv("CONVERT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) fillZeroValues() {
	if c.API.Timeout <= 0 {
		c.API.Timeout = DefaultRequestTimeout
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = DefaultUserAgent
	}
	if c.API.MaxResponseSize <= 0 {
		c.API.MaxResponseSize = MaxResponseSize
	}
	if len(c.Session.ProtectedPrefixes) == 0 {
		c.Session.ProtectedPrefixes = append([]string(nil), DefaultProtectedPrefixes...)
	}
	if c.Session.LoginPath == "" {
		c.Session.LoginPath = LoginPath
	}
	c.Journal.Path = expandHome(c.Journal.Path)
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvWithDefaults expands ${VAR} and ${VAR:-default} references.
// Unset variables without a default expand to the empty string.
func ExpandEnvWithDefaults(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRefPattern.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[3]
	})
}

func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	// Existing environment wins over .env entries.
	_ = godotenv.Load(".env")
}

func defaultJournalPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return DefaultJournalFile
	}
	return filepath.Join(dir, "convertctl", DefaultJournalFile)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
