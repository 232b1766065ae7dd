// Package config provides configuration loading and validation for the engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pranavsaji/autoapply-pro/internal/decision"
)

// Duration wraps time.Duration so YAML can carry values like "30s" or "24h".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML accepts either a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Config is the full engine configuration. It can be loaded from a YAML file;
// missing values use defaults, and a few operational fields can be overridden
// from the environment.
type Config struct {
	// Server
	ListenAddr string `yaml:"listen_addr"`
	JWTSecret  string `yaml:"jwt_secret"`
	// PasswordHash is the bcrypt hash of the API password for token issuance.
	PasswordHash string `yaml:"password_hash"`

	// External services
	DatabaseURL string `yaml:"database_url"`
	GeminiKey   string `yaml:"gemini_api_key"`
	GeminiModel string `yaml:"gemini_model"`

	// Browser
	Headless        bool     `yaml:"headless"`
	BrowserPoolSize int      `yaml:"browser_pool_size"`
	StepTimeout     Duration `yaml:"step_timeout"`
	SnapshotDir     string   `yaml:"snapshot_dir"`

	// Queue
	Concurrency     int      `yaml:"concurrency"`
	RatePerMinute   float64  `yaml:"rate_per_minute"`
	ApprovalTimeout Duration `yaml:"approval_timeout"`
	MaxRetries      int      `yaml:"max_retries"`

	// Policy
	RequireApproval *bool  `yaml:"require_approval"` // pointer so an explicit false survives merging
	CoverLetters    string `yaml:"cover_letters"`    // tailored | none

	// Decision preferences
	Prefs decision.Prefs `yaml:"prefs"`
}

// Default returns the stock configuration. Human approval is on and must be
// switched off deliberately.
func Default() Config {
	on := true
	return Config{
		ListenAddr:      ":8090",
		GeminiModel:     "gemini-2.0-flash",
		Headless:        true,
		BrowserPoolSize: 2,
		StepTimeout:     Duration(30 * time.Second),
		SnapshotDir:     os.TempDir(),
		Concurrency:     2,
		RatePerMinute:   8,
		ApprovalTimeout: Duration(24 * time.Hour),
		MaxRetries:      2,
		RequireApproval: &on,
		CoverLetters:    "tailored",
		Prefs:           decision.DefaultPrefs(),
	}
}

// Load reads a YAML config file and merges it over the defaults, then applies
// environment overrides. An empty path returns defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return Config{}, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and connection strings from the environment, so
// they never need to live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.GeminiKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("API_PASSWORD_HASH"); v != "" {
		c.PasswordHash = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Headless = b
		}
	}
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("config error: 'concurrency' must be positive")
	}
	if c.RatePerMinute <= 0 {
		return fmt.Errorf("config error: 'rate_per_minute' must be positive")
	}
	if c.ApprovalTimeout <= 0 {
		return fmt.Errorf("config error: 'approval_timeout' must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config error: 'max_retries' must be non-negative")
	}
	if c.BrowserPoolSize <= 0 {
		return fmt.Errorf("config error: 'browser_pool_size' must be positive")
	}
	switch c.CoverLetters {
	case "tailored", "none":
	default:
		return fmt.Errorf("config error: 'cover_letters' must be tailored or none, got %q", c.CoverLetters)
	}
	if c.Prefs.Threshold < 0 || c.Prefs.Threshold > 1 {
		return fmt.Errorf("config error: 'prefs.threshold' must be in [0, 1]")
	}
	return nil
}

// ApprovalRequired reports the effective human approval policy.
func (c *Config) ApprovalRequired() bool {
	return c.RequireApproval == nil || *c.RequireApproval
}
