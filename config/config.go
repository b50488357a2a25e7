package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Environment variables holding the required settings.
const (
	EnvAPIKey        = "OPENROUTER_API_KEY"
	EnvBaseURL       = "OPENROUTER_BASE_URL"
	EnvModel         = "OPENROUTER_MODEL"
	EnvSessionSecret = "SESSION_SECRET"

	// EnvLegacySessionSecret is read when SESSION_SECRET is unset.
	EnvLegacySessionSecret = "FLASK_SECRET_KEY"

	EnvHTTPReferer = "OPENROUTER_HTTP_REFERER"
	EnvAppTitle    = "OPENROUTER_APP_TITLE"
)

// Supported completion backends.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds the app configuration. It is built once in main and passed to
// the components that need it; nothing mutates it afterwards.
type Config struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	SessionSecret string `yaml:"session_secret"`

	Provider       string        `yaml:"provider"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HTTPReferer    string        `yaml:"http_referer"`
	AppTitle       string        `yaml:"app_title"`

	ListenAddr      string        `yaml:"listen_addr"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`

	// Usage ledger; disabled when UsageDB is empty.
	UsageDB            string        `yaml:"usage_db"`
	PricingFile        string        `yaml:"pricing_file"`
	UsageRetention     time.Duration `yaml:"usage_retention"`
	UsagePruneSchedule string        `yaml:"usage_prune_schedule"`
}

// Default returns a Config populated with default values for every optional
// setting.
func Default() *Config {
	return &Config{
		Provider:           ProviderOpenAI,
		ListenAddr:         "127.0.0.1:5000",
		MaxBodyBytes:       1 << 20,
		ShutdownTimeout:    10 * time.Second,
		Metrics:            true,
		LogLevel:           "info",
		LogFormat:          "json",
		UsageRetention:     30 * 24 * time.Hour,
		UsagePruneSchedule: "@daily",
	}
}

// UsageEnabled reports whether the usage ledger is configured.
func (c *Config) UsageEnabled() bool { return c.UsageDB != "" }

// Load builds the configuration from defaults, an optional YAML file, the
// environment and finally the command-line flags in args, then validates it.
func Load(args []string) (*Config, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("chatrelay", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	fs.String("listen", cfg.ListenAddr, "address to listen on")
	fs.String("provider", cfg.Provider, "completion backend: openai or gemini")
	fs.Duration("request-timeout", 0, "per-call timeout for the completion provider (0 uses the client default)")
	fs.Int64("max-body-bytes", cfg.MaxBodyBytes, "maximum accepted /chat request body size")
	fs.Duration("shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	fs.Bool("metrics", cfg.Metrics, "expose Prometheus metrics on /metrics")
	fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", cfg.LogFormat, "log format: json or text")
	fs.String("log-file", "", "write logs to this file (rotated) instead of stderr")
	fs.String("usage-db", "", "SQLite file for the usage ledger (empty disables it)")
	fs.String("pricing-file", "", "YAML pricing table used to cost ledger entries")
	fs.Duration("usage-retention", cfg.UsageRetention, "how long ledger rows are kept")
	fs.String("usage-prune-schedule", cfg.UsagePruneSchedule, "cron schedule for ledger pruning")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(lookup)
	if err := cfg.applyFlags(fs); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, names ...string) {
		for _, name := range names {
			if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	set(&c.APIKey, EnvAPIKey)
	set(&c.BaseURL, EnvBaseURL)
	set(&c.Model, EnvModel)
	set(&c.SessionSecret, EnvSessionSecret, EnvLegacySessionSecret)
	set(&c.HTTPReferer, EnvHTTPReferer)
	set(&c.AppTitle, EnvAppTitle)
}

// applyFlags copies only the flags that were given explicitly, so that file
// and environment values survive when a flag is left at its default.
func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "listen":
			c.ListenAddr, err = fs.GetString(f.Name)
		case "provider":
			c.Provider, err = fs.GetString(f.Name)
		case "request-timeout":
			c.RequestTimeout, err = fs.GetDuration(f.Name)
		case "max-body-bytes":
			c.MaxBodyBytes, err = fs.GetInt64(f.Name)
		case "shutdown-timeout":
			c.ShutdownTimeout, err = fs.GetDuration(f.Name)
		case "metrics":
			c.Metrics, err = fs.GetBool(f.Name)
		case "log-level":
			c.LogLevel, err = fs.GetString(f.Name)
		case "log-format":
			c.LogFormat, err = fs.GetString(f.Name)
		case "log-file":
			c.LogFile, err = fs.GetString(f.Name)
		case "usage-db":
			c.UsageDB, err = fs.GetString(f.Name)
		case "pricing-file":
			c.PricingFile, err = fs.GetString(f.Name)
		case "usage-retention":
			c.UsageRetention, err = fs.GetDuration(f.Name)
		case "usage-prune-schedule":
			c.UsagePruneSchedule, err = fs.GetString(f.Name)
		}
	})
	return err
}

// Validate checks the configuration. Missing required values are reported
// together in a single error.
func (c *Config) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.BaseURL == "" {
		missing = append(missing, EnvBaseURL)
	}
	if c.Model == "" {
		missing = append(missing, EnvModel)
	}
	if c.SessionSecret == "" {
		missing = append(missing, EnvSessionSecret)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	var errs []error
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL %q must be an absolute http(s) URL", c.BaseURL))
	}
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q (want %s or %s)", c.Provider, ProviderOpenAI, ProviderGemini))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout must not be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max body bytes must be positive"))
	}
	if c.UsageEnabled() && c.UsageRetention <= 0 {
		errs = append(errs, errors.New("usage retention must be positive when the usage ledger is enabled"))
	}
	return errors.Join(errs...)
}

// String renders the configuration for startup logs with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf("provider=%s base_url=%s model=%s listen=%s metrics=%t usage_db=%q api_key=%s",
		c.Provider, c.BaseURL, c.Model, c.ListenAddr, c.Metrics, c.UsageDB, mask(c.APIKey))
}

func mask(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
