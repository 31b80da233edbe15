// Package platform wires the session engine together: stores, sink,
// reconciler, dispatcher, aggregation, and authentication, built from a
// single YAML configuration.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/castwatch/castwatch/pkg/scopes"
)

// Store provider names.
const (
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
)

// Sink provider names.
const (
	SinkNoop    = "noop"
	SinkWebhook = "webhook"
)

// Config holds the complete engine configuration.
type Config struct {
	Server     ServerConfig            `yaml:"server"`
	Database   DatabaseConfig          `yaml:"database"`
	Auth       AuthConfig              `yaml:"auth"`
	Sink       SinkConfig              `yaml:"sink"`
	Tracking   TrackingConfig          `yaml:"tracking"`
	Scopes     map[string]ScopeDef     `yaml:"scopes"`
	Members    map[string][]string     `yaml:"members"`
	Logging    LoggingConfig           `yaml:"logging"`
}

// ServerConfig configures the HTTP query boundary.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the session and scope stores.
type DatabaseConfig struct {
	// Provider selects the backing store: "memory" or "postgres".
	Provider     string `yaml:"provider"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`

	// Migrate runs schema migrations on startup when true.
	Migrate bool `yaml:"migrate"`
}

// AuthConfig configures API authentication.
type AuthConfig struct {
	// AdminToken is accepted for any scope. Empty disables it.
	AdminToken string `yaml:"admin_token"`

	// Tokens maps scope IDs to their bearer tokens.
	Tokens map[string]string `yaml:"tokens"`

	// JWTSecret enables HMAC JWT verification alongside bearer tokens.
	JWTSecret string `yaml:"jwt_secret"`
}

// SinkConfig configures the role and alert sink.
type SinkConfig struct {
	// Provider selects the sink: "noop" or "webhook".
	Provider string        `yaml:"provider"`
	URL      string        `yaml:"url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TrackingConfig configures presence recognition and event dispatch.
type TrackingConfig struct {
	// Platforms lists the recognized streaming platform names.
	Platforms []string `yaml:"platforms"`

	// URLHosts lists the URL hosts recognized as streaming activity.
	URLHosts []string `yaml:"url_hosts"`

	// SinkTimeout bounds each role-sink call made by the reconciler.
	SinkTimeout time.Duration `yaml:"sink_timeout"`

	// Workers bounds concurrent event processing.
	Workers int `yaml:"workers"`
}

// ScopeDef seeds one scope's settings at startup. Fields mirror the scope
// store's Config; zero values take the store defaults.
type ScopeDef struct {
	RoleMarker      string   `yaml:"role_marker"`
	RequiredGroup   string   `yaml:"required_group"`
	GameWhitelist   []string `yaml:"game_whitelist"`
	Mode            string   `yaml:"mode"`
	AlertChannel    string   `yaml:"alert_channel"`
	AlertAutodelete *bool    `yaml:"alert_autodelete"`
	StatsEnabled    *bool    `yaml:"stats_enabled"`
	RetentionDays   int      `yaml:"retention_days"`
	TopLimit        int      `yaml:"top_limit"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`

	// File, when set, writes rotated logs there instead of stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the
// administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.Provider == "" {
		cfg.Database.Provider = ProviderMemory
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Sink.Provider == "" {
		cfg.Sink.Provider = SinkNoop
	}
	if cfg.Sink.Timeout == 0 {
		cfg.Sink.Timeout = 5 * time.Second
	}
	if cfg.Tracking.SinkTimeout == 0 {
		cfg.Tracking.SinkTimeout = 5 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.provider %q is not recognized", c.Database.Provider))
	}

	switch c.Sink.Provider {
	case SinkNoop:
	case SinkWebhook:
		if c.Sink.URL == "" {
			errs = append(errs, "sink.url is required for the webhook provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("sink.provider %q is not recognized", c.Sink.Provider))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Sprintf("logging.format %q is not recognized", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// scopeConfig converts a ScopeDef into the scope store's Config, filling
// unset fields with the store defaults.
func (d ScopeDef) scopeConfig(scopeID string) scopes.Config {
	cfg := scopes.DefaultConfig(scopeID)
	cfg.RoleMarker = d.RoleMarker
	cfg.RequiredGroup = d.RequiredGroup
	cfg.GameWhitelist = d.GameWhitelist
	if d.Mode != "" {
		cfg.Mode = scopes.Mode(d.Mode)
	}
	cfg.AlertChannel = d.AlertChannel
	if d.AlertAutodelete != nil {
		cfg.AlertAutodelete = *d.AlertAutodelete
	}
	if d.StatsEnabled != nil {
		cfg.StatsEnabled = *d.StatsEnabled
	}
	if d.RetentionDays != 0 {
		cfg.RetentionDays = d.RetentionDays
	}
	if d.TopLimit != 0 {
		cfg.TopLimit = d.TopLimit
	}
	cfg.Normalize()
	return cfg
}
