// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (DATABASE_URL, LOOM_* overrides)
//  2. Config file (~/.loom/config.yaml, or ./config.yaml)
//  3. Default values
//
// Sentinel errors allow callers to match validation failures with errors.Is.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/loomkit/loom/knowledge"
	"github.com/loomkit/loom/supersession"
)

var (
	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates an unrecognized sslmode value.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidProject indicates the tenant project is empty.
	ErrInvalidProject = errors.New("invalid project")

	// ErrInvalidChainDepth indicates max_chain_depth is not positive.
	ErrInvalidChainDepth = errors.New("invalid max chain depth")

	// ErrInvalidBoost indicates a promotion boost outside [0, 1].
	ErrInvalidBoost = errors.New("invalid promotion boost")
)

// Config stores application configuration.
type Config struct {
	// Tenant identity
	Project  string `mapstructure:"project"`
	Branch   string `mapstructure:"branch"`
	PathHash string `mapstructure:"path_hash"`

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Retrieval defaults, used when a caller passes zero-value options
	MinRelevanceScore float64 `mapstructure:"min_relevance_score"`
	MaxResults        int     `mapstructure:"max_results"`
	MaxLinkedDocs     int     `mapstructure:"max_linked_docs"`
	MaxLinkDepth      int     `mapstructure:"max_link_depth"`
	IncludeCritical   bool    `mapstructure:"include_critical"`
	RelevanceBoosting bool    `mapstructure:"relevance_boosting"`

	// Ranking boosts per promotion tier
	CriticalBoost  float64 `mapstructure:"critical_boost"`
	ImportantBoost float64 `mapstructure:"important_boost"`

	// Supersession chain walk cap
	MaxChainDepth int `mapstructure:"max_chain_depth"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".loom")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("branch", "main")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "loom")
	v.SetDefault("postgres_password", "loom_dev_password")
	v.SetDefault("postgres_db_name", "loom")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("min_relevance_score", 0.7)
	v.SetDefault("max_results", 10)
	v.SetDefault("max_linked_docs", 10)
	v.SetDefault("max_link_depth", 2)
	v.SetDefault("include_critical", true)
	v.SetDefault("relevance_boosting", true)

	v.SetDefault("critical_boost", 0.15)
	v.SetDefault("important_boost", 0.10)

	v.SetDefault("max_chain_depth", supersession.DefaultMaxChainDepth)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds explicit environment overrides. Hardcoded keys
// cannot fail to bind; a panic here is a bug.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("project", "LOOM_PROJECT")
	mustBind("branch", "LOOM_BRANCH")
	mustBind("path_hash", "LOOM_PATH_HASH")
	mustBind("log_level", "LOOM_LOG_LEVEL")
	mustBind("log_json", "LOOM_LOG_JSON")
}

// Validate checks configuration for correctness. Returns the first violated
// sentinel error, wrapped with detail.
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("%w: project must not be empty", ErrInvalidProject)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	if c.MaxChainDepth < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidChainDepth, c.MaxChainDepth)
	}
	for _, boost := range []float64{c.CriticalBoost, c.ImportantBoost} {
		if boost < 0 || boost > 1 {
			return fmt.Errorf("%w: %v out of range [0, 1]", ErrInvalidBoost, boost)
		}
	}
	return nil
}

// Tenant returns the tenant identity this configuration targets.
func (c *Config) Tenant() knowledge.TenantID {
	return knowledge.TenantID{Project: c.Project, Branch: c.Branch, PathHash: c.PathHash}
}

// RetrievalOptions returns the configured retrieval defaults.
func (c *Config) RetrievalOptions() knowledge.RetrievalOptions {
	return knowledge.RetrievalOptions{
		MinRelevanceScore:      float32(c.MinRelevanceScore),
		MaxResults:             c.MaxResults,
		MaxLinkedDocs:          c.MaxLinkedDocs,
		MaxLinkDepth:           c.MaxLinkDepth,
		IncludeCritical:        c.IncludeCritical,
		ApplyRelevanceBoosting: c.RelevanceBoosting,
	}
}
