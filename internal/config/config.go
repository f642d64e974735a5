package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAddr is used when neither SSOBRIDGE_ADDR nor PORT is set
const DefaultAddr = ":8080"

// DefaultAuditCollection is the Firestore collection for exchange audit records
const DefaultAuditCollection = "sso_exchanges"

// Config represents the application configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
	Audit  AuditConfig  `yaml:"audit"`
}

// ServerConfig represents the HTTP listener configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AuthConfig represents the Firebase Auth configuration
type AuthConfig struct {
	ProjectID    string `yaml:"project_id"`
	Credentials  string `yaml:"credentials,omitempty"`   // service account JSON path
	TenantID     string `yaml:"tenant_id,omitempty"`     // Identity Platform tenant
	CheckRevoked bool   `yaml:"check_revoked,omitempty"` // also reject revoked sessions
}

// LogConfig represents logger settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `yaml:"format"` // "json" | "console"
}

// AuditConfig represents the optional Firestore audit trail
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ProjectID   string `yaml:"project_id,omitempty"`
	Database    string `yaml:"database,omitempty"`
	Collection  string `yaml:"collection,omitempty"`
	Credentials string `yaml:"credentials,omitempty"`
}

// Load reads configuration from the specified YAML file.
// Environment variables override file values (see applyEnv).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv builds configuration from environment variables only
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnv overrides fields with SSOBRIDGE_* variables.
// PORT and GOOGLE_CLOUD_PROJECT are honoured as fallbacks since the
// Cloud Functions and Cloud Run runtimes set them.
func (c *Config) applyEnv() error {
	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}
	setBool := func(dst *bool, key string) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		*dst = b
		return nil
	}

	setString(&c.Server.Addr, "SSOBRIDGE_ADDR")
	if c.Server.Addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			c.Server.Addr = ":" + port
		}
	}

	setString(&c.Auth.ProjectID, "SSOBRIDGE_AUTH_PROJECT_ID")
	if c.Auth.ProjectID == "" {
		setString(&c.Auth.ProjectID, "GOOGLE_CLOUD_PROJECT")
	}
	setString(&c.Auth.Credentials, "SSOBRIDGE_AUTH_CREDENTIALS")
	setString(&c.Auth.TenantID, "SSOBRIDGE_AUTH_TENANT_ID")
	if err := setBool(&c.Auth.CheckRevoked, "SSOBRIDGE_AUTH_CHECK_REVOKED"); err != nil {
		return err
	}

	setString(&c.Log.Level, "SSOBRIDGE_LOG_LEVEL")
	setString(&c.Log.Format, "SSOBRIDGE_LOG_FORMAT")

	if err := setBool(&c.Audit.Enabled, "SSOBRIDGE_AUDIT_ENABLED"); err != nil {
		return err
	}
	setString(&c.Audit.ProjectID, "SSOBRIDGE_AUDIT_PROJECT_ID")
	setString(&c.Audit.Database, "SSOBRIDGE_AUDIT_DATABASE")
	setString(&c.Audit.Collection, "SSOBRIDGE_AUDIT_COLLECTION")
	setString(&c.Audit.Credentials, "SSOBRIDGE_AUDIT_CREDENTIALS")

	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Audit.Enabled {
		if c.Audit.ProjectID == "" {
			c.Audit.ProjectID = c.Auth.ProjectID
		}
		if c.Audit.Credentials == "" {
			c.Audit.Credentials = c.Auth.Credentials
		}
		if c.Audit.Collection == "" {
			c.Audit.Collection = DefaultAuditCollection
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not supported (supported: debug, info, warn, error)", c.Log.Level)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is not supported (supported: json, console)", c.Log.Format)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Audit.Enabled && c.Audit.ProjectID == "" {
		return fmt.Errorf("audit.project_id is required when audit is enabled")
	}

	return nil
}
