// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads the server configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Config represents the complete server configuration.
type Config struct {
	Server       ServerConfig     `yaml:"server"`
	RelyingParty passkey.Config   `yaml:"relying_party"`
	Session      SessionConfig    `yaml:"session"`
	Storage      StorageConfig    `yaml:"storage"`
	RateLimit    ratelimit.Config `yaml:"ratelimit"`
	Logging      LoggingConfig    `yaml:"logging"`
	Identities   []IdentityConfig `yaml:"identities"`
}

// ServerConfig contains server-level settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SessionConfig controls session token issuance.
type SessionConfig struct {
	// Issuer is the JWT issuer claim.
	Issuer string `yaml:"issuer"`

	// Audience is the JWT audience claim.
	Audience []string `yaml:"audience"`

	// LoginTTL is the validity window for possession-proved logins.
	LoginTTL time.Duration `yaml:"login_ttl"`

	// ImpersonationTTL is the validity window for delegated sessions.
	ImpersonationTTL time.Duration `yaml:"impersonation_ttl"`

	// SecretFile holds the HMAC signing secret.
	SecretFile string `yaml:"secret_file"`
}

// StorageConfig selects the credential and challenge store backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// DSN is the SQLite data source name when the backend is "sqlite".
	DSN string `yaml:"dsn"`

	// ChallengeTTL bounds how long a started ceremony can wait for its
	// finish.
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// IdentityConfig seeds an account into the built-in identity store. The
// production deployment replaces this with an adapter to the account
// service.
type IdentityConfig struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Role        string `yaml:"role"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills in unset fields.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageMemory
	}
	if c.Storage.ChallengeTTL == 0 {
		c.Storage.ChallengeTTL = passkey.DefaultChallengeTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	c.RelyingParty.SetDefaults()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.RelyingParty.Validate(); err != nil {
		return fmt.Errorf("relying_party: %w", err)
	}

	switch c.Storage.Backend {
	case StorageMemory, StorageSQLite:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == StorageSQLite && c.Storage.DSN == "" {
		return fmt.Errorf("storage: dsn is required for the sqlite backend")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}

	return nil
}

// SessionSecret reads the HMAC signing secret. Returns nil when no
// secret file is configured; the server then falls back to unsigned
// identity-ID tokens.
func (c *Config) SessionSecret() ([]byte, error) {
	if c.Session.SecretFile == "" {
		return nil, nil
	}
	secret, err := os.ReadFile(c.Session.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("read session secret: %w", err)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	return secret, nil
}
