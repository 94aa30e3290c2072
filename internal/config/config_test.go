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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `
relying_party:
  id: example.com
  display_name: Example Corp
  origins:
    - https://example.com
`

func TestLoad_MinimalConfigGetsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, passkey.DefaultChallengeTTL, cfg.Storage.ChallengeTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 60*time.Second, cfg.RelyingParty.Timeout)
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
relying_party:
  id: login.example.com
  display_name: Example Login
  origins:
    - https://login.example.com
  timeout: 30s
session:
  issuer: example-login
  audience:
    - example-api
  login_ttl: 24h
  impersonation_ttl: 5m
storage:
  backend: sqlite
  dsn: /var/lib/passkey/passkey.db
  challenge_ttl: 90s
ratelimit:
  enabled: true
  requests_per_minute: 30
  burst: 10
logging:
  level: debug
  format: json
identities:
  - email: admin@example.com
    display_name: Admin
    role: admin
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "login.example.com", cfg.RelyingParty.RPID)
	assert.Equal(t, 30*time.Second, cfg.RelyingParty.Timeout)
	assert.Equal(t, "example-login", cfg.Session.Issuer)
	assert.Equal(t, 24*time.Hour, cfg.Session.LoginTTL)
	assert.Equal(t, 5*time.Minute, cfg.Session.ImpersonationTTL)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, 90*time.Second, cfg.Storage.ChallengeTTL)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	require.Len(t, cfg.Identities, 1)
	assert.Equal(t, "admin@example.com", cfg.Identities[0].Email)
	assert.Equal(t, "admin", cfg.Identities[0].Role)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing relying party",
			content: `server: {port: 8080}`,
		},
		{
			name: "unknown storage backend",
			content: minimalConfig + `
storage:
  backend: postgres
`,
		},
		{
			name: "sqlite without dsn",
			content: minimalConfig + `
storage:
  backend: sqlite
`,
		},
		{
			name: "unknown log level",
			content: minimalConfig + `
logging:
  level: verbose
`,
		},
		{
			name: "unknown log format",
			content: minimalConfig + `
logging:
  format: xml
`,
		},
		{
			name:    "invalid yaml",
			content: `{{{`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSessionSecret(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	// No secret file configured: sessions fall back to unsigned tokens.
	secret, err := cfg.SessionSecret()
	require.NoError(t, err)
	assert.Nil(t, secret)

	// Too-short secrets are rejected.
	short := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(short, []byte("short"), 0600))
	cfg.Session.SecretFile = short
	_, err = cfg.SessionSecret()
	assert.Error(t, err)

	// Valid secret.
	good := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(good, []byte("0123456789abcdef0123456789abcdef"), 0600))
	cfg.Session.SecretFile = good
	secret, err = cfg.SessionSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 32)

	// Missing file.
	cfg.Session.SecretFile = filepath.Join(t.TempDir(), "missing")
	_, err = cfg.SessionSecret()
	assert.Error(t, err)
}
