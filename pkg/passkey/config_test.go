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

package passkey

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid",
			config: Config{
				RPID:          "example.com",
				RPDisplayName: "Example",
				RPOrigins:     []string{"https://example.com"},
			},
		},
		{
			name: "missing RPID",
			config: Config{
				RPDisplayName: "Example",
				RPOrigins:     []string{"https://example.com"},
			},
			wantErr: true,
		},
		{
			name: "missing display name",
			config: Config{
				RPID:      "example.com",
				RPOrigins: []string{"https://example.com"},
			},
			wantErr: true,
		},
		{
			name: "missing origins",
			config: Config{
				RPID:          "example.com",
				RPDisplayName: "Example",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, 60*time.Second, cfg.Timeout)

	cfg = &Config{Timeout: 30 * time.Second}
	cfg.SetDefaults()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestConfig_ToWebAuthnConfig_FixedPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.SetDefaults()

	wcfg := cfg.ToWebAuthnConfig()
	require.NotNil(t, wcfg)

	assert.Equal(t, cfg.RPID, wcfg.RPID)
	assert.Equal(t, cfg.RPDisplayName, wcfg.RPDisplayName)
	assert.Equal(t, cfg.RPOrigins, wcfg.RPOrigins)

	// Ceremony policy is not configurable: verification required,
	// resident keys discouraged, no attestation requested.
	assert.Equal(t, protocol.VerificationRequired, wcfg.AuthenticatorSelection.UserVerification)
	assert.Equal(t, protocol.ResidentKeyRequirementDiscouraged, wcfg.AuthenticatorSelection.ResidentKey)
	assert.Equal(t, protocol.PreferNoAttestation, wcfg.AttestationPreference)

	assert.True(t, wcfg.Timeouts.Login.Enforce)
	assert.Equal(t, cfg.Timeout, wcfg.Timeouts.Login.Timeout)
	assert.True(t, wcfg.Timeouts.Registration.Enforce)
	assert.Equal(t, cfg.Timeout, wcfg.Timeouts.Registration.Timeout)
}
