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
	"encoding/binary"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Identity is the account a ceremony protects. Applications implement
// this interface to integrate their own account model; the engine only
// reads it and appends to its credential list through the stores.
//
// The interface embeds webauthn.User from the go-webauthn library to
// ensure compatibility with the underlying ceremony operations.
type Identity interface {
	webauthn.User

	// Email returns the identity's contact address, the external lookup key.
	Email() string

	// DisplayName returns the identity's human-readable name.
	DisplayName() string

	// Role returns the role label embedded in issued session tokens. The
	// engine does not interpret it.
	Role() string
}

// Credential is one bound authenticator, the public key record stored by
// the relying party.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	// Immutable and globally unique.
	ID []byte `json:"id"`

	// IdentityID is the stable identity identifier this credential is
	// bound to.
	IdentityID []byte `json:"identity_id"`

	// PublicKey is the authenticator's verification key in COSE format,
	// captured at registration. Immutable.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used.
	AttestationType string `json:"attestation_type"`

	// Transports hints which transports the authenticator supports. Used
	// only to shape client prompts, never for verification.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// SignCount is the authenticator's signature counter. It must strictly
	// increase on every successful authentication; a non-increasing value
	// fails the ceremony with ErrReplaySuspected.
	SignCount uint32 `json:"sign_count"`

	// UserVerified indicates the authenticator verified the user (not just
	// presence) at registration.
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be synced off-device.
	BackupEligible bool `json:"backup_eligible"`

	// RegisteredAt is when the credential was bound. Informational.
	RegisteredAt time.Time `json:"registered_at"`

	// LastUsedAt is when the credential last completed authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// ToWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transports,
		Flags: webauthn.CredentialFlags{
			UserVerified:   c.UserVerified,
			BackupEligible: c.BackupEligible,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}
}

// Descriptor returns the credential as a WebAuthn descriptor, suitable
// for allow and exclusion lists.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.ID,
		Transport:    c.Transports,
	}
}

// fromWebAuthnCredential builds a Credential record from a verified
// go-webauthn credential.
func fromWebAuthnCredential(identityID []byte, wc *webauthn.Credential) *Credential {
	return &Credential{
		ID:              wc.ID,
		IdentityID:      identityID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transports:      wc.Transport,
		SignCount:       wc.Authenticator.SignCount,
		UserVerified:    wc.Flags.UserVerified,
		BackupEligible:  wc.Flags.BackupEligible,
		RegisteredAt:    time.Now().UTC(),
	}
}

// DefaultIdentity is a simple implementation of the Identity interface.
// Applications can use it directly or as a reference for adapting their
// own account model.
type DefaultIdentity struct {
	id          []byte
	email       string
	displayName string
	role        string
	credentials []*Credential
}

// NewDefaultIdentity creates a DefaultIdentity with the given attributes.
func NewDefaultIdentity(id []byte, email, displayName, role string) *DefaultIdentity {
	return &DefaultIdentity{
		id:          id,
		email:       email,
		displayName: displayName,
		role:        role,
	}
}

// NewDefaultIdentityFromEmail creates a DefaultIdentity with an ID
// derived deterministically from the email.
func NewDefaultIdentityFromEmail(email, displayName, role string) *DefaultIdentity {
	return NewDefaultIdentity(DeriveIdentityID(email), email, displayName, role)
}

// DeriveIdentityID generates a deterministic 8-byte identity identifier
// from an email address, suitable for WebAuthn user handles.
func DeriveIdentityID(email string) []byte {
	// FNV-1a for a stable, collision-resistant-enough handle
	var h uint64 = 14695981039346656037
	for _, b := range []byte(email) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, h)
	return id
}

// WebAuthnID returns the identity's stable WebAuthn user handle.
func (i *DefaultIdentity) WebAuthnID() []byte {
	return i.id
}

// WebAuthnName returns the identity's username (the contact address).
func (i *DefaultIdentity) WebAuthnName() string {
	return i.email
}

// WebAuthnDisplayName returns the identity's display name.
func (i *DefaultIdentity) WebAuthnDisplayName() string {
	if i.displayName == "" {
		return i.email
	}
	return i.displayName
}

// WebAuthnCredentials returns the identity's bound credentials.
func (i *DefaultIdentity) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(i.credentials))
	for n, c := range i.credentials {
		creds[n] = c.ToWebAuthn()
	}
	return creds
}

// Email returns the identity's contact address.
func (i *DefaultIdentity) Email() string {
	return i.email
}

// DisplayName returns the identity's display name.
func (i *DefaultIdentity) DisplayName() string {
	return i.displayName
}

// Role returns the identity's role label.
func (i *DefaultIdentity) Role() string {
	return i.role
}

// AddCredential appends a credential to the identity's list.
func (i *DefaultIdentity) AddCredential(cred *Credential) {
	i.credentials = append(i.credentials, cred)
}

// SetCredentials replaces the identity's credential list.
func (i *DefaultIdentity) SetCredentials(creds []*Credential) {
	i.credentials = creds
}

// Credentials returns the identity's credential records.
func (i *DefaultIdentity) Credentials() []*Credential {
	return i.credentials
}
