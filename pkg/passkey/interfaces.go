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
	"context"

	"github.com/go-webauthn/webauthn/webauthn"
)

// IdentityStore resolves accounts owned by the external account
// collaborator. The ceremony engine never creates or mutates identities;
// it only reads them.
type IdentityStore interface {
	// GetByEmail resolves an identity by its contact address.
	// Returns ErrIdentityNotFound if no account matches.
	GetByEmail(ctx context.Context, email string) (Identity, error)

	// GetByID resolves an identity by its stable identifier.
	// Returns ErrIdentityNotFound if no account matches.
	GetByID(ctx context.Context, identityID []byte) (Identity, error)
}

// ChallengeStore holds the single outstanding ceremony challenge per
// identity. Entries are keyed by the stable identity identifier and are
// last-write-wins: a second start replaces the first's challenge.
//
// Losing all entries on process restart is safe; the caller re-runs the
// ceremony. Multi-process deployments must back this with a shared store
// so start and finish can land on different instances.
type ChallengeStore interface {
	// Put stores ceremony session data for an identity, overwriting any
	// outstanding entry.
	Put(ctx context.Context, identityID []byte, data *webauthn.SessionData) error

	// Take retrieves and removes the outstanding entry for an identity.
	// The read is destructive so at most one finish can consume a given
	// start, even under concurrent finish calls. Returns
	// ErrNoPendingCeremony if no live entry exists.
	Take(ctx context.Context, identityID []byte) (*webauthn.SessionData, error)
}

// CredentialStore persists bound authenticator credentials. The append
// and counter update must be observed atomically relative to concurrent
// reads of the same identity.
type CredentialStore interface {
	// Append binds a new credential. Returns ErrCredentialExists if the
	// credential ID is already bound to any identity.
	Append(ctx context.Context, cred *Credential) error

	// GetByID retrieves a credential by its credential ID.
	// Returns ErrCredentialNotRecognized if the credential is not bound.
	GetByID(ctx context.Context, credentialID []byte) (*Credential, error)

	// ListByIdentity retrieves all credentials bound to an identity.
	// Returns an empty slice if the identity has none.
	ListByIdentity(ctx context.Context, identityID []byte) ([]*Credential, error)

	// CountByIdentity reports how many credentials an identity has bound.
	CountByIdentity(ctx context.Context, identityID []byte) (int, error)

	// UpdateCounter persists a new signature counter for a credential.
	// The compare and the write are a single atomic step: the update
	// succeeds only if newCount is strictly greater than the stored
	// counter, and fails with ErrReplaySuspected otherwise. Two
	// concurrent authentications from a cloned authenticator therefore
	// cannot both pass against a stale value.
	UpdateCounter(ctx context.Context, credentialID []byte, newCount uint32) error
}

// SessionIssuer converts a completed authentication ceremony into an
// opaque, time-bounded session credential. Token format and signing are
// the issuer's concern, not the engine's.
type SessionIssuer interface {
	// Issue mints a session token for the authenticated identity.
	Issue(ctx context.Context, identityID []byte, role string) (string, error)
}
