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
	"errors"
	"fmt"
)

// Sentinel errors for passkey ceremony operations.
var (
	// ErrIdentityNotFound is returned when the identity lookup key does not
	// resolve to a known account.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrNoCredentials is returned when authentication is started for an
	// identity with no bound credentials.
	ErrNoCredentials = errors.New("identity has no registered credentials")

	// ErrNoPendingCeremony is returned when a finish call arrives with no
	// outstanding challenge for the identity. The challenge may have
	// expired, been consumed by an earlier finish, or been replaced by a
	// newer start.
	ErrNoPendingCeremony = errors.New("no pending ceremony for identity")

	// ErrVerificationFailed is returned when the ceremony response fails
	// cryptographic or binding verification. It deliberately carries no
	// detail about which check failed.
	ErrVerificationFailed = errors.New("ceremony verification failed")

	// ErrMalformedCredential is returned when the registration payload does
	// not yield a credential ID and public key in any known layout.
	ErrMalformedCredential = errors.New("malformed credential payload")

	// ErrCredentialNotRecognized is returned when an assertion references a
	// credential ID that is not bound to the identity.
	ErrCredentialNotRecognized = errors.New("credential not recognized")

	// ErrCredentialExists is returned when registering a credential ID that
	// is already bound. Credential IDs are globally unique.
	ErrCredentialExists = errors.New("credential already registered")

	// ErrReplaySuspected is returned when an assertion carries a signature
	// counter that did not increase past the stored value. This indicates a
	// cloned authenticator or state desynchronization and is treated as a
	// security event.
	ErrReplaySuspected = errors.New("replay suspected: signature counter did not increase")

	// ErrUnavailable is returned when the ceremony engine has not been
	// configured. Callers embedding the engine as an optional capability
	// can match on this and keep unrelated routes working.
	ErrUnavailable = errors.New("passkey ceremony engine unavailable")
)

// Error wraps a ceremony error with the operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with the given operation and cause.
func NewError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsIdentityNotFound returns true if the error indicates an unknown identity.
func IsIdentityNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound)
}

// IsNoPendingCeremony returns true if the error indicates a missing or
// consumed challenge.
func IsNoPendingCeremony(err error) bool {
	return errors.Is(err, ErrNoPendingCeremony)
}

// IsVerificationFailed returns true if the error is any of the
// verification-class failures that must be presented opaquely to end
// users: failed verification, a malformed credential payload, an
// unrecognized credential, or a suspected replay.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed) ||
		errors.Is(err, ErrMalformedCredential) ||
		errors.Is(err, ErrCredentialNotRecognized) ||
		errors.Is(err, ErrReplaySuspected)
}

// IsReplaySuspected returns true if the error indicates a counter replay.
// Callers should log these distinctly from ordinary verification failures.
func IsReplaySuspected(err error) bool {
	return errors.Is(err, ErrReplaySuspected)
}
