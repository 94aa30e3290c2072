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

package http

// HeaderIdentityID carries the ceremony correlation id between the begin
// and finish phases.
const HeaderIdentityID = "X-Identity-Id"

// BeginRequest is the request body for starting either ceremony.
type BeginRequest struct {
	// Email is the identity's contact address (required).
	Email string `json:"email"`
}

// RegistrationResponse is the response after a completed registration.
type RegistrationResponse struct {
	// Status is always "registered" on success.
	Status string `json:"status"`

	// CredentialID is the base64-encoded bound credential ID.
	CredentialID string `json:"credential_id"`
}

// LoginResponse is the response after a completed authentication.
type LoginResponse struct {
	// Token is the issued session credential.
	Token string `json:"token"`

	// IdentityID is the base64-encoded stable identity identifier.
	IdentityID string `json:"identity_id"`
}

// CredentialStatusResponse reports whether an identity has bound
// credentials.
type CredentialStatusResponse struct {
	// Registered indicates at least one bound credential.
	Registered bool `json:"registered"`

	// Count is the number of bound credentials.
	Count int `json:"count"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse. Verification-class failures all
// share the single opaque verification_failed code.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeIdentityNotFound   = "identity_not_found"
	ErrorCodeNoCredentials      = "no_credentials"
	ErrorCodeCeremonyExpired    = "ceremony_expired"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeUnavailable        = "unavailable"
	ErrorCodeInternalError      = "internal_error"
)
