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
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Service is the ceremony engine. It runs the two-phase registration and
// authentication ceremonies, owns the outstanding-challenge lifecycle,
// and enforces the anti-replay counter invariant.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	identities IdentityStore
	challenges ChallengeStore
	creds      CredentialStore
	sessions   SessionIssuer // optional
	logger     *slog.Logger
	configured bool
}

// ServiceParams contains dependencies for creating a ceremony engine.
type ServiceParams struct {
	// Config is the relying party configuration (required).
	Config *Config

	// IdentityStore resolves accounts (required).
	IdentityStore IdentityStore

	// ChallengeStore holds outstanding ceremony challenges (required).
	ChallengeStore ChallengeStore

	// CredentialStore persists bound credentials (required).
	CredentialStore CredentialStore

	// SessionIssuer mints session tokens after authentication. If nil,
	// FinishAuthentication returns the base64-encoded identity ID.
	SessionIssuer SessionIssuer

	// Logger receives engine logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewService creates a ceremony engine with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.IdentityStore == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		identities: params.IdentityStore,
		challenges: params.ChallengeStore,
		creds:      params.CredentialStore,
		sessions:   params.SessionIssuer,
		logger:     logger,
		configured: true,
	}, nil
}

// available reports whether the engine can serve ceremonies. A nil
// engine is a valid "capability absent" state for callers that treat
// passkey login as optional.
func (s *Service) available() bool {
	return s != nil && s.configured
}

// BeginRegistration starts the registration ceremony for an existing
// identity. It returns the creation options to delegate to the local
// authenticator plus the identity's stable identifier for correlating
// the finish call.
func (s *Service) BeginRegistration(ctx context.Context, email string) (*protocol.CredentialCreation, []byte, error) {
	if !s.available() {
		return nil, nil, ErrUnavailable
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, WrapError("begin registration", err)
	}
	identityID := identity.WebAuthnID()

	bound, err := s.creds.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, nil, WrapError("list credentials", err)
	}

	// Exclude every already-bound credential so the same authenticator
	// cannot be registered twice.
	exclusions := make([]protocol.CredentialDescriptor, len(bound))
	for i, cred := range bound {
		exclusions[i] = cred.Descriptor()
	}

	user := newCeremonyUser(identity, bound)
	options, session, err := s.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, nil, WrapError("begin registration", err)
	}

	// Last-write-wins: a concurrent start for the same identity replaces
	// this challenge and orphans this ceremony's finish.
	if err := s.challenges.Put(ctx, identityID, session); err != nil {
		return nil, nil, WrapError("store challenge", err)
	}

	return options, identityID, nil
}

// FinishRegistration completes the registration ceremony, binding a new
// credential to the identity. No session is issued: registration binds a
// device, it does not log the user in.
func (s *Service) FinishRegistration(ctx context.Context, identityID []byte, response *protocol.ParsedCredentialCreationData) (*Credential, error) {
	if !s.available() {
		return nil, ErrUnavailable
	}
	if response == nil {
		return nil, WrapError("finish registration", ErrMalformedCredential)
	}

	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, WrapError("finish registration", err)
	}

	session, err := s.challenges.Take(ctx, identityID)
	if err != nil {
		return nil, WrapError("finish registration", err)
	}

	bound, err := s.creds.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, WrapError("list credentials", err)
	}

	user := newCeremonyUser(identity, bound)
	credential, err := s.webauthn.CreateCredential(user, *session, response)
	if err != nil {
		// Challenge, origin, RP binding and signature failures all
		// collapse into one opaque error. The cause is logged for
		// operators only.
		s.logger.Debug("registration verification failed", "error", err)
		return nil, WrapError("finish registration", ErrVerificationFailed)
	}

	record := fromWebAuthnCredential(identityID, credential)
	if len(record.ID) == 0 || len(record.PublicKey) == 0 {
		return nil, WrapError("finish registration", ErrMalformedCredential)
	}

	if err := s.creds.Append(ctx, record); err != nil {
		return nil, WrapError("append credential", err)
	}

	return record, nil
}

// BeginAuthentication starts the authentication ceremony. It fails with
// ErrNoCredentials before storing any challenge if the identity has
// nothing to authenticate with.
func (s *Service) BeginAuthentication(ctx context.Context, email string) (*protocol.CredentialAssertion, []byte, error) {
	if !s.available() {
		return nil, nil, ErrUnavailable
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, WrapError("begin authentication", err)
	}
	identityID := identity.WebAuthnID()

	bound, err := s.creds.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, nil, WrapError("list credentials", err)
	}
	if len(bound) == 0 {
		return nil, nil, WrapError("begin authentication", ErrNoCredentials)
	}

	user := newCeremonyUser(identity, bound)
	options, session, err := s.webauthn.BeginLogin(user)
	if err != nil {
		return nil, nil, WrapError("begin authentication", err)
	}

	if err := s.challenges.Put(ctx, identityID, session); err != nil {
		return nil, nil, WrapError("store challenge", err)
	}

	return options, identityID, nil
}

// FinishAuthentication completes the authentication ceremony and issues
// a session token. The assertion is verified against the stored public
// key for the matching credential, never key material supplied by the
// client, and the signature counter must strictly increase.
func (s *Service) FinishAuthentication(ctx context.Context, identityID []byte, response *protocol.ParsedCredentialAssertionData) (string, Identity, error) {
	if !s.available() {
		return "", nil, ErrUnavailable
	}
	if response == nil {
		return "", nil, WrapError("finish authentication", ErrVerificationFailed)
	}

	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return "", nil, WrapError("finish authentication", err)
	}

	session, err := s.challenges.Take(ctx, identityID)
	if err != nil {
		return "", nil, WrapError("finish authentication", err)
	}

	stored, err := s.creds.GetByID(ctx, response.RawID)
	if err != nil {
		return "", nil, WrapError("finish authentication", err)
	}
	if !bytes.Equal(stored.IdentityID, identityID) {
		// Bound to a different identity; legitimately possible if the
		// device was unbound and rebound concurrently.
		return "", nil, WrapError("finish authentication", ErrCredentialNotRecognized)
	}

	user := newCeremonyUser(identity, []*Credential{stored})
	verified, err := s.webauthn.ValidateLogin(user, *session, response)
	if err != nil {
		s.logger.Debug("authentication verification failed", "error", err)
		return "", nil, WrapError("finish authentication", ErrVerificationFailed)
	}

	// Anti-replay: the counter must strictly increase past the stored
	// value. A stale counter on a validly signed assertion means a cloned
	// authenticator or desynchronized state; fail without touching state.
	newCount := verified.Authenticator.SignCount
	if newCount <= stored.SignCount {
		s.logger.Warn("authentication rejected: signature counter did not increase",
			"security_event", "replay",
			"credential_id", base64.RawURLEncoding.EncodeToString(stored.ID),
			"stored_count", stored.SignCount,
			"response_count", newCount)
		return "", nil, WrapError("finish authentication", ErrReplaySuspected)
	}

	// The store re-checks the counter atomically, closing the race where
	// two concurrent finishes both observed the stale value above.
	if err := s.creds.UpdateCounter(ctx, stored.ID, newCount); err != nil {
		if IsReplaySuspected(err) {
			return "", nil, WrapError("finish authentication", err)
		}
		// A failed persistence write after a verified ceremony is
		// surfaced: the caller must not consider the user authenticated.
		return "", nil, WrapError("update counter", err)
	}

	token, err := s.issueSession(ctx, identityID, identity.Role())
	if err != nil {
		return "", nil, WrapError("issue session", err)
	}

	return token, identity, nil
}

// HasCredentials reports whether the identity has any bound credentials
// and how many. Unknown identities report zero rather than an error so
// the endpoint does not become an account oracle.
func (s *Service) HasCredentials(ctx context.Context, email string) (bool, int, error) {
	if !s.available() {
		return false, 0, ErrUnavailable
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if IsIdentityNotFound(err) {
			return false, 0, nil
		}
		return false, 0, WrapError("has credentials", err)
	}

	count, err := s.creds.CountByIdentity(ctx, identity.WebAuthnID())
	if err != nil {
		return false, 0, WrapError("count credentials", err)
	}
	return count > 0, count, nil
}

// Config returns the engine configuration.
func (s *Service) Config() *Config {
	return s.config
}

// issueSession delegates to the configured issuer, or falls back to the
// base64-encoded identity ID when none is wired.
func (s *Service) issueSession(ctx context.Context, identityID []byte, role string) (string, error) {
	if s.sessions != nil {
		return s.sessions.Issue(ctx, identityID, role)
	}
	return base64.RawURLEncoding.EncodeToString(identityID), nil
}

// ceremonyUser adapts a read-only Identity plus its stored credential
// records into the webauthn.User the library verifies against. Allow and
// exclusion lists are always built from the credential store, never from
// whatever the Identity implementation happens to carry.
type ceremonyUser struct {
	Identity
	creds []*Credential
}

func newCeremonyUser(identity Identity, creds []*Credential) *ceremonyUser {
	return &ceremonyUser{Identity: identity, creds: creds}
}

// WebAuthnCredentials returns the stored credential records.
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		creds[i] = c.ToWebAuthn()
	}
	return creds
}
