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

// Package passkey implements the WebAuthn ceremony engine for binding
// hardware authenticators to accounts and exchanging proof of possession
// for a session token.
//
// The engine runs two two-phase ceremonies. Registration binds a new
// authenticator credential to an existing identity; authentication
// verifies an assertion against a stored credential's public key and
// hands the identity to a SessionIssuer. Between the begin and finish
// phases, the single outstanding challenge per identity lives in a
// ChallengeStore with destructive reads, so each started ceremony can be
// finished at most once.
//
// Ceremony policy is fixed: user verification is required and resident
// keys are discouraged. The signature counter must strictly increase on
// every authentication; a stale counter fails with ErrReplaySuspected
// even when the signature itself is valid.
//
// Accounts are owned by an external collaborator reached through
// IdentityStore. The engine reads identities and appends to their
// credential list; it never creates or deletes accounts.
//
// Basic usage:
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config: &passkey.Config{
//	        RPID:          "example.com",
//	        RPDisplayName: "Example Corp",
//	        RPOrigins:     []string{"https://example.com"},
//	    },
//	    IdentityStore:   identities,
//	    ChallengeStore:  passkey.NewMemoryChallengeStore(),
//	    CredentialStore: passkey.NewMemoryCredentialStore(),
//	    SessionIssuer:   issuer,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	options, identityID, err := svc.BeginRegistration(ctx, "user@example.com")
//	// send options to the browser, then:
//	cred, err := svc.FinishRegistration(ctx, identityID, response)
package passkey
