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
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
)

// credentialEnvelope is the legacy client layout that nests the WebAuthn
// response under a "credential" key. Newer clients post the response
// object directly.
type credentialEnvelope struct {
	Credential json.RawMessage `json:"credential"`
}

// unwrapCeremonyPayload returns the effective response object, accepting
// either the bare payload or the legacy envelope. Schema drift between
// the two client generations is absorbed here, at the boundary, instead
// of field-probing inside the engine.
func unwrapCeremonyPayload(body []byte) []byte {
	var env credentialEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Credential) > 0 {
		return env.Credential
	}
	return body
}

// ParseRegistrationResponse parses an attestation payload in either of
// the two known layouts into the engine's parsed form. Returns
// ErrMalformedCredential if neither layout yields a usable credential.
func ParseRegistrationResponse(body []byte) (*protocol.ParsedCredentialCreationData, error) {
	payload := unwrapCeremonyPayload(body)

	var ccr protocol.CredentialCreationResponse
	if err := json.Unmarshal(payload, &ccr); err != nil {
		return nil, WrapError("parse registration response", ErrMalformedCredential)
	}
	parsed, err := ccr.Parse()
	if err != nil {
		return nil, WrapError("parse registration response", ErrMalformedCredential)
	}
	return parsed, nil
}

// ParseAuthenticationResponse parses an assertion payload, accepting the
// same two layouts as registration. A payload that cannot be parsed is
// indistinguishable from a forged one, so it reports the opaque
// verification failure.
func ParseAuthenticationResponse(body []byte) (*protocol.ParsedCredentialAssertionData, error) {
	payload := unwrapCeremonyPayload(body)

	var car protocol.CredentialAssertionResponse
	if err := json.Unmarshal(payload, &car); err != nil {
		return nil, WrapError("parse authentication response", ErrVerificationFailed)
	}
	parsed, err := car.Parse()
	if err != nil {
		return nil, WrapError("parse authentication response", ErrVerificationFailed)
	}
	return parsed, nil
}
