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

// Package http exposes the passkey ceremony engine over HTTP.
//
// The begin endpoints return WebAuthn options plus an X-Identity-Id
// correlation header; the finish endpoints take that header back with
// the authenticator's response. Attestation and assertion payloads are
// accepted bare or nested under a "credential" key, covering both client
// generations.
//
// Error responses follow a strict disclosure policy: every
// verification-class failure (bad signature, unrecognized credential,
// malformed payload, suspected replay) maps to one opaque 401 so the
// endpoint cannot be used as a forgery oracle. Replays are still counted
// and logged distinctly server-side.
package http
