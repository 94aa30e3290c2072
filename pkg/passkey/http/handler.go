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

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// maxBodyBytes bounds ceremony payloads; attestation responses are a few
// kilobytes at most.
const maxBodyBytes = 1 << 20

// Handler provides HTTP handlers for the passkey ceremony endpoints.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service *passkey.Service
	logger  *slog.Logger
}

// NewHandler creates a new ceremony HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{"email": "user@example.com"}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions
// Header: X-Identity-Id (correlation id for FinishRegistration)
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer metrics.ObserveCeremonyDuration(metrics.CeremonyRegistration, metrics.PhaseBegin, start)

	email, ok := h.decodeBeginRequest(w, r)
	if !ok {
		return
	}

	options, identityID, err := h.service.BeginRegistration(r.Context(), email)
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseBegin, err)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderIdentityID, base64.RawURLEncoding.EncodeToString(identityID))
	h.writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /registration/finish
//
// Header: X-Identity-Id (from BeginRegistration)
// Request body: attestation response, bare or nested under "credential"
// Response: RegistrationResponse
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer metrics.ObserveCeremonyDuration(metrics.CeremonyRegistration, metrics.PhaseFinish, start)

	identityID, ok := h.decodeIdentityHeader(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "unreadable request body")
		return
	}

	response, err := passkey.ParseRegistrationResponse(body)
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseFinish, err)
		h.handleServiceError(w, err)
		return
	}

	cred, err := h.service.FinishRegistration(r.Context(), identityID, response)
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseFinish, err)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RegistrationResponse{
		Status:       "registered",
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.ID),
	})
}

// BeginLogin handles POST /login/begin
//
// Request body:
//
//	{"email": "user@example.com"}
//
// Response: WebAuthn PublicKeyCredentialRequestOptions
// Header: X-Identity-Id (correlation id for FinishLogin)
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer metrics.ObserveCeremonyDuration(metrics.CeremonyAuthentication, metrics.PhaseBegin, start)

	email, ok := h.decodeBeginRequest(w, r)
	if !ok {
		return
	}

	options, identityID, err := h.service.BeginAuthentication(r.Context(), email)
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseBegin, err)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderIdentityID, base64.RawURLEncoding.EncodeToString(identityID))
	h.writeJSON(w, http.StatusOK, options)
}

// FinishLogin handles POST /login/finish
//
// Header: X-Identity-Id (from BeginLogin)
// Request body: assertion response, bare or nested under "credential"
// Response: LoginResponse with the session token
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer metrics.ObserveCeremonyDuration(metrics.CeremonyAuthentication, metrics.PhaseFinish, start)

	identityID, ok := h.decodeIdentityHeader(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "unreadable request body")
		return
	}

	response, err := passkey.ParseAuthenticationResponse(body)
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseFinish, err)
		h.handleServiceError(w, err)
		return
	}

	token, identity, err := h.service.FinishAuthentication(r.Context(), identityID, response)
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseFinish, err)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	metrics.RecordSessionIssued(metrics.SessionKindLogin)

	h.writeJSON(w, http.StatusOK, LoginResponse{
		Token:      token,
		IdentityID: base64.RawURLEncoding.EncodeToString(identity.WebAuthnID()),
	})
}

// CredentialStatus handles GET /credentials/status?email=...
//
// Response: CredentialStatusResponse
func (h *Handler) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "email is required")
		return
	}

	registered, count, err := h.service.HasCredentials(r.Context(), email)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, CredentialStatusResponse{
		Registered: registered,
		Count:      count,
	})
}

// decodeBeginRequest reads the begin-phase request body.
func (h *Handler) decodeBeginRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req BeginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return "", false
	}
	if req.Email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "email is required")
		return "", false
	}
	return req.Email, true
}

// decodeIdentityHeader reads the correlation id header.
func (h *Handler) decodeIdentityHeader(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw := r.Header.Get(HeaderIdentityID)
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "identity ID header is required")
		return nil, false
	}
	identityID, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid identity ID encoding")
		return nil, false
	}
	return identityID, true
}

// handleServiceError maps engine errors to HTTP responses. Every
// verification-class failure produces the same opaque 401; replays are
// additionally counted and logged for alerting, but the response body is
// indistinguishable from an ordinary verification failure.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case passkey.IsReplaySuspected(err):
		metrics.RecordReplaySuspected()
		h.logger.Warn("authentication rejected by anti-replay check",
			"security_event", "replay")
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed, try again")
	case passkey.IsVerificationFailed(err):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed, try again")
	case passkey.IsNoPendingCeremony(err):
		h.writeError(w, http.StatusBadRequest, ErrorCodeCeremonyExpired, "no pending ceremony, restart the flow")
	case passkey.IsIdentityNotFound(err):
		h.writeError(w, http.StatusNotFound, ErrorCodeIdentityNotFound, "identity not found")
	case errors.Is(err, passkey.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "no credentials registered")
	case errors.Is(err, passkey.ErrUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, ErrorCodeUnavailable, "passkey login is unavailable")
	default:
		h.logger.Error("ceremony request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
