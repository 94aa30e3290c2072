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
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// MemoryIdentityStore is an in-memory implementation of IdentityStore.
// Intended for development and testing; production deployments adapt
// their account collaborator instead.
type MemoryIdentityStore struct {
	mu      sync.RWMutex
	byID    map[string]Identity
	byEmail map[string]Identity
}

// NewMemoryIdentityStore creates a new in-memory identity store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		byID:    make(map[string]Identity),
		byEmail: make(map[string]Identity),
	}
}

// Add registers an identity with the store.
func (s *MemoryIdentityStore) Add(identity Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[hex.EncodeToString(identity.WebAuthnID())] = identity
	s.byEmail[identity.Email()] = identity
}

// GetByEmail resolves an identity by its contact address.
func (s *MemoryIdentityStore) GetByEmail(ctx context.Context, email string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byEmail[email]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return identity, nil
}

// GetByID resolves an identity by its stable identifier.
func (s *MemoryIdentityStore) GetByID(ctx context.Context, identityID []byte) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[hex.EncodeToString(identityID)]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return identity, nil
}

// Count returns the number of identities in the store.
func (s *MemoryIdentityStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// MemoryChallengeStore is an in-memory implementation of ChallengeStore:
// one live entry per identity, last-write-wins, destructive reads.
// Suitable for single-process deployments only; challenge issuance and
// consumption must land on the same instance.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	entries map[string]*challengeEntry
	ttl     time.Duration
}

type challengeEntry struct {
	data      *webauthn.SessionData
	createdAt time.Time
}

// DefaultChallengeTTL bounds how long a started ceremony can wait for
// its finish.
const DefaultChallengeTTL = 2 * time.Minute

// NewMemoryChallengeStore creates an in-memory challenge store with the
// default TTL.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return NewMemoryChallengeStoreWithTTL(DefaultChallengeTTL)
}

// NewMemoryChallengeStoreWithTTL creates an in-memory challenge store
// with a custom TTL.
func NewMemoryChallengeStoreWithTTL(ttl time.Duration) *MemoryChallengeStore {
	return &MemoryChallengeStore{
		entries: make(map[string]*challengeEntry),
		ttl:     ttl,
	}
}

// Put stores ceremony session data for an identity, overwriting any
// outstanding entry.
func (s *MemoryChallengeStore) Put(ctx context.Context, identityID []byte, data *webauthn.SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[hex.EncodeToString(identityID)] = &challengeEntry{
		data:      data,
		createdAt: time.Now(),
	}
	return nil
}

// Take retrieves and removes the outstanding entry for an identity. The
// lookup and delete happen under one lock so concurrent finishes cannot
// both consume the same challenge.
func (s *MemoryChallengeStore) Take(ctx context.Context, identityID []byte) (*webauthn.SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(identityID)
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNoPendingCeremony
	}
	delete(s.entries, key)

	if time.Since(entry.createdAt) > s.ttl {
		return nil, ErrNoPendingCeremony
	}
	return entry.data, nil
}

// Count returns the number of outstanding challenges.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup removes expired entries and reports how many were removed.
func (s *MemoryChallengeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range s.entries {
		if now.Sub(entry.createdAt) > s.ttl {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// MemoryCredentialStore is an in-memory implementation of
// CredentialStore. Intended for development and testing.
type MemoryCredentialStore struct {
	mu         sync.RWMutex
	byID       map[string]*Credential
	byIdentity map[string][]*Credential
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:       make(map[string]*Credential),
		byIdentity: make(map[string][]*Credential),
	}
}

// Append binds a new credential, enforcing global credential ID
// uniqueness.
func (s *MemoryCredentialStore) Append(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(cred.ID)
	if _, ok := s.byID[credKey]; ok {
		return ErrCredentialExists
	}

	identityKey := hex.EncodeToString(cred.IdentityID)
	s.byID[credKey] = cred
	s.byIdentity[identityKey] = append(s.byIdentity[identityKey], cred)
	return nil
}

// GetByID retrieves a credential by its credential ID.
func (s *MemoryCredentialStore) GetByID(ctx context.Context, credentialID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrCredentialNotRecognized
	}
	copied := *cred
	return &copied, nil
}

// ListByIdentity retrieves all credentials bound to an identity.
func (s *MemoryCredentialStore) ListByIdentity(ctx context.Context, identityID []byte) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := s.byIdentity[hex.EncodeToString(identityID)]
	result := make([]*Credential, len(creds))
	for i, c := range creds {
		copied := *c
		result[i] = &copied
	}
	return result, nil
}

// CountByIdentity reports how many credentials an identity has bound.
func (s *MemoryCredentialStore) CountByIdentity(ctx context.Context, identityID []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byIdentity[hex.EncodeToString(identityID)]), nil
}

// UpdateCounter persists a new signature counter. The compare and the
// write happen under one lock, so concurrent authentications cannot both
// pass the replay check against a stale value.
func (s *MemoryCredentialStore) UpdateCounter(ctx context.Context, credentialID []byte, newCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrCredentialNotRecognized
	}
	if newCount <= cred.SignCount {
		return ErrReplaySuspected
	}
	cred.SignCount = newCount
	cred.LastUsedAt = time.Now().UTC()
	return nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
