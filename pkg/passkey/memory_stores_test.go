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
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdentityStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()

	identity := NewDefaultIdentityFromEmail("user@example.com", "User", "user")
	store.Add(identity)
	assert.Equal(t, 1, store.Count())

	byEmail, err := store.GetByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, identity.WebAuthnID(), byEmail.WebAuthnID())

	byID, err := store.GetByID(ctx, identity.WebAuthnID())
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", byID.Email())

	_, err = store.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	_, err = store.GetByID(ctx, []byte("bogus"))
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestMemoryChallengeStore_TakeIsDestructive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()
	identityID := []byte("identity-1")

	require.NoError(t, store.Put(ctx, identityID, &webauthn.SessionData{Challenge: "c1"}))

	data, err := store.Take(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, "c1", data.Challenge)

	// Consumed: a second take finds nothing.
	_, err = store.Take(ctx, identityID)
	assert.ErrorIs(t, err, ErrNoPendingCeremony)
}

func TestMemoryChallengeStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()
	identityID := []byte("identity-1")

	require.NoError(t, store.Put(ctx, identityID, &webauthn.SessionData{Challenge: "old"}))
	require.NoError(t, store.Put(ctx, identityID, &webauthn.SessionData{Challenge: "new"}))
	assert.Equal(t, 1, store.Count())

	data, err := store.Take(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, "new", data.Challenge)
}

func TestMemoryChallengeStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStoreWithTTL(10 * time.Millisecond)
	identityID := []byte("identity-1")

	require.NoError(t, store.Put(ctx, identityID, &webauthn.SessionData{Challenge: "c1"}))
	time.Sleep(25 * time.Millisecond)

	_, err := store.Take(ctx, identityID)
	assert.ErrorIs(t, err, ErrNoPendingCeremony)

	// The expired take also removed the entry.
	assert.Equal(t, 0, store.Count())
}

func TestMemoryChallengeStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStoreWithTTL(10 * time.Millisecond)

	require.NoError(t, store.Put(ctx, []byte("a"), &webauthn.SessionData{Challenge: "ca"}))
	require.NoError(t, store.Put(ctx, []byte("b"), &webauthn.SessionData{Challenge: "cb"}))
	time.Sleep(25 * time.Millisecond)
	require.NoError(t, store.Put(ctx, []byte("c"), &webauthn.SessionData{Challenge: "cc"}))

	removed := store.Cleanup()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Count())
}

func TestMemoryCredentialStore_AppendAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	cred := &Credential{
		ID:           []byte("cred-1"),
		IdentityID:   []byte("identity-1"),
		PublicKey:    []byte("key-1"),
		SignCount:    3,
		RegisteredAt: time.Now().UTC(),
	}
	require.NoError(t, store.Append(ctx, cred))
	assert.Equal(t, 1, store.Count())

	got, err := store.GetByID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, cred.PublicKey, got.PublicKey)
	assert.Equal(t, uint32(3), got.SignCount)

	// GetByID returns a copy; mutating it must not leak into the store.
	got.SignCount = 99
	again, err := store.GetByID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), again.SignCount)

	_, err = store.GetByID(ctx, []byte("missing"))
	assert.ErrorIs(t, err, ErrCredentialNotRecognized)
}

func TestMemoryCredentialStore_AppendDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	cred := &Credential{ID: []byte("cred-1"), IdentityID: []byte("identity-1"), PublicKey: []byte("k")}
	require.NoError(t, store.Append(ctx, cred))

	err := store.Append(ctx, &Credential{ID: []byte("cred-1"), IdentityID: []byte("identity-2"), PublicKey: []byte("k2")})
	assert.ErrorIs(t, err, ErrCredentialExists)
}

func TestMemoryCredentialStore_ListAndCountByIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	require.NoError(t, store.Append(ctx, &Credential{ID: []byte("a"), IdentityID: []byte("id-1"), PublicKey: []byte("k")}))
	require.NoError(t, store.Append(ctx, &Credential{ID: []byte("b"), IdentityID: []byte("id-1"), PublicKey: []byte("k")}))
	require.NoError(t, store.Append(ctx, &Credential{ID: []byte("c"), IdentityID: []byte("id-2"), PublicKey: []byte("k")}))

	creds, err := store.ListByIdentity(ctx, []byte("id-1"))
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	count, err := store.CountByIdentity(ctx, []byte("id-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.CountByIdentity(ctx, []byte("id-3"))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryCredentialStore_UpdateCounter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	require.NoError(t, store.Append(ctx, &Credential{
		ID:         []byte("cred-1"),
		IdentityID: []byte("id-1"),
		PublicKey:  []byte("k"),
		SignCount:  5,
	}))

	// Equal and lower counters are replays.
	assert.ErrorIs(t, store.UpdateCounter(ctx, []byte("cred-1"), 5), ErrReplaySuspected)
	assert.ErrorIs(t, store.UpdateCounter(ctx, []byte("cred-1"), 4), ErrReplaySuspected)

	// The rejected updates left the counter alone.
	got, err := store.GetByID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.SignCount)
	assert.True(t, got.LastUsedAt.IsZero())

	require.NoError(t, store.UpdateCounter(ctx, []byte("cred-1"), 6))
	got, err = store.GetByID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), got.SignCount)
	assert.False(t, got.LastUsedAt.IsZero())

	assert.ErrorIs(t, store.UpdateCounter(ctx, []byte("missing"), 1), ErrCredentialNotRecognized)
}
