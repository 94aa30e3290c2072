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

// Package sqlite provides SQLite-backed implementations of the passkey
// credential and challenge stores. A shared database lets challenge
// issuance and consumption land on different process instances, which
// the in-memory stores cannot support.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	_ "modernc.org/sqlite"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

const schema = `
CREATE TABLE IF NOT EXISTS passkey_credentials (
	credential_id    TEXT PRIMARY KEY,
	identity_id      TEXT NOT NULL,
	public_key       BLOB NOT NULL,
	attestation_type TEXT NOT NULL DEFAULT '',
	transports       TEXT NOT NULL DEFAULT '',
	sign_count       INTEGER NOT NULL DEFAULT 0,
	user_verified    INTEGER NOT NULL DEFAULT 0,
	backup_eligible  INTEGER NOT NULL DEFAULT 0,
	registered_at    INTEGER NOT NULL,
	last_used_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_passkey_credentials_identity
	ON passkey_credentials(identity_id);

CREATE TABLE IF NOT EXISTS passkey_challenges (
	identity_id  TEXT PRIMARY KEY,
	session_json TEXT NOT NULL,
	expires_at   INTEGER NOT NULL
);
`

// Store implements passkey.CredentialStore and passkey.ChallengeStore on
// a SQLite database.
type Store struct {
	db           *sql.DB
	challengeTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithChallengeTTL overrides the default challenge lifetime.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.challengeTTL = ttl
	}
}

// Open opens (and migrates) a SQLite database at the given DSN.
func Open(dsn string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent ceremonies.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	s := &Store{
		db:           db,
		challengeTTL: passkey.DefaultChallengeTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append binds a new credential, enforcing global credential ID
// uniqueness.
func (s *Store) Append(ctx context.Context, cred *passkey.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	credKey := hex.EncodeToString(cred.ID)
	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM passkey_credentials WHERE credential_id = ?`, credKey).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	if exists > 0 {
		return passkey.ErrCredentialExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO passkey_credentials
			(credential_id, identity_id, public_key, attestation_type,
			 transports, sign_count, user_verified, backup_eligible, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		credKey,
		hex.EncodeToString(cred.IdentityID),
		cred.PublicKey,
		cred.AttestationType,
		joinTransports(cred.Transports),
		cred.SignCount,
		boolToInt(cred.UserVerified),
		boolToInt(cred.BackupEligible),
		toMillis(cred.RegisteredAt),
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}

	return tx.Commit()
}

// GetByID retrieves a credential by its credential ID.
func (s *Store) GetByID(ctx context.Context, credentialID []byte) (*passkey.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT credential_id, identity_id, public_key, attestation_type,
		       transports, sign_count, user_verified, backup_eligible,
		       registered_at, last_used_at
		FROM passkey_credentials WHERE credential_id = ?`,
		hex.EncodeToString(credentialID))

	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrCredentialNotRecognized
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return cred, nil
}

// ListByIdentity retrieves all credentials bound to an identity.
func (s *Store) ListByIdentity(ctx context.Context, identityID []byte) ([]*passkey.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT credential_id, identity_id, public_key, attestation_type,
		       transports, sign_count, user_verified, backup_eligible,
		       registered_at, last_used_at
		FROM passkey_credentials WHERE identity_id = ?
		ORDER BY registered_at`,
		hex.EncodeToString(identityID))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	creds := make([]*passkey.Credential, 0)
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// CountByIdentity reports how many credentials an identity has bound.
func (s *Store) CountByIdentity(ctx context.Context, identityID []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM passkey_credentials WHERE identity_id = ?`,
		hex.EncodeToString(identityID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return count, nil
}

// UpdateCounter persists a new signature counter. The strictly-greater
// comparison rides inside the UPDATE's WHERE clause, so the check and
// the write are one atomic statement.
func (s *Store) UpdateCounter(ctx context.Context, credentialID []byte, newCount uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	credKey := hex.EncodeToString(credentialID)
	res, err := s.db.ExecContext(ctx, `
		UPDATE passkey_credentials
		SET sign_count = ?, last_used_at = ?
		WHERE credential_id = ? AND sign_count < ?`,
		newCount, toMillis(time.Now().UTC()), credKey, newCount)
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing updated: unknown credential or a stale counter.
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM passkey_credentials WHERE credential_id = ?`, credKey).Scan(&exists); err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	if exists == 0 {
		return passkey.ErrCredentialNotRecognized
	}
	return passkey.ErrReplaySuspected
}

// Put stores ceremony session data for an identity, overwriting any
// outstanding entry.
func (s *Store) Put(ctx context.Context, identityID []byte, data *webauthn.SessionData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO passkey_challenges (identity_id, session_json, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(identity_id) DO UPDATE SET
			session_json = excluded.session_json,
			expires_at = excluded.expires_at`,
		hex.EncodeToString(identityID),
		string(payload),
		toMillis(time.Now().Add(s.challengeTTL)),
	)
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// Take retrieves and removes the outstanding entry for an identity. The
// select and delete share a transaction so concurrent finishes cannot
// both consume the same challenge.
func (s *Store) Take(ctx context.Context, identityID []byte) (*webauthn.SessionData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	key := hex.EncodeToString(identityID)
	var payload string
	var expiresAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT session_json, expires_at FROM passkey_challenges WHERE identity_id = ?`, key).
		Scan(&payload, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrNoPendingCeremony
		}
		return nil, fmt.Errorf("get challenge: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM passkey_challenges WHERE identity_id = ?`, key); err != nil {
		return nil, fmt.Errorf("delete challenge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if fromMillis(expiresAt).Before(time.Now()) {
		return nil, passkey.ErrNoPendingCeremony
	}

	var data webauthn.SessionData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &data, nil
}

// SweepExpiredChallenges removes challenges that expired before now.
// Intended to run periodically from the server.
func (s *Store) SweepExpiredChallenges(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM passkey_challenges WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return fmt.Errorf("sweep challenges: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*passkey.Credential, error) {
	var (
		credKey, identityKey        string
		attestationType, transports string
		publicKey                   []byte
		signCount                   uint32
		userVerified, backupOK      int
		registeredAt                int64
		lastUsedAt                  sql.NullInt64
	)
	err := row.Scan(&credKey, &identityKey, &publicKey, &attestationType,
		&transports, &signCount, &userVerified, &backupOK,
		&registeredAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}

	id, err := hex.DecodeString(credKey)
	if err != nil {
		return nil, fmt.Errorf("decode credential id: %w", err)
	}
	identityID, err := hex.DecodeString(identityKey)
	if err != nil {
		return nil, fmt.Errorf("decode identity id: %w", err)
	}

	cred := &passkey.Credential{
		ID:              id,
		IdentityID:      identityID,
		PublicKey:       publicKey,
		AttestationType: attestationType,
		Transports:      splitTransports(transports),
		SignCount:       signCount,
		UserVerified:    userVerified != 0,
		BackupEligible:  backupOK != 0,
		RegisteredAt:    fromMillis(registeredAt),
	}
	if lastUsedAt.Valid {
		cred.LastUsedAt = fromMillis(lastUsedAt.Int64)
	}
	return cred, nil
}

func joinTransports(transports []protocol.AuthenticatorTransport) string {
	parts := make([]string, len(transports))
	for i, t := range transports {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitTransports(raw string) []protocol.AuthenticatorTransport {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	transports := make([]protocol.AuthenticatorTransport, len(parts))
	for i, p := range parts {
		transports[i] = protocol.AuthenticatorTransport(p)
	}
	return transports
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
