// Package db is the optional Postgres backend: OAuth tokens, the economy ledger
// and the thanked-follower set.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/streambot/crypto"
)

// DB wraps the pgx pool. enc may be nil, in which case tokens are stored in plaintext.
type DB struct {
	Pool *pgxpool.Pool
	enc  crypto.Encryptor
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string, enc crypto.Encryptor) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	if enc == nil {
		slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext (not recommended for production)", slog.String("component", "db"))
	}
	return &DB{Pool: pool, enc: enc}, nil
}

func (d *DB) Close() { d.Pool.Close() }

func (d *DB) Ping(ctx context.Context) error { return d.Pool.Ping(ctx) }

// SQL exposes the pool through database/sql for the migration driver.
// Callers close the returned handle.
func (d *DB) SQL() *sql.DB { return stdlib.OpenDBFromPool(d.Pool) }

// UpsertOAuthToken stores or replaces the token for provider. With an encryptor
// configured both tokens are sealed and encryption_version is 1.
func (d *DB) UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	version, keyID := 0, ""
	if d.enc != nil {
		var err error
		if access, err = crypto.EncryptString(d.enc, access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = crypto.EncryptString(d.enc, refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		version, keyID = 1, d.enc.KeyID()
	}
	var exp *time.Time
	if !expiry.IsZero() {
		exp = &expiry
	}
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version, encryption_key_id, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT(provider) DO UPDATE SET
			access_token=EXCLUDED.access_token,
			refresh_token=EXCLUDED.refresh_token,
			expires_at=EXCLUDED.expires_at,
			scope=EXCLUDED.scope,
			encryption_version=EXCLUDED.encryption_version,
			encryption_key_id=EXCLUDED.encryption_key_id,
			updated_at=NOW()`,
		provider, access, refresh, exp, scope, version, keyID)
	if err != nil {
		return fmt.Errorf("upsert oauth token %s: %w", provider, err)
	}
	return nil
}

// GetOAuthToken returns zero values and no error when the provider has no row.
func (d *DB) GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error) {
	var (
		exp     *time.Time
		version int
		keyID   string
	)
	err = d.Pool.QueryRow(ctx, `
		SELECT COALESCE(access_token,''), COALESCE(refresh_token,''), expires_at, COALESCE(scope,''),
		       encryption_version, COALESCE(encryption_key_id,'')
		FROM oauth_tokens WHERE provider = $1`, provider).
		Scan(&access, &refresh, &exp, &scope, &version, &keyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", time.Time{}, "", nil
	}
	if err != nil {
		return "", "", time.Time{}, "", fmt.Errorf("get oauth token %s: %w", provider, err)
	}
	if exp != nil {
		expiry = *exp
	}
	if version == 0 {
		return access, refresh, expiry, scope, nil
	}

	if d.enc == nil {
		return "", "", time.Time{}, "", errors.New("token is encrypted but ENCRYPTION_KEY not configured")
	}
	if keyID != "" && keyID != d.enc.KeyID() {
		slog.Warn("oauth token sealed with a different key", slog.String("provider", provider), slog.String("key_id", keyID), slog.String("component", "db"))
	}
	if access, err = crypto.DecryptString(d.enc, access); err != nil {
		return "", "", time.Time{}, "", fmt.Errorf("decrypt access token: %w", err)
	}
	if refresh, err = crypto.DecryptString(d.enc, refresh); err != nil {
		return "", "", time.Time{}, "", fmt.Errorf("decrypt refresh token: %w", err)
	}
	return access, refresh, expiry, scope, nil
}
