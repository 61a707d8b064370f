package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/onnwee/streambot/crypto"
)

// ErrNoEncryptor is returned by SealToken when the DB was opened without a key.
var ErrNoEncryptor = errors.New("db: no encryptor configured")

// PlaintextProviders lists providers whose token row has encryption_version 0.
func (d *DB) PlaintextProviders(ctx context.Context) ([]string, error) {
	rows, err := d.Pool.Query(ctx, `SELECT provider FROM oauth_tokens WHERE encryption_version = 0 ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("query plaintext tokens: %w", err)
	}
	providers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan plaintext tokens: %w", err)
	}
	return providers, nil
}

// SealToken encrypts one plaintext row in place. The update only matches while
// the row is still at version 0, so a concurrent upsert is not overwritten.
func (d *DB) SealToken(ctx context.Context, provider string) error {
	if d.enc == nil {
		return ErrNoEncryptor
	}
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var access, refresh string
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(access_token,''), COALESCE(refresh_token,'')
		FROM oauth_tokens WHERE provider = $1 AND encryption_version = 0 FOR UPDATE`, provider).
		Scan(&access, &refresh)
	if err != nil {
		return fmt.Errorf("read token %s: %w", provider, err)
	}
	if access, err = crypto.EncryptString(d.enc, access); err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	if refresh, err = crypto.EncryptString(d.enc, refresh); err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE oauth_tokens
		SET access_token = $1, refresh_token = $2, encryption_version = 1, encryption_key_id = $3, updated_at = NOW()
		WHERE provider = $4 AND encryption_version = 0`,
		access, refresh, d.enc.KeyID(), provider)
	if err != nil {
		return fmt.Errorf("update token %s: %w", provider, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (token may have been modified concurrently)", tag.RowsAffected())
	}
	return tx.Commit(ctx)
}

// EncryptionStatus counts token rows per encryption_version.
func (d *DB) EncryptionStatus(ctx context.Context) (map[int]int, error) {
	rows, err := d.Pool.Query(ctx, `SELECT encryption_version, COUNT(*) FROM oauth_tokens GROUP BY encryption_version`)
	if err != nil {
		return nil, fmt.Errorf("query encryption status: %w", err)
	}
	defer rows.Close()
	out := map[int]int{}
	for rows.Next() {
		var version, count int
		if err := rows.Scan(&version, &count); err != nil {
			return nil, fmt.Errorf("scan encryption status: %w", err)
		}
		out[version] = count
	}
	return out, rows.Err()
}
