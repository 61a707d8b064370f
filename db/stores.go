package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/onnwee/streambot/economy"
)

// LedgerStore persists economy snapshots in ledger_users and ledger_counters.
type LedgerStore struct{ DB *DB }

func (s *LedgerStore) Load(ctx context.Context) (economy.Snapshot, error) {
	snap := economy.Snapshot{Counters: map[string]int64{}}

	rows, err := s.DB.Pool.Query(ctx, `SELECT user_id, nick, badges, points, gamble, social_credit FROM ledger_users ORDER BY user_id`)
	if err != nil {
		return snap, fmt.Errorf("load ledger users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (economy.User, error) {
		var u economy.User
		err := row.Scan(&u.ID, &u.Nick, &u.Badges, &u.Points, &u.Gamble, &u.SocialCredit)
		return u, err
	})
	if err != nil {
		return snap, fmt.Errorf("scan ledger users: %w", err)
	}
	snap.Users = users

	rows, err = s.DB.Pool.Query(ctx, `SELECT name, value FROM ledger_counters`)
	if err != nil {
		return snap, fmt.Errorf("load ledger counters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return snap, fmt.Errorf("scan ledger counter: %w", err)
		}
		snap.Counters[name] = value
	}
	return snap, rows.Err()
}

// Save upserts every row of the snapshot in one transaction.
func (s *LedgerStore) Save(ctx context.Context, snap economy.Snapshot) error {
	tx, err := s.DB.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, u := range snap.Users {
		b.Queue(`
			INSERT INTO ledger_users(user_id, nick, badges, points, gamble, social_credit, updated_at)
			VALUES($1,$2,$3,$4,$5,$6,NOW())
			ON CONFLICT(user_id) DO UPDATE SET
				nick=EXCLUDED.nick, badges=EXCLUDED.badges, points=EXCLUDED.points,
				gamble=EXCLUDED.gamble, social_credit=EXCLUDED.social_credit, updated_at=NOW()`,
			u.ID, u.Nick, u.Badges, u.Points, u.Gamble, u.SocialCredit)
	}
	for name, value := range snap.Counters {
		b.Queue(`
			INSERT INTO ledger_counters(name, value, updated_at) VALUES($1,$2,NOW())
			ON CONFLICT(name) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
			name, value)
	}
	if b.Len() > 0 {
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ThankedStore keeps the thanked-follower ids.
type ThankedStore struct{ DB *DB }

func (s *ThankedStore) Load(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT user_id FROM thanked_followers`)
	if err != nil {
		return nil, fmt.Errorf("load thanked followers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *ThankedStore) Append(ctx context.Context, id string) error {
	_, err := s.DB.Pool.Exec(ctx, `INSERT INTO thanked_followers(user_id) VALUES($1) ON CONFLICT DO NOTHING`, id)
	return err
}
