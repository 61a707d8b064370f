package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/onnwee/streambot/db"
)

// SetupTestDB connects to TEST_PG_DSN, runs migrations and empties the bot tables.
// It skips the test if TEST_PG_DSN environment variable is not set.
func SetupTestDB(t *testing.T) *db.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	database, err := db.Connect(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB := database.SQL()
	defer sqlDB.Close()
	if err := db.RunMigrations(sqlDB); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.Pool.Exec(ctx, `TRUNCATE oauth_tokens, ledger_users, ledger_counters, thanked_followers`); err != nil {
		database.Close()
		t.Fatalf("failed to reset tables: %v", err)
	}
	t.Cleanup(database.Close)
	return database
}
