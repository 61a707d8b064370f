// Command seal-tokens encrypts OAuth tokens that were stored before ENCRYPTION_KEY
// was configured (encryption_version=0) so the bot can keep reading them.
//
// Usage:
//
//	seal-tokens [--dry-run]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/onnwee/streambot/crypto"
	"github.com/onnwee/streambot/db"
)

type sealer interface {
	PlaintextProviders(ctx context.Context) ([]string, error)
	SealToken(ctx context.Context, provider string) error
	EncryptionStatus(ctx context.Context) (map[int]int, error)
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be sealed without making changes")
	flag.Parse()

	_ = godotenv.Load(".env")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	enc, err := crypto.FromEnv(os.Getenv)
	if err != nil {
		slog.Error("invalid ENCRYPTION_KEY", slog.Any("err", err))
		os.Exit(1)
	}
	if enc == nil {
		slog.Error("ENCRYPTION_KEY environment variable is required")
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, dsn, enc)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("err", err))
		os.Exit(1)
	}
	defer database.Close()

	if err := sealAll(ctx, database, *dryRun); err != nil {
		slog.Error("sealing failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := report(ctx, database); err != nil {
		slog.Error("status query failed", slog.Any("err", err))
		os.Exit(1)
	}
}

// sealAll seals every plaintext row, continuing past individual failures.
func sealAll(ctx context.Context, s sealer, dryRun bool) error {
	providers, err := s.PlaintextProviders(ctx)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		slog.Info("no plaintext tokens found")
		return nil
	}
	slog.Info("found plaintext tokens", slog.Int("count", len(providers)), slog.Bool("dry_run", dryRun))

	var errs []error
	for _, p := range providers {
		log := slog.With(slog.String("provider", p))
		if dryRun {
			log.Info("would seal token (dry-run)")
			continue
		}
		if err := s.SealToken(ctx, p); err != nil {
			log.Error("failed to seal token", slog.Any("err", err))
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		log.Info("sealed token")
	}
	return errors.Join(errs...)
}

func report(ctx context.Context, s sealer) error {
	status, err := s.EncryptionStatus(ctx)
	if err != nil {
		return err
	}
	slog.Info("token encryption status", slog.Int("plaintext", status[0]), slog.Int("encrypted", status[1]))
	return nil
}
