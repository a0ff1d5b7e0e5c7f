// Package storage implements the persistence layer on PostgreSQL. It
// provides the user, subscription and usage stores plus the lookup
// directory the billing adapters use to resolve provider identifiers to
// users.
package storage

import (
	"context"
	"embed"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfromawe/hyperhash/pkg/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrUserNotFound = errors.New("storage: user not found")
	ErrEmailTaken   = errors.New("storage: email already registered")
)

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrationsFS, "migrations", log)
}
