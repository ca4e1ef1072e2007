package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// Schema changes live in migrations/*.sql with goose annotations and are
// compiled into the binary.
// ══════════════════════════════════════════════════════════════════════════════

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationFS returns the embedded migration files rooted at their directory.
func MigrationFS() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration describes one migration file and whether it is applied.
type Migration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator runs the embedded migrations through goose over the pgx pool.
type Migrator struct {
	provider *goose.Provider
}

// NewMigrator builds a migrator on top of conn. Close releases the
// database/sql handle; the pool itself stays open.
func NewMigrator(conn *Connection) (*Migrator, error) {
	db := stdlib.OpenDBFromPool(conn.Pool())
	provider, err := goose.NewProvider(goose.DialectPostgres, db, MigrationFS())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	return &Migrator{provider: provider}, nil
}

// Close closes the database/sql handle.
func (m *Migrator) Close() error {
	return m.provider.Close()
}

// Migrate applies all pending migrations and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	return len(results), nil
}

// Rollback rolls back the last applied migration. It returns the version
// rolled back, or 0 when nothing was applied.
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	res, err := m.provider.Down(ctx)
	if err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	return int(res.Source.Version), nil
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	list, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	out := make([]Migration, 0, len(list))
	for _, st := range list {
		out = append(out, Migration{
			Version:   int(st.Source.Version),
			Name:      migrationName(st.Source.Path),
			AppliedAt: st.AppliedAt,
			IsApplied: st.State == goose.StateApplied,
		})
	}
	return out, nil
}

// migrationName turns "00002_create_assessments_and_goals.sql" into
// "create_assessments_and_goals".
func migrationName(p string) string {
	base := strings.TrimSuffix(path.Base(p), ".sql")
	if _, name, ok := strings.Cut(base, "_"); ok {
		return name
	}
	return base
}
