package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// execer runs one migration statement.
type execer func(ctx context.Context, stmt string) error

// MigratePostgres applies the embedded PostgreSQL schema. Statements are
// idempotent; "already exists" errors are ignored.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	exec := func(ctx context.Context, stmt string) error {
		_, err := pool.Exec(ctx, stmt)
		return err
	}
	if err := migrate(ctx, "migrations/postgres", exec); err != nil {
		return err
	}
	logger.Info("Database migrations applied")
	return nil
}

// MigrateSQLite applies the embedded SQLite schema.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	exec := func(ctx context.Context, stmt string) error {
		_, err := db.ExecContext(ctx, stmt)
		return err
	}
	return migrate(ctx, "migrations/sqlite", exec)
}

func migrate(ctx context.Context, dir string, exec execer) error {
	files, err := fs.Glob(migrationFS, dir+"/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		migrationSQL, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}

		for _, stmt := range splitStatements(string(migrationSQL)) {
			if err := exec(ctx, stmt); err != nil {
				if !strings.Contains(err.Error(), "already exists") {
					return fmt.Errorf("failed to execute migration %s: %w", file, err)
				}
			}
		}
	}
	return nil
}

// splitStatements splits a migration on semicolons and drops comment lines
// and empty statements.
func splitStatements(migrationSQL string) []string {
	var statements []string
	for _, stmt := range strings.Split(migrationSQL, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt = strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
