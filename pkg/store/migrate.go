package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/store/migrations"
)

// runMigrations applies every embedded .up.sql migration not yet recorded
// in schema_migrations, in version order. golang-migrate has no pure-Go
// sqlite3 database.Driver (its sqlite3 driver requires mattn/go-sqlite3,
// which needs cgo and would defeat the point of glebarez/sqlite), so this
// uses golang-migrate only as a *source* of ordered, named migration
// bodies via iofs and applies them with the store's own execute_script
// against the pure-Go driver.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, dirty INTEGER NOT NULL DEFAULT 0)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read first migration: %w", err)
	}

	for {
		applied, err := isApplied(ctx, db, version)
		if err != nil {
			return err
		}
		if !applied {
			if err := applyMigration(ctx, db, src, version); err != nil {
				return err
			}
		}

		next, err := src.Next(version)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read next migration after %d: %w", version, err)
		}
		version = next
	}
	return nil
}

func isApplied(ctx context.Context, db *sql.DB, version uint) (bool, error) {
	var dirty bool
	err := db.QueryRowContext(ctx, `SELECT dirty FROM schema_migrations WHERE version = ?`, version).Scan(&dirty)
	switch {
	case err == nil:
		if dirty {
			return false, fmt.Errorf("migration %d previously failed and left the schema dirty; manual repair required", version)
		}
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

func applyMigration(ctx context.Context, db *sql.DB, src source.Driver, version uint) error {
	r, identifier, err := src.ReadUp(version)
	if err != nil {
		return fmt.Errorf("read migration %d: %w", version, err)
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read migration %d body: %w", version, err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (?, 1)`, version); err != nil {
		return fmt.Errorf("mark migration %d dirty: %w", version, err)
	}

	if _, err := db.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", version, identifier, err)
	}

	if _, err := db.ExecContext(ctx, `UPDATE schema_migrations SET dirty = 0 WHERE version = ?`, version); err != nil {
		return fmt.Errorf("mark migration %d clean: %w", version, err)
	}

	logger.Info("applied migration", "version", version, "name", identifier)
	return nil
}
