// Package migrations embeds the schema and applies it in filename order.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Pending lists the up migrations not yet recorded in schema_migrations.
func Pending(ctx context.Context, db *sql.DB) ([]string, error) {
	if err := ensureTable(ctx, db); err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}

	all, err := upFiles()
	if err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}

	var pending []string
	for _, name := range all {
		if !applied[version(name)] {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

// Apply runs every pending up migration, each in its own transaction, and
// returns the versions it applied.
func Apply(ctx context.Context, db *sql.DB) ([]string, error) {
	pending, err := Pending(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}

	var done []string
	for _, name := range pending {
		if err := applyFile(ctx, db, name); err != nil {
			return done, fmt.Errorf("Apply: %s: %w", name, err)
		}
		done = append(done, version(name))
	}
	return done, nil
}

func applyFile(ctx context.Context, db *sql.DB, name string) error {
	content, err := fs.ReadFile(files, name)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1)`, version(name),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func upFiles() ([]string, error) {
	names, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func version(name string) string {
	return strings.TrimSuffix(name, ".up.sql")
}
