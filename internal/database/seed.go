package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Seed makes sure both taxonomies have their Uncategorized root. Cascading
// deletes create them lazily anyway; seeding just makes them visible in a
// fresh development database.
func Seed(db *sql.DB) error {
	res, err := db.Exec(`
		INSERT INTO categories (name, type, parent_id, level)
		VALUES ('Uncategorized', 'vendor', NULL, 1), ('Uncategorized', 'store', NULL, 1)
		ON CONFLICT (type, (COALESCE(parent_id, 0)), name) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("seed uncategorized: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	slog.Info("database seeded with uncategorized roots", "created", n)
	return nil
}
