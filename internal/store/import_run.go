// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// import_run.go keeps the history of import runs: who imported which
// file, how it ended, and where the original upload was archived.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"catalogadmin/internal/models"
)

// ImportRunStore handles import history operations.
type ImportRunStore struct {
	db *sql.DB
}

// NewImportRunStore creates a new ImportRunStore.
func NewImportRunStore(db *sql.DB) *ImportRunStore {
	return &ImportRunStore{db: db}
}

// Record stores a finished run. Recording the same run twice keeps the
// later state.
func (s *ImportRunStore) Record(ctx context.Context, run *models.ImportRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (id, filename, archive_key, status, update_mode,
			total, processed, imported, updated, skipped, error_count, message,
			started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			archive_key = EXCLUDED.archive_key,
			status = EXCLUDED.status,
			processed = EXCLUDED.processed,
			imported = EXCLUDED.imported,
			updated = EXCLUDED.updated,
			skipped = EXCLUDED.skipped,
			error_count = EXCLUDED.error_count,
			message = EXCLUDED.message,
			finished_at = EXCLUDED.finished_at
	`, run.ID, run.Filename, run.ArchiveKey, string(run.Status), run.UpdateMode,
		run.Total, run.Processed, run.Imported, run.Updated, run.Skipped, run.ErrorCount, run.Message,
		run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("record import run: %w", err)
	}
	slog.Debug("import run recorded", "run_id", run.ID, "status", run.Status)
	return nil
}

// Recent returns the most recently finished runs, newest first.
func (s *ImportRunStore) Recent(ctx context.Context, limit int) ([]models.ImportRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, archive_key, status, update_mode, total, processed,
			imported, updated, skipped, error_count, message, started_at, finished_at
		FROM import_runs
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	var runs []models.ImportRun
	for rows.Next() {
		var r models.ImportRun
		if err := rows.Scan(&r.ID, &r.Filename, &r.ArchiveKey, &r.Status, &r.UpdateMode,
			&r.Total, &r.Processed, &r.Imported, &r.Updated, &r.Skipped, &r.ErrorCount,
			&r.Message, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
