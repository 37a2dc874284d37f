// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// ImportRunStatus is the final state of an import run.
type ImportRunStatus string

const (
	ImportRunCompleted ImportRunStatus = "completed"
	ImportRunFailed    ImportRunStatus = "failed"
	ImportRunCanceled  ImportRunStatus = "canceled"
)

// ImportRun is the history record of one import. Counts are those reached
// when the run ended; for failed and canceled runs they cover the chunks
// that were committed.
type ImportRun struct {
	ID         string          `json:"id"`
	Filename   string          `json:"filename"`
	ArchiveKey string          `json:"archive_key,omitempty"`
	Status     ImportRunStatus `json:"status"`
	UpdateMode bool            `json:"update_mode"`
	Total      int             `json:"total"`
	Processed  int             `json:"processed"`
	Imported   int             `json:"imported"`
	Updated    int             `json:"updated"`
	Skipped    int             `json:"skipped"`
	ErrorCount int             `json:"error_count"`
	Message    string          `json:"message,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}
