// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package importer

import (
	"time"

	"catalogadmin/internal/models"
)

// RunRecord summarises a finished stream for the import history. last is
// the final event received; a stream that ended without a terminal event
// was canceled before it could report.
func RunRecord(last Event, opts Options, filename string, startedAt, finishedAt time.Time) models.ImportRun {
	run := models.ImportRun{
		ID:         opts.RunID,
		Filename:   filename,
		UpdateMode: opts.UpdateMode,
		Total:      last.Total,
		Processed:  last.Current,
		Imported:   last.Imported,
		Updated:    last.Updated,
		Skipped:    last.Skipped,
		ErrorCount: last.ErrorCount,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	switch {
	case last.Type == EventComplete:
		run.Status = models.ImportRunCompleted
		run.Processed = last.Total
	case last.Type == EventError && !last.Canceled:
		run.Status = models.ImportRunFailed
		run.Message = last.Message
	default:
		run.Status = models.ImportRunCanceled
		run.Message = last.Message
	}
	return run
}
