// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"catalogadmin/internal/importer"
	"catalogadmin/internal/models"
	"catalogadmin/internal/storage"
	"catalogadmin/internal/store"
)

type importFlags struct {
	file          string
	mapping       string
	update        bool
	mode          string
	batchSize     int
	hierarchyType string
	archive       bool
	quiet         bool
}

func newImportCmd(a *app) *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import products from a CSV or XLSX file",
		Long: `Import products from a CSV or XLSX file.

Progress is written to stderr after every chunk and the final result is
printed to stdout as JSON. Interrupting the command stops the run after
the chunk in flight; chunks already written stay written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runImport(ctx, a, f)
		},
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", "CSV or XLSX file to import (required)")
	cmd.Flags().StringVar(&f.mapping, "mapping", "", "JSON file mapping file headers to fields (default: headers named like the fields)")
	cmd.Flags().BoolVar(&f.update, "update", false, "Update products whose SKU already exists instead of skipping them")
	cmd.Flags().StringVar(&f.mode, "mode", string(importer.ModeBulk), "Write mode: bulk or row")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "Rows per chunk (default IMPORT_BATCH_SIZE)")
	cmd.Flags().StringVar(&f.hierarchyType, "hierarchy-type", "", "Taxonomy for a category_hierarchy column: vendor or store")
	cmd.Flags().BoolVar(&f.archive, "archive", true, "Store a copy of the file in the archive bucket when configured")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print progress")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// buildImportOptions validates the flags against the configured defaults.
func buildImportOptions(f importFlags, defaultBatch, maxErrors int) (importer.Options, error) {
	mode, err := importer.ParseMode(f.mode)
	if err != nil {
		return importer.Options{}, err
	}
	opts := importer.Options{
		UpdateMode: f.update,
		Mode:       mode,
		BatchSize:  f.batchSize,
		MaxErrors:  maxErrors,
		RunID:      uuid.NewString(),
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = defaultBatch
	}
	if opts.BatchSize < 1 || opts.BatchSize > 5000 {
		return importer.Options{}, fmt.Errorf("--batch-size must be between 1 and 5000")
	}
	if f.hierarchyType != "" {
		t, err := models.ParseCategoryType(f.hierarchyType)
		if err != nil {
			return importer.Options{}, err
		}
		opts.HierarchyType = t
	}
	return opts, nil
}

// loadMapping reads a mapping file, or derives the mapping from headers
// when path is empty.
func loadMapping(path string, headers []string) (importer.FieldMapping, error) {
	mapping := importer.DefaultMapping(headers)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read mapping: %w", err)
		}
		mapping = importer.FieldMapping{}
		if err := json.Unmarshal(data, &mapping); err != nil {
			return nil, fmt.Errorf("parse mapping: %w", err)
		}
	}
	if err := mapping.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}
	return mapping, nil
}

func runImport(ctx context.Context, a *app, f importFlags) error {
	opts, err := buildImportOptions(f, a.cfg.ImportBatchSize, a.cfg.ImportMaxErrors)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(f.file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	format := importer.FormatFromFilename(f.file)
	sheet, err := importer.Read(bytes.NewReader(data), format)
	if err != nil {
		return fmt.Errorf("parse %s: %w", f.file, err)
	}
	mapping, err := loadMapping(f.mapping, sheet.Headers)
	if err != nil {
		return err
	}

	categories, products, err := a.stores()
	if err != nil {
		return err
	}
	engine := importer.NewEngine(categories, products)

	var archive *storage.Client
	if f.archive {
		archive, err = storage.New(a.cfg.S3Endpoint, a.cfg.S3Region, a.cfg.S3AccessKey, a.cfg.S3SecretKey, a.cfg.S3Bucket)
		if err != nil {
			return err
		}
	}

	started := time.Now().UTC()
	var (
		g          errgroup.Group
		last       importer.Event
		archiveKey string
	)
	if archive != nil {
		g.Go(func() error {
			key := archive.ImportKey(opts.RunID, filepath.Base(f.file))
			contentType := storage.ContentTypeCSV
			if format == importer.FormatXLSX {
				contentType = storage.ContentTypeXLSX
			}
			if err := archive.Upload(context.WithoutCancel(ctx), key, contentType, bytes.NewReader(data), int64(len(data))); err != nil {
				slog.Warn("import archive upload failed", "run_id", opts.RunID, "error", err)
				return nil
			}
			slog.Info("import file archived", "run_id", opts.RunID, "key", key)
			archiveKey = key
			return nil
		})
	}
	g.Go(func() error {
		for ev := range engine.Stream(ctx, sheet.Rows, mapping, opts) {
			last = ev
			if ev.Type == importer.EventProgress && !f.quiet {
				fmt.Fprintf(os.Stderr, "%d/%d rows  imported=%d updated=%d skipped=%d errors=%d  %.1f rows/s\n",
					ev.Current, ev.Total, ev.Imported, ev.Updated, ev.Skipped, ev.ErrorCount, ev.ProcessingRate)
			}
		}
		return nil
	})
	_ = g.Wait()

	detached := context.WithoutCancel(ctx)
	a.invalidateTrees(detached)

	run := importer.RunRecord(last, opts, filepath.Base(f.file), started, time.Now().UTC())
	run.ArchiveKey = archiveKey
	if err := store.NewImportRunStore(a.db).Record(detached, &run); err != nil {
		slog.Warn("import run not recorded", "run_id", opts.RunID, "error", err)
	}

	if err := writeJSON(last); err != nil {
		return err
	}
	switch last.Type {
	case importer.EventComplete:
		return nil
	case importer.EventError:
		return errors.New(last.Message)
	}
	// The stream ended without a terminal event: ctx was canceled before
	// the engine could report.
	return ctx.Err()
}
