// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"catalogadmin/internal/cache"
	"catalogadmin/internal/importer"
	"catalogadmin/internal/models"
	"catalogadmin/internal/storage"
)

// Importer runs a streamed import. It is satisfied by *importer.Engine.
type Importer interface {
	Stream(ctx context.Context, rows []importer.Row, mapping importer.FieldMapping, opts importer.Options) <-chan importer.Event
}

// Exporter writes the catalog. It is satisfied by *importer.Exporter.
type Exporter interface {
	Export(ctx context.Context, w io.Writer, f importer.Format) (int, error)
}

// Archive stores uploaded and exported files. It is satisfied by
// *storage.Client.
type Archive interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
	ImportKey(runID, filename string) string
	ExportKey(format string) string
}

// RunLog keeps the import history. It is satisfied by
// *store.ImportRunStore.
type RunLog interface {
	Record(ctx context.Context, run *models.ImportRun) error
	Recent(ctx context.Context, limit int) ([]models.ImportRun, error)
}

// ImportSettings are the server-side import defaults and limits.
type ImportSettings struct {
	BatchSize      int
	MaxErrors      int
	MaxUploadBytes int64
}

// exportLinkTTL is how long a presigned export link stays valid.
const exportLinkTTL = 15 * time.Minute

// Imports groups the bulk import and export handlers.
type Imports struct {
	importer Importer
	exporter Exporter
	archive  Archive
	runs     RunLog
	trees    *cache.TreeCache
	settings ImportSettings
}

// NewImports creates the import/export handlers. archive, runs and trees
// may be nil.
func NewImports(imp Importer, exp Exporter, archive Archive, runs RunLog, trees *cache.TreeCache, settings ImportSettings) *Imports {
	return &Imports{importer: imp, exporter: exp, archive: archive, runs: runs, trees: trees, settings: settings}
}

type importRequest struct {
	UpdateMode    bool   `json:"updateMode"`
	Mode          string `json:"mode" validate:"omitempty,oneof=bulk row"`
	BatchSize     int    `json:"batchSize" validate:"omitempty,min=1,max=5000"`
	HierarchyType string `json:"hierarchyType" validate:"omitempty,oneof=vendor store"`
	Format        string `json:"format" validate:"omitempty,oneof=csv xlsx"`
}

// parseImportForm reads the non-file fields of an import upload.
func parseImportForm(r *http.Request) (importRequest, error) {
	req := importRequest{
		Mode:          r.FormValue("mode"),
		HierarchyType: r.FormValue("hierarchyType"),
		Format:        r.FormValue("format"),
	}
	if raw := r.FormValue("updateMode"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return req, fmt.Errorf("updateMode must be true or false")
		}
		req.UpdateMode = v
	}
	if raw := r.FormValue("batchSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("batchSize must be a number")
		}
		req.BatchSize = n
	}
	return req, validate.Struct(req)
}

// Import accepts a multipart upload (file, optional mapping JSON and
// options) and streams the run as Server-Sent Events: one progress event
// per chunk and a final complete or error event. A client that disconnects
// stops the run after the current chunk. When an archive is configured the
// original file is stored alongside the run.
func (h *Imports) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.settings.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large. Maximum size is %d MB.", h.settings.MaxUploadBytes>>20))
			return
		}
		writeJSONError(w, http.StatusBadRequest, "Invalid multipart upload.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := parseImportForm(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "No file provided.")
		return
	}
	defer file.Close()
	if header.Size > h.settings.MaxUploadBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Maximum size is %d MB.", h.settings.MaxUploadBytes>>20))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to read file.")
		return
	}

	format := importer.FormatFromFilename(header.Filename)
	if req.Format != "" {
		format = importer.Format(req.Format)
	}
	sheet, err := importer.Read(bytes.NewReader(data), format)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Could not parse file: "+err.Error())
		return
	}

	mapping := importer.DefaultMapping(sheet.Headers)
	if raw := r.FormValue("mapping"); raw != "" {
		mapping = importer.FieldMapping{}
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid field mapping JSON.")
			return
		}
	}
	if err := mapping.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, sentence(err.Error())+".")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	mode, _ := importer.ParseMode(req.Mode)
	opts := importer.Options{
		UpdateMode:    req.UpdateMode,
		Mode:          mode,
		BatchSize:     req.BatchSize,
		MaxErrors:     h.settings.MaxErrors,
		HierarchyType: models.CategoryType(req.HierarchyType),
		RunID:         uuid.NewString(),
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = h.settings.BatchSize
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	started := time.Now().UTC()
	var (
		g          errgroup.Group
		archiveKey string
		last       importer.Event
	)
	if h.archive != nil {
		g.Go(func() error {
			key := h.archive.ImportKey(opts.RunID, header.Filename)
			// The archive copy is kept even when the client goes away.
			if err := h.archive.Upload(context.WithoutCancel(ctx), key, contentTypeOf(format), bytes.NewReader(data), int64(len(data))); err != nil {
				slog.Warn("import archive upload failed", "run_id", opts.RunID, "key", key, "error", err)
				return nil
			}
			slog.Info("import file archived", "run_id", opts.RunID, "key", key)
			archiveKey = key
			return nil
		})
	}
	g.Go(func() error {
		for ev := range h.importer.Stream(ctx, sheet.Rows, mapping, opts) {
			last = ev
			if err := writeEvent(w, ev); err != nil {
				slog.Debug("import stream write failed", "run_id", opts.RunID, "error", err)
				continue
			}
			flusher.Flush()
		}
		return nil
	})
	_ = g.Wait()

	// Categories may have been created even by a failed or canceled run.
	detached := context.WithoutCancel(ctx)
	h.trees.InvalidateAll(detached)

	if h.runs != nil {
		run := importer.RunRecord(last, opts, header.Filename, started, time.Now().UTC())
		run.ArchiveKey = archiveKey
		if err := h.runs.Record(detached, &run); err != nil {
			slog.Warn("import run not recorded", "run_id", opts.RunID, "error", err)
		}
	}
}

// Runs lists recent import runs, newest first (?limit=, default 20).
func (h *Imports) Runs(w http.ResponseWriter, r *http.Request) {
	runs := []models.ImportRun{}
	if h.runs != nil {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeJSONError(w, http.StatusBadRequest, "Invalid limit.")
				return
			}
			limit = n
		}
		recent, err := h.runs.Recent(r.Context(), limit)
		if err != nil {
			writeStoreError(w, "list import runs", err)
			return
		}
		if recent != nil {
			runs = recent
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// writeEvent writes one SSE data frame.
func writeEvent(w io.Writer, ev importer.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// exportFormat reads ?format=, defaulting to CSV.
func exportFormat(w http.ResponseWriter, r *http.Request) (importer.Format, bool) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		return importer.FormatCSV, true
	}
	f, err := importer.ParseFormat(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, sentence(err.Error())+".")
		return "", false
	}
	return f, true
}

func contentTypeOf(f importer.Format) string {
	if f == importer.FormatXLSX {
		return storage.ContentTypeXLSX
	}
	return storage.ContentTypeCSV
}

// Export downloads the whole catalog as CSV or XLSX in the import layout.
func (h *Imports) Export(w http.ResponseWriter, r *http.Request) {
	f, ok := exportFormat(w, r)
	if !ok {
		return
	}

	// Render into memory first so a failure can still be reported as JSON.
	var buf bytes.Buffer
	n, err := h.exporter.Export(r.Context(), &buf, f)
	if err != nil {
		slog.Error("export failed", "format", f, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to export catalog.")
		return
	}

	filename := fmt.Sprintf("catalog-%s.%s", time.Now().UTC().Format("20060102"), f)
	w.Header().Set("Content-Type", contentTypeOf(f))
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Export-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("export write failed", "error", err)
	}
}

// ArchiveExport renders an export into the archive bucket and returns a
// short-lived download link.
func (h *Imports) ArchiveExport(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "Object storage is not configured.")
		return
	}
	f, ok := exportFormat(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	var buf bytes.Buffer
	n, err := h.exporter.Export(ctx, &buf, f)
	if err != nil {
		slog.Error("export failed", "format", f, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to export catalog.")
		return
	}

	key := h.archive.ExportKey(string(f))
	if err := h.archive.Upload(ctx, key, contentTypeOf(f), bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		slog.Error("export archive upload failed", "key", key, "error", err)
		writeJSONError(w, http.StatusBadGateway, "Failed to store export.")
		return
	}
	url, err := h.archive.PresignedURL(ctx, key, exportLinkTTL)
	if err != nil {
		slog.Error("export presign failed", "key", key, "error", err)
		writeJSONError(w, http.StatusBadGateway, "Failed to create download link.")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"key":       key,
		"url":       url,
		"products":  n,
		"expiresAt": time.Now().Add(exportLinkTTL).UTC(),
	})
}
