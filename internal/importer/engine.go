// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package importer turns uploaded product sheets into categories and
// products. Rows are processed in file order, in chunks that commit
// independently, and progress is reported after every chunk.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"catalogadmin/internal/database"
	"catalogadmin/internal/hierarchy"
	"catalogadmin/internal/metrics"
	"catalogadmin/internal/models"
)

// Defaults applied to zero Options fields.
const (
	DefaultBatchSize = 500
	MaxBatchSize     = 5000
	DefaultMaxErrors = 1000
)

// Mode selects how products are written.
type Mode string

const (
	// ModeBulk writes each chunk in one transaction and falls back to
	// row-by-row writes for a chunk that fails.
	ModeBulk Mode = "bulk"
	// ModeRow writes every product in its own transaction.
	ModeRow Mode = "row"
)

// ParseMode accepts "bulk", "row" or "" (bulk).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBulk:
		return ModeBulk, nil
	case ModeRow:
		return ModeRow, nil
	}
	return "", fmt.Errorf("unknown import mode %q", s)
}

// Options controls one import run.
type Options struct {
	// UpdateMode updates products whose SKU already exists instead of
	// skipping them.
	UpdateMode bool
	Mode       Mode
	BatchSize  int
	// MaxErrors caps the error messages kept in the result. Every error is
	// still counted.
	MaxErrors int
	// HierarchyType is the taxonomy the single category_hierarchy column
	// feeds.
	HierarchyType models.CategoryType
	// RunID names the run in logs and events. A random one is used when
	// empty.
	RunID string
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeBulk
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchSize > MaxBatchSize {
		o.BatchSize = MaxBatchSize
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = DefaultMaxErrors
	}
	if !o.HierarchyType.Valid() {
		o.HierarchyType = models.CategoryTypeVendor
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	return o
}

// ProductWriter is the product side of the store the engine writes to.
type ProductWriter interface {
	ExistingSKUs(ctx context.Context, skus []string) (map[string]bool, error)
	WriteBatch(ctx context.Context, batch models.ProductBatch) (models.ProductBatchResult, error)
}

// Result summarises a finished, canceled or aborted run.
type Result struct {
	RunID      string
	Total      int
	Processed  int
	Imported   int
	Updated    int
	Skipped    int
	ErrorCount int
	Errors     []string
	Duration   time.Duration
	Canceled   bool

	maxErrors int
}

// Rate returns processed rows per second.
func (r *Result) Rate() float64 {
	secs := r.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.Processed) / secs
}

func (r *Result) addError(msg string) {
	r.ErrorCount++
	if len(r.Errors) < r.maxErrors {
		r.Errors = append(r.Errors, msg)
	}
}

// Engine runs imports against a category resolver and a product writer.
// A fresh per-run cache is put in front of the resolver for every run.
type Engine struct {
	categories hierarchy.Resolver
	products   ProductWriter
	validate   *validator.Validate
	now        func() time.Time
}

// NewEngine returns an Engine. categories is normally a *store.CategoryStore.
func NewEngine(categories hierarchy.Resolver, products ProductWriter) *Engine {
	return &Engine{
		categories: categories,
		products:   products,
		validate:   newValidator(),
		now:        time.Now,
	}
}

// Import processes rows and returns the final result. When the run stops
// early (cancellation or a systemic failure) the partial result is returned
// together with the error; chunks committed before that stay committed.
func (e *Engine) Import(ctx context.Context, rows []Row, mapping FieldMapping, opts Options) (*Result, error) {
	return e.run(ctx, rows, mapping, opts, nil)
}

// Stream runs the import in a goroutine and delivers a progress event after
// every chunk, followed by exactly one complete or error event. The channel
// is closed when the run ends. Canceling ctx stops the run after the
// current chunk.
func (e *Engine) Stream(ctx context.Context, rows []Row, mapping FieldMapping, opts Options) <-chan Event {
	ch := make(chan Event, 1)
	send := func(ev Event) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(ch)
		res, err := e.run(ctx, rows, mapping, opts, send)
		if err != nil {
			ev := ErrorEvent(err)
			if res != nil {
				ev = ev.withCounts(res)
				ev.Canceled = res.Canceled
			}
			send(ev)
			return
		}
		send(CompleteEvent(res))
	}()
	return ch
}

// pending is a validated row waiting for its chunk to be written.
type pending struct {
	line    int
	product models.Product
	fields  map[string]string
	update  bool
}

// rowError keeps a chunk's errors sortable by line so they are reported in
// file order whatever the write mode.
type rowError struct {
	line int
	msg  string
}

func (e *Engine) run(ctx context.Context, rows []Row, mapping FieldMapping, opts Options, emit func(Event)) (*Result, error) {
	opts = opts.withDefaults()
	if err := mapping.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field mapping: %w", err)
	}

	res := &Result{RunID: opts.RunID, Total: len(rows), maxErrors: opts.MaxErrors}
	log := slog.With("run_id", res.RunID)
	cache := hierarchy.NewCache(e.categories)
	seen := make(map[string]bool)
	start := e.now()

	log.Info("import started",
		"rows", len(rows), "mode", opts.Mode, "update_mode", opts.UpdateMode, "batch_size", opts.BatchSize)

	finish := func(status string, err error) (*Result, error) {
		res.Duration = e.now().Sub(start)
		hits, misses := cache.Stats()
		metrics.RecordImportRun(status, res.Rate())
		log.Info("import finished",
			"status", status,
			"processed", res.Processed,
			"imported", res.Imported,
			"updated", res.Updated,
			"skipped", res.Skipped,
			"errors", res.ErrorCount,
			"cache_hits", hits,
			"cache_misses", misses,
			"duration", res.Duration,
		)
		return res, err
	}

	for lo := 0; lo < len(rows); lo += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			res.Canceled = true
			return finish("canceled", fmt.Errorf("import canceled: %w", err))
		}

		// A started chunk runs to completion; cancellation is only observed
		// between chunks.
		hi := min(lo+opts.BatchSize, len(rows))
		counts, err := e.processChunk(context.WithoutCancel(ctx), rows[lo:hi], mapping, opts, cache, seen, res)
		counts.record()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				res.Canceled = true
				return finish("canceled", fmt.Errorf("import canceled: %w", err))
			}
			return finish("failed", err)
		}

		res.Processed = hi
		if emit != nil {
			res.Duration = e.now().Sub(start)
			emit(ProgressEvent(res, lastSKU(rows[lo:hi], mapping)))
		}
	}

	return finish("completed", nil)
}

// chunkCounts are the per-outcome row counts of one chunk, for metrics.
type chunkCounts struct {
	imported, updated, skipped, failed int
}

func (c chunkCounts) record() {
	metrics.RecordImportRows("imported", c.imported)
	metrics.RecordImportRows("updated", c.updated)
	metrics.RecordImportRows("skipped", c.skipped)
	metrics.RecordImportRows("failed", c.failed)
}

// processChunk validates, resolves and writes one chunk. Only systemic
// failures (and cancellation) are returned; everything else is recorded
// against the row that caused it.
func (e *Engine) processChunk(
	ctx context.Context,
	chunk []Row,
	mapping FieldMapping,
	opts Options,
	cache *hierarchy.Cache,
	seen map[string]bool,
	res *Result,
) (chunkCounts, error) {
	var (
		counts chunkCounts
		errs   []rowError
		valid  []pending
	)
	fail := func(line int, sku string, err error) {
		counts.failed++
		errs = append(errs, rowError{line: line, msg: rowMessage(line, sku, err)})
	}
	defer func() {
		sort.SliceStable(errs, func(i, j int) bool { return errs[i].line < errs[j].line })
		for _, re := range errs {
			res.addError(re.msg)
		}
		res.Imported += counts.imported
		res.Updated += counts.updated
		res.Skipped += counts.skipped
	}()

	skus := make([]string, 0, len(chunk))
	for _, row := range chunk {
		fields := mapping.Apply(row.Values)
		p, err := e.parseProduct(fields)
		if err != nil {
			fail(row.Line, fields[FieldSKU], err)
			continue
		}
		valid = append(valid, pending{line: row.Line, product: p, fields: fields})
		skus = append(skus, p.SKU)
	}

	existing, err := e.products.ExistingSKUs(ctx, skus)
	if err != nil {
		return counts, fmt.Errorf("look up existing skus: %w", err)
	}

	// admit decides between skip, update and insert for a row and resolves
	// its categories. seen only holds SKUs this run has actually written.
	admit := func(p *pending) (bool, error) {
		sku := p.product.SKU
		known := existing[sku] || seen[sku]
		if known && !opts.UpdateMode {
			counts.skipped++
			return false, nil
		}
		p.update = known
		if err := e.resolveCategories(ctx, cache, p, opts.HierarchyType); err != nil {
			if database.IsSystemic(err) {
				return false, fmt.Errorf("line %d: %w", p.line, err)
			}
			fail(p.line, sku, err)
			return false, nil
		}
		return true, nil
	}
	writeOne := func(p pending) error {
		err := e.write(ctx, []pending{p}, opts.UpdateMode, &counts, seen)
		if database.IsForeignKeyViolation(err) {
			err = e.rewriteWithFreshCategories(ctx, cache, p, opts, &counts, seen)
		}
		if err == nil {
			return nil
		}
		if database.IsSystemic(err) {
			return fmt.Errorf("line %d: %w", p.line, err)
		}
		fail(p.line, p.product.SKU, err)
		return nil
	}

	// A SKU repeated within the chunk waits until its first occurrence has
	// been written, so a failed first row does not decide the later ones.
	var (
		batch  = make([]pending, 0, len(valid))
		later  []pending
		queued = make(map[string]bool, len(valid))
	)
	for _, p := range valid {
		if queued[p.product.SKU] {
			later = append(later, p)
			continue
		}
		ok, err := admit(&p)
		if err != nil {
			return counts, err
		}
		if ok {
			queued[p.product.SKU] = true
			batch = append(batch, p)
		}
	}

	if opts.Mode == ModeRow {
		for _, p := range batch {
			if err := writeOne(p); err != nil {
				return counts, err
			}
		}
	} else if err := e.write(ctx, batch, opts.UpdateMode, &counts, seen); err != nil {
		if database.IsSystemic(err) {
			return counts, err
		}
		slog.Warn("import chunk failed, retrying row by row", "rows", len(batch), "error", err)
		for _, p := range batch {
			if err := writeOne(p); err != nil {
				return counts, err
			}
		}
	}

	for _, p := range later {
		ok, err := admit(&p)
		if err != nil {
			return counts, err
		}
		if !ok {
			continue
		}
		if err := writeOne(p); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// rewriteWithFreshCategories handles a product write rejected by a foreign
// key: a category cached earlier in the run was deleted meanwhile. The row's
// category ids are evicted, its paths resolved again and the write retried
// once.
func (e *Engine) rewriteWithFreshCategories(ctx context.Context, cache *hierarchy.Cache, p pending, opts Options, counts *chunkCounts, seen map[string]bool) error {
	var stale []int64
	for _, id := range []*int64{p.product.VendorCategoryID, p.product.StoreCategoryID} {
		if id != nil {
			stale = append(stale, *id)
		}
	}
	cache.Forget(stale...)
	slog.Warn("import row referenced a deleted category, resolving again",
		"sku", p.product.SKU, "categories", stale)

	if err := e.resolveCategories(ctx, cache, &p, opts.HierarchyType); err != nil {
		return err
	}
	return e.write(ctx, []pending{p}, opts.UpdateMode, counts, seen)
}

// write stores items in one transaction and updates counts from what the
// store reports as written. Written SKUs are added to seen. An insert beaten
// by a concurrent writer is retried as an update in update mode and counted
// as skipped otherwise.
func (e *Engine) write(ctx context.Context, items []pending, updateMode bool, counts *chunkCounts, seen map[string]bool) error {
	var batch models.ProductBatch
	for _, p := range items {
		if p.update {
			batch.Updates = append(batch.Updates, p.product)
		} else {
			batch.Inserts = append(batch.Inserts, p.product)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	written, err := e.products.WriteBatch(ctx, batch)
	if err != nil {
		return err
	}
	counts.imported += len(written.Inserted)
	counts.updated += len(written.Updated)
	markSeen(seen, written)

	inserted := make(map[string]bool, len(written.Inserted))
	for _, sku := range written.Inserted {
		inserted[sku] = true
	}
	var lost []models.Product
	for _, p := range batch.Inserts {
		if !inserted[p.SKU] {
			lost = append(lost, p)
		}
	}
	counts.skipped += len(batch.Updates) - len(written.Updated)

	if len(lost) == 0 {
		return nil
	}
	if !updateMode {
		// Someone else stored these SKUs; later rows treat them as existing.
		for _, p := range lost {
			seen[p.SKU] = true
		}
		counts.skipped += len(lost)
		return nil
	}
	again, err := e.products.WriteBatch(ctx, models.ProductBatch{Updates: lost})
	if err != nil {
		if database.IsSystemic(err) {
			return err
		}
		// The inserts above are committed; rewriting them would count twice.
		slog.Warn("update of concurrently inserted products failed", "rows", len(lost), "error", err)
		counts.skipped += len(lost)
		return nil
	}
	counts.updated += len(again.Updated)
	counts.skipped += len(lost) - len(again.Updated)
	markSeen(seen, again)
	return nil
}

func markSeen(seen map[string]bool, written models.ProductBatchResult) {
	for _, sku := range written.Inserted {
		seen[sku] = true
	}
	for _, sku := range written.Updated {
		seen[sku] = true
	}
}

// resolveCategories resolves the vendor and store paths of a row through
// the run cache and stores the leaf ids on the product.
func (e *Engine) resolveCategories(ctx context.Context, cache *hierarchy.Cache, p *pending, hierarchyType models.CategoryType) error {
	for _, t := range models.CategoryTypes() {
		segments := CategoryPath(p.fields, t, hierarchyType)
		if len(segments) == 0 {
			continue
		}
		id, err := hierarchy.ResolveChain(ctx, cache, t, segments)
		if errors.Is(err, hierarchy.ErrEmptyPath) {
			continue
		}
		if err != nil {
			return err
		}
		if t == models.CategoryTypeStore {
			p.product.StoreCategoryID = &id
		} else {
			p.product.VendorCategoryID = &id
		}
	}
	return nil
}

func lastSKU(chunk []Row, mapping FieldMapping) string {
	for i := len(chunk) - 1; i >= 0; i-- {
		if sku := mapping.Apply(chunk[i].Values)[FieldSKU]; sku != "" {
			return sku
		}
	}
	return ""
}

func rowMessage(line int, sku string, err error) string {
	if sku == "" {
		return fmt.Sprintf("Row %d: %s", line, describeError(err))
	}
	return fmt.Sprintf("Row %d (SKU %s): %s", line, sku, describeError(err))
}
