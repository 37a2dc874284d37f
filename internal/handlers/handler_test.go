// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides the in-memory collaborators and the router used
// by the handler tests.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"catalogadmin/internal/importer"
	"catalogadmin/internal/models"
	"catalogadmin/internal/store"
)

// fakeCategories is an in-memory CategoryStore.
type fakeCategories struct {
	mu       sync.Mutex
	items    map[int64]*models.Category
	next     int64
	err      error
	deleted  [][]int64
	merged   []int64
	resolved [][]string
}

func newFakeCategories() *fakeCategories {
	f := &fakeCategories{items: map[int64]*models.Category{}}
	f.add(&models.Category{Name: "Electronics", Type: models.CategoryTypeVendor, Level: 1, Status: models.CategoryStatusActive})
	return f
}

func (f *fakeCategories) add(c *models.Category) {
	f.next++
	c.ID = f.next
	f.items[c.ID] = c
}

func (f *fakeCategories) List(_ context.Context, t models.CategoryType) ([]models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Category
	for id := int64(1); id <= f.next; id++ {
		if c, ok := f.items[id]; ok && (t == "" || c.Type == t) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCategories) Tree(ctx context.Context, t models.CategoryType) ([]models.Category, error) {
	flat, err := f.List(ctx, t)
	if err != nil {
		return nil, err
	}
	return store.BuildTree(flat), nil
}

func (f *fakeCategories) FindByID(_ context.Context, id int64) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, store.ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCategories) Create(_ context.Context, c *models.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	c.Level = 1
	if c.ParentID != nil {
		p, ok := f.items[*c.ParentID]
		if !ok {
			return store.ErrCategoryNotFound
		}
		c.Level = p.Level + 1
	}
	if c.Status == "" {
		c.Status = models.CategoryStatusActive
	}
	cp := *c
	f.add(&cp)
	c.ID = cp.ID
	return nil
}

func (f *fakeCategories) Update(_ context.Context, c *models.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *c
	f.items[c.ID] = &cp
	return nil
}

func (f *fakeCategories) BulkDelete(_ context.Context, ids []int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.deleted = append(f.deleted, ids)
	n := 0
	for _, id := range ids {
		if _, ok := f.items[id]; ok {
			delete(f.items, id)
			n++
		}
	}
	if n == 0 {
		return 0, store.ErrCategoryNotFound
	}
	return n, nil
}

func (f *fakeCategories) Merge(_ context.Context, sourceID, targetID int64, _ models.CategoryType) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.merged = []int64{sourceID, targetID}
	return 7, nil
}

func (f *fakeCategories) ResolveChain(_ context.Context, _ models.CategoryType, segments []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.resolved = append(f.resolved, segments)
	return 99, nil
}

// fakeProducts is an in-memory ProductLister.
type fakeProducts struct {
	filter store.ProductFilter
}

func (f *fakeProducts) List(_ context.Context, filter store.ProductFilter) ([]models.Product, int, error) {
	f.filter = filter
	return []models.Product{{ID: 1, SKU: "A1", Name: "Mouse", Status: models.ProductStatusActive}}, 1, nil
}

// fakeImporter replays canned events and records what it was asked to do.
type fakeImporter struct {
	events  []importer.Event
	rows    []importer.Row
	mapping importer.FieldMapping
	opts    importer.Options
}

func (f *fakeImporter) Stream(_ context.Context, rows []importer.Row, mapping importer.FieldMapping, opts importer.Options) <-chan importer.Event {
	f.rows, f.mapping, f.opts = rows, mapping, opts
	ch := make(chan importer.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

// fakeExporter writes a fixed body.
type fakeExporter struct {
	err error
}

func (f *fakeExporter) Export(_ context.Context, w io.Writer, format importer.Format) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	_, err := io.WriteString(w, "sku,name\nA1,Mouse\n")
	return 1, err
}

// fakeArchive records uploads.
type fakeArchive struct {
	mu      sync.Mutex
	uploads map[string][]byte
	err     error
}

func (f *fakeArchive) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeArchive) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://archive.example.com/" + key + "?sig=x", nil
}

func (f *fakeArchive) ImportKey(runID, filename string) string { return "imports/" + runID + "/" + filename }
func (f *fakeArchive) ExportKey(format string) string          { return "exports/test." + format }

// fakeRuns keeps recorded import runs in memory.
type fakeRuns struct {
	mu    sync.Mutex
	runs  []models.ImportRun
	limit int
	err   error
}

func (f *fakeRuns) Record(_ context.Context, run *models.ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeRuns) Recent(_ context.Context, limit int) ([]models.ImportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.ImportRun(nil), f.runs...), nil
}

// testEnv wires the handlers into a router the way the application does.
type testEnv struct {
	categories *fakeCategories
	products   *fakeProducts
	importer   *fakeImporter
	exporter   *fakeExporter
	archive    *fakeArchive
	runs       *fakeRuns
	router     chi.Router
}

func newTestEnv(t *testing.T, withArchive bool) *testEnv {
	t.Helper()
	env := &testEnv{
		categories: newFakeCategories(),
		products:   &fakeProducts{},
		importer:   &fakeImporter{},
		exporter:   &fakeExporter{},
		runs:       &fakeRuns{},
	}

	var archive Archive
	if withArchive {
		env.archive = &fakeArchive{}
		archive = env.archive
	}
	cats := NewCategories(env.categories, nil)
	prods := NewProducts(env.products)
	imps := NewImports(env.importer, env.exporter, archive, env.runs, nil, ImportSettings{
		BatchSize: 500, MaxErrors: 1000, MaxUploadBytes: 1 << 20,
	})

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", cats.List)
		r.Get("/categories/tree", cats.Tree)
		r.Post("/categories", cats.Create)
		r.Post("/categories/bulk-delete", cats.BulkDelete)
		r.Post("/categories/merge", cats.Merge)
		r.Post("/categories/resolve", cats.Resolve)
		r.Get("/categories/{id}", cats.Get)
		r.Put("/categories/{id}", cats.Update)
		r.Delete("/categories/{id}", cats.Delete)
		r.Get("/products", prods.List)
		r.Post("/import", imps.Import)
		r.Get("/import/runs", imps.Runs)
		r.Get("/export", imps.Export)
		r.Post("/export/archive", imps.ArchiveExport)
	})
	env.router = r
	return env
}

func (env *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newCategory(name string) *models.Category {
	return &models.Category{Name: name, Type: models.CategoryTypeVendor, Level: 1, Status: models.CategoryStatusActive}
}
