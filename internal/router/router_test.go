// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router tests verify the routing table, the middleware chain and
// the health endpoint.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catalogadmin/internal/handlers"
	"catalogadmin/internal/importer"
	"catalogadmin/internal/middleware"
	"catalogadmin/internal/models"
	"catalogadmin/internal/store"
)

// stubCategories answers List; other methods are not reached by these tests.
type stubCategories struct {
	handlers.CategoryStore
}

func (stubCategories) List(context.Context, models.CategoryType) ([]models.Category, error) {
	return []models.Category{{ID: 1, Name: "Uncategorized", Type: models.CategoryTypeVendor, Level: 1}}, nil
}

type stubProducts struct{}

func (stubProducts) List(context.Context, store.ProductFilter) ([]models.Product, int, error) {
	return nil, 0, nil
}

type stubExporter struct{}

func (stubExporter) Export(_ context.Context, w io.Writer, _ importer.Format) (int, error) {
	_, err := io.WriteString(w, "sku\n")
	return 0, err
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func newTestRouter(t *testing.T, db Pinger) http.Handler {
	t.Helper()
	gate := middleware.NewImportGate(middleware.ImportLimits{MaxActive: 1, PerWindow: 1, Window: time.Minute}, nil)

	return New(Options{
		Categories:     handlers.NewCategories(stubCategories{}, nil),
		Products:       handlers.NewProducts(stubProducts{}),
		Imports:        handlers.NewImports(nil, stubExporter{}, nil, nil, nil, handlers.ImportSettings{BatchSize: 500, MaxErrors: 10, MaxUploadBytes: 1 << 20}),
		ImportGate:     gate,
		DB:             db,
		AllowedOrigins: []string{"http://localhost:5173"},
		MetricsPath:    "/metrics",
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		status int
		want   string
	}{
		{"no database", nil, http.StatusOK, "ok"},
		{"database up", stubPinger{}, http.StatusOK, "ok"},
		{"database down", stubPinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(healthHandler(tt.db), httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tt.status {
				t.Errorf("status: got %d, want %d", rr.Code, tt.status)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type: got %q, want %q", ct, "application/json")
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["status"] != tt.want {
				t.Errorf("status field: got %q, want %q", body["status"], tt.want)
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/categories", http.StatusOK},
		{http.MethodGet, "/api/products", http.StatusOK},
		{http.MethodGet, "/api/export", http.StatusOK},
		{http.MethodGet, "/api/import/runs", http.StatusOK},
		{http.MethodPost, "/api/export/archive", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/categories/abc", http.StatusBadRequest},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
		{http.MethodPatch, "/api/categories", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := serve(h, httptest.NewRequest(tt.method, tt.path, nil))
			if rr.Code != tt.want {
				t.Errorf("got %d, want %d (body %q)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	rr := serve(newTestRouter(t, nil), httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)
	serve(h, httptest.NewRequest(http.MethodGet, "/api/categories", nil))

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "catalog_http_request_duration_seconds") {
		t.Error("metrics output should include the request histogram")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/categories", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := serve(h, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allowed origin: got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/categories", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = serve(h, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unknown origin should not be allowed, got %q", got)
	}
}

func TestImportIsRateLimited(t *testing.T) {
	h := newTestRouter(t, nil)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("not multipart"))
		req.RemoteAddr = "10.1.1.1:5000"
		return serve(h, req)
	}

	if rr := post(); rr.Code != http.StatusBadRequest {
		t.Fatalf("first import: got %d, want 400", rr.Code)
	}
	if rr := post(); rr.Code != http.StatusTooManyRequests {
		t.Errorf("second import: got %d, want 429", rr.Code)
	}

	// Other routes are not throttled.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
		req.RemoteAddr = "10.1.1.1:5000"
		if rr := serve(h, req); rr.Code != http.StatusOK {
			t.Fatalf("categories %d: got %d", i, rr.Code)
		}
	}
}
