// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package metrics declares the Prometheus collectors for the catalog and the
// small helpers the rest of the code records through.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Total number of imported rows broken down by outcome.",
	}, []string{"outcome"})

	importRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "import",
		Name:      "runs_total",
		Help:      "Total number of import runs broken down by final status.",
	}, []string{"status"})

	importRate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "catalog",
		Subsystem: "import",
		Name:      "last_rows_per_second",
		Help:      "Processing rate of the most recently finished import run.",
	})

	importRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "import",
		Name:      "rejected_total",
		Help:      "Total number of import requests refused by the admission gate broken down by reason.",
	}, []string{"reason"})

	importsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "catalog",
		Subsystem: "import",
		Name:      "active",
		Help:      "Number of import requests currently admitted and running.",
	})

	categoriesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "category",
		Name:      "created_total",
		Help:      "Total number of categories created broken down by taxonomy.",
	}, []string{"type"})

	categoryResolveRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "category",
		Name:      "resolve_retries_total",
		Help:      "Total number of get-or-create attempts retried after lock contention.",
	})

	categoryCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "category",
		Name:      "cache_requests_total",
		Help:      "Total number of import category cache lookups broken down by hit/miss.",
	}, []string{"result"})

	categoriesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "category",
		Name:      "deleted_total",
		Help:      "Total number of categories removed by cascading deletes.",
	})

	productsReassigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "product",
		Name:      "reassigned_total",
		Help:      "Total number of product category references moved, by reason.",
	}, []string{"reason"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route pattern and status.",
		Buckets:   []float64{.005, .025, .1, .5, 1, 5, 30, 120},
	}, []string{"method", "route", "status"})
)

// RecordImportRows adds n rows with the given outcome
// (imported, updated, skipped, failed).
func RecordImportRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	importRows.WithLabelValues(outcome).Add(float64(n))
}

// RecordImportRun counts a finished run and remembers its throughput.
func RecordImportRun(status string, rowsPerSecond float64) {
	importRuns.WithLabelValues(status).Inc()
	if rowsPerSecond > 0 {
		importRate.Set(rowsPerSecond)
	}
}

// RecordImportRejected counts an import refused with the given reason
// ("busy" or "rate").
func RecordImportRejected(reason string) {
	importRejections.WithLabelValues(reason).Inc()
}

// AddActiveImports moves the running-imports gauge by delta.
func AddActiveImports(delta int) {
	importsActive.Add(float64(delta))
}

// RecordCategoryCreated counts a newly inserted category.
func RecordCategoryCreated(categoryType string) {
	categoriesCreated.WithLabelValues(categoryType).Inc()
}

// RecordResolveRetry counts one retried get-or-create attempt.
func RecordResolveRetry() {
	categoryResolveRetries.Inc()
}

// RecordCategoryCache counts one lookup in an import run's category cache.
func RecordCategoryCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	categoryCacheRequests.WithLabelValues(result).Inc()
}

// RecordCategoriesDeleted adds n deleted categories.
func RecordCategoriesDeleted(n int) {
	if n > 0 {
		categoriesDeleted.Add(float64(n))
	}
}

// RecordProductsReassigned adds n moved product references.
func RecordProductsReassigned(reason string, n int64) {
	if n > 0 {
		productsReassigned.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveHTTPRequest records one served request. route must be a pattern,
// not the raw path.
func ObserveHTTPRequest(method, route, status string, d time.Duration) {
	httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
