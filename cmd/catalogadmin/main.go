// Package main is the entry point for the catalog admin server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ulule/limiter/v3"

	"catalogadmin/internal/cache"
	"catalogadmin/internal/config"
	"catalogadmin/internal/database"
	"catalogadmin/internal/handlers"
	"catalogadmin/internal/importer"
	"catalogadmin/internal/middleware"
	"catalogadmin/internal/router"
	"catalogadmin/internal/storage"
	"catalogadmin/internal/store"
)

func main() {
	// Load configuration from .env files and environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: JSON in production, text in development.
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN(), database.PoolOptions{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		MaxIdleTime:  cfg.DBMaxIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed the Uncategorized roots (no-op if they already exist).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Valkey for the category tree cache and the shared import
	// rate window (optional).
	var trees *cache.TreeCache
	var importStarts limiter.Store
	if cfg.ValkeyHost != "" {
		valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		if err != nil {
			slog.Warn("valkey unavailable, category tree cache disabled", "error", err)
		} else {
			defer valkeyClient.Close()
			trees = cache.NewTreeCache(valkeyClient, cfg.TreeCacheTTL)
			if importStarts, err = cache.NewLimiterStore(valkeyClient); err != nil {
				slog.Warn("import rate window kept in memory", "error", err)
				importStarts = nil
			}
		}
	}

	// Connect to S3-compatible object storage (optional, app works without it).
	var archive handlers.Archive
	storageClient, err := storage.New(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
	if err != nil {
		slog.Error("failed to initialize S3 storage", "error", err)
		os.Exit(1)
	}
	if storageClient != nil {
		archive = storageClient
		slog.Info("s3 archive connected", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	} else {
		slog.Warn("s3 storage not configured, import and export archiving disabled")
	}

	// Initialize data stores and the import engine.
	categoryStore := store.NewCategoryStore(db, store.WithLockTimeout(cfg.CategoryLockTimeout))
	productStore := store.NewProductStore(db)
	runStore := store.NewImportRunStore(db)
	engine := importer.NewEngine(categoryStore, productStore)
	exporter := importer.NewExporter(categoryStore, productStore)

	importGate := middleware.NewImportGate(middleware.ImportLimits{
		MaxActive: cfg.ImportMaxConcurrent,
		PerWindow: cfg.ImportRateLimit,
		Window:    cfg.ImportRateWindow,
	}, importStarts)

	r := router.New(router.Options{
		Categories: handlers.NewCategories(categoryStore, trees),
		Products:   handlers.NewProducts(productStore),
		Imports: handlers.NewImports(engine, exporter, archive, runStore, trees, handlers.ImportSettings{
			BatchSize:      cfg.ImportBatchSize,
			MaxErrors:      cfg.ImportMaxErrors,
			MaxUploadBytes: cfg.MaxUploadBytes(),
		}),
		ImportGate:     importGate,
		DB:             db,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsPath:    cfg.MetricsPath,
	})

	// Imports stream progress for as long as the run takes, so there is no
	// write timeout. Uploads get a generous read timeout.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests up to 30 seconds to complete. An import still
	// running after that is cut off and its open chunk rolls back.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
