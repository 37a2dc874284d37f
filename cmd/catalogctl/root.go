// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"catalogadmin/internal/cache"
	"catalogadmin/internal/config"
	"catalogadmin/internal/database"
	"catalogadmin/internal/store"
)

// app holds what every subcommand needs. Connections are opened lazily so
// commands that fail flag validation never touch the database.
type app struct {
	cfg     *config.Config
	verbose bool

	db    *sql.DB
	trees *cache.TreeCache
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Catalog maintenance tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newCategoriesCmd(a))
	cmd.AddCommand(newRunsCmd(a))
	return cmd
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// connect opens the database pool once.
func (a *app) connect() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := database.Connect(a.cfg.DSN(), database.PoolOptions{
		MaxOpenConns: a.cfg.DBMaxOpenConns,
		MaxIdleConns: a.cfg.DBMaxIdleConns,
		MaxIdleTime:  a.cfg.DBMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) stores() (*store.CategoryStore, *store.ProductStore, error) {
	db, err := a.connect()
	if err != nil {
		return nil, nil, err
	}
	return store.NewCategoryStore(db, store.WithLockTimeout(a.cfg.CategoryLockTimeout)), store.NewProductStore(db), nil
}

// invalidateTrees drops the server's cached category trees after a
// mutation. Valkey being unreachable is not an error for the CLI.
func (a *app) invalidateTrees(ctx context.Context) {
	if a.trees == nil && a.cfg.ValkeyHost != "" {
		client, err := cache.ConnectValkey(a.cfg.ValkeyHost, a.cfg.ValkeyPort, a.cfg.ValkeyPassword)
		if err != nil {
			slog.Debug("valkey unavailable, tree cache not invalidated", "error", err)
			return
		}
		a.trees = cache.NewTreeCache(client, a.cfg.TreeCacheTTL)
	}
	a.trees.InvalidateAll(ctx)
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	a.trees.Close()
}
