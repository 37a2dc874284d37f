// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"catalogadmin/internal/database"
	"catalogadmin/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "catalog")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "catalog")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := testDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	// Run migrations to ensure the schema is current.
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Downgrade goose global state.
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// uniqueName returns a root category name no other test run will use, so
// tests can share a database without seeing each other's rows.
func uniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// cleanTree removes the categories rooted at the given root names (children
// go with ON DELETE CASCADE). Call in t.Cleanup().
func cleanTree(t *testing.T, db *sql.DB, roots ...string) {
	t.Helper()
	for _, name := range roots {
		db.Exec("DELETE FROM categories WHERE name = $1 AND parent_id IS NULL", name)
	}
}

// cleanProducts removes test products by SKU. Call in t.Cleanup().
func cleanProducts(t *testing.T, db *sql.DB, skus ...string) {
	t.Helper()
	for _, sku := range skus {
		db.Exec("DELETE FROM products WHERE sku = $1", sku)
	}
}

// insertProduct stores a minimal product pointing at the given categories.
func insertProduct(t *testing.T, db *sql.DB, sku string, vendorCat, storeCat *int64) {
	t.Helper()
	_, err := NewProductStore(db).WriteBatch(context.Background(), models.ProductBatch{
		Inserts: []models.Product{{
			SKU: sku, Name: sku, Status: models.ProductStatusActive,
			VendorCategoryID: vendorCat, StoreCategoryID: storeCat,
		}},
	})
	if err != nil {
		t.Fatalf("insert product %s: %v", sku, err)
	}
	t.Cleanup(func() { cleanProducts(t, db, sku) })
}

// productCategories returns the vendor and store category of a product.
func productCategories(t *testing.T, db *sql.DB, sku string) (vendor, store *int64) {
	t.Helper()
	err := db.QueryRow(
		"SELECT vendor_category_id, store_category_id FROM products WHERE sku = $1", sku,
	).Scan(&vendor, &store)
	if err != nil {
		t.Fatalf("load product %s: %v", sku, err)
	}
	return vendor, store
}

// arrayConverter lets sqlmock accept the []int64 arguments pgx encodes as
// PostgreSQL arrays.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	switch v.(type) {
	case []int64, []string:
		return v, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func ptr(id int64) *int64 { return &id }
