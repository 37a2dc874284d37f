// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"catalogadmin/internal/database"
	"catalogadmin/internal/models"
)

// ProductStore reads and writes products. Category-side effects on products
// (reassignment on delete, merge) live in CategoryStore.
type ProductStore struct {
	db *sql.DB
}

// NewProductStore returns a new ProductStore.
func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

const productColumns = `p.id, p.sku, p.name, p.description, p.price, p.cost, p.stock_quantity,
	p.vendor, p.status, p.vendor_category_id, p.store_category_id, p.created_at, p.updated_at`

// productWriteColumns is the column order used by inserts and updates.
var productWriteColumns = []string{
	"sku", "name", "description", "price", "cost", "stock_quantity",
	"vendor", "status", "vendor_category_id", "store_category_id",
}

func productArgs(p *models.Product) []any {
	return []any{
		p.SKU, p.Name, p.Description, p.Price, p.Cost, p.StockQuantity,
		p.Vendor, string(p.Status), p.VendorCategoryID, p.StoreCategoryID,
	}
}

func scanProduct(scanner interface{ Scan(...any) error }, extra ...any) (*models.Product, error) {
	var p models.Product
	dest := []any{
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Cost, &p.StockQuantity,
		&p.Vendor, &p.Status, &p.VendorCategoryID, &p.StoreCategoryID, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &p, nil
}

// ExistingSKUs reports which of skus are already stored.
func (s *ProductStore) ExistingSKUs(ctx context.Context, skus []string) (map[string]bool, error) {
	found := make(map[string]bool, len(skus))
	if len(skus) == 0 {
		return found, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT sku FROM products WHERE sku = ANY($1)`, skus)
	if err != nil {
		return nil, fmt.Errorf("existing skus: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, fmt.Errorf("scan sku: %w", err)
		}
		found[sku] = true
	}
	return found, rows.Err()
}

// WriteBatch writes one import chunk in a single transaction: one multi-row
// insert for new SKUs and one update per existing SKU. Inserts that collide
// with a SKU written concurrently by someone else are silently dropped and
// left out of the result.
func (s *ProductStore) WriteBatch(ctx context.Context, batch models.ProductBatch) (models.ProductBatchResult, error) {
	var res models.ProductBatchResult
	if batch.Len() == 0 {
		return res, nil
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if len(batch.Inserts) > 0 {
			inserted, err := insertProducts(ctx, tx, batch.Inserts)
			if err != nil {
				return err
			}
			res.Inserted = inserted
		}

		for i := range batch.Updates {
			ok, err := updateProduct(ctx, tx, &batch.Updates[i])
			if err != nil {
				return err
			}
			if ok {
				res.Updated = append(res.Updated, batch.Updates[i].SKU)
			}
		}
		return nil
	})
	if err != nil {
		return models.ProductBatchResult{}, err
	}
	return res, nil
}

func insertProducts(ctx context.Context, tx *sql.Tx, products []models.Product) ([]string, error) {
	var (
		b    strings.Builder
		args = make([]any, 0, len(products)*len(productWriteColumns))
	)
	b.WriteString(`INSERT INTO products (` + strings.Join(productWriteColumns, ", ") + `) VALUES `)
	for i := range products {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range productWriteColumns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(len(args) + j + 1))
		}
		b.WriteByte(')')
		args = append(args, productArgs(&products[i])...)
	}
	b.WriteString(` ON CONFLICT (sku) DO NOTHING RETURNING sku`)

	rows, err := tx.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert products: %w", err)
	}
	defer rows.Close()

	var skus []string
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, fmt.Errorf("scan inserted sku: %w", err)
		}
		skus = append(skus, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("insert products: %w", err)
	}
	return skus, nil
}

// updateProduct overwrites the mutable fields of the product matched by
// SKU. Optional fields the import left empty keep their stored value. It
// reports false when the SKU no longer exists.
func updateProduct(ctx context.Context, tx *sql.Tx, p *models.Product) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2,
		    description = COALESCE(NULLIF($3, ''), description),
		    price = COALESCE($4, price),
		    cost = COALESCE($5, cost),
		    stock_quantity = $6,
		    vendor = COALESCE(NULLIF($7, ''), vendor),
		    status = $8,
		    vendor_category_id = COALESCE($9, vendor_category_id),
		    store_category_id = COALESCE($10, store_category_id),
		    updated_at = NOW()
		WHERE sku = $1
	`, productArgs(p)...)
	if err != nil {
		return false, fmt.Errorf("update product %s: %w", p.SKU, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	CategoryID *int64
	Type       models.CategoryType
	Search     string
	Limit      int
	Offset     int
}

// List returns a page of products with their category names and the total
// number of matching products. A CategoryID filter matches either taxonomy
// column unless Type selects one.
func (s *ProductStore) List(ctx context.Context, f ProductFilter) ([]models.Product, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}

	var (
		where []string
		args  []any
	)
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		n := strconv.Itoa(len(args))
		if f.Type.Valid() {
			where = append(where, "p."+f.Type.Column()+" = $"+n)
		} else {
			where = append(where, "(p.vendor_category_id = $"+n+" OR p.store_category_id = $"+n+")")
		}
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(p.sku ILIKE $"+n+" OR p.name ILIKE $"+n+")")
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`, COALESCE(vc.name, ''), COALESCE(sc.name, '')
		FROM products p
		LEFT JOIN categories vc ON vc.id = p.vendor_category_id
		LEFT JOIN categories sc ON sc.id = p.store_category_id`+cond+`
		ORDER BY p.sku
		LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var items []models.Product
	for rows.Next() {
		var vendorCat, storeCat string
		p, err := scanProduct(rows, &vendorCat, &storeCat)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		p.VendorCategory, p.StoreCategory = vendorCat, storeCat
		items = append(items, *p)
	}
	return items, total, rows.Err()
}

// ExportRows streams every product ordered by SKU to fn. Iteration stops at
// the first error fn returns.
func (s *ProductStore) ExportRows(ctx context.Context, fn func(*models.Product) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products p ORDER BY p.sku`)
	if err != nil {
		return fmt.Errorf("export products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return fmt.Errorf("scan product: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountByCategory returns how many products reference each category
// directly, counting both taxonomy columns.
func (s *ProductStore) CountByCategory(ctx context.Context) (map[int64]int, error) {
	return countByCategory(ctx, s.db)
}

func countByCategory(ctx context.Context, q queryer) (map[int64]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT category_id, COUNT(*) FROM (
			SELECT vendor_category_id AS category_id FROM products WHERE vendor_category_id IS NOT NULL
			UNION ALL
			SELECT store_category_id FROM products WHERE store_category_id IS NOT NULL
		) refs
		GROUP BY category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("count products by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var (
			id int64
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan product count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
