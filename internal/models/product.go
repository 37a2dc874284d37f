// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus is the sales state of a product.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
	ProductStatusDraft    ProductStatus = "draft"
)

// Valid reports whether s is a known product status.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusActive, ProductStatusInactive, ProductStatusDraft:
		return true
	}
	return false
}

// Product is a catalog item classified independently in both taxonomies.
// SKU is the natural key used by imports.
type Product struct {
	ID               int64               `json:"id"`
	SKU              string              `json:"sku"`
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	Price            decimal.NullDecimal `json:"price"`
	Cost             decimal.NullDecimal `json:"cost"`
	StockQuantity    int                 `json:"stock_quantity"`
	Vendor           string              `json:"vendor"`
	Status           ProductStatus       `json:"status"`
	VendorCategoryID *int64              `json:"vendor_category_id"`
	StoreCategoryID  *int64              `json:"store_category_id"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`

	// Virtual fields populated by listing queries.
	VendorCategory string `json:"vendor_category,omitempty"`
	StoreCategory  string `json:"store_category,omitempty"`
}

// CategoryID returns the product's category in the given taxonomy.
func (p *Product) CategoryID(t CategoryType) *int64 {
	if t == CategoryTypeStore {
		return p.StoreCategoryID
	}
	return p.VendorCategoryID
}

// ProductBatch is one chunk of an import, written in a single transaction.
type ProductBatch struct {
	Inserts []Product
	Updates []Product
}

// Len returns the number of products in the batch.
func (b ProductBatch) Len() int {
	return len(b.Inserts) + len(b.Updates)
}

// ProductBatchResult lists the SKUs a batch actually wrote. An insert that
// lost a race against a concurrent writer is absent from Inserted.
type ProductBatchResult struct {
	Inserted []string
	Updated  []string
}
