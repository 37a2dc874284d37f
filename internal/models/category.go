// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"fmt"
	"strings"
	"time"
)

// CategoryType partitions the category table into two independent forests.
type CategoryType string

const (
	CategoryTypeVendor CategoryType = "vendor"
	CategoryTypeStore  CategoryType = "store"
)

// CategoryTypes lists every taxonomy in a stable order.
func CategoryTypes() []CategoryType {
	return []CategoryType{CategoryTypeVendor, CategoryTypeStore}
}

// Valid reports whether t is one of the known taxonomies.
func (t CategoryType) Valid() bool {
	return t == CategoryTypeVendor || t == CategoryTypeStore
}

// Column returns the products column that references categories of type t.
func (t CategoryType) Column() string {
	if t == CategoryTypeStore {
		return "store_category_id"
	}
	return "vendor_category_id"
}

// ParseCategoryType converts user input ("Vendor", " store ") into a CategoryType.
func ParseCategoryType(s string) (CategoryType, error) {
	t := CategoryType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid category type %q", s)
	}
	return t, nil
}

// CategoryStatus is the lifecycle flag of a category.
type CategoryStatus string

const (
	CategoryStatusActive   CategoryStatus = "active"
	CategoryStatusInactive CategoryStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s CategoryStatus) Valid() bool {
	return s == CategoryStatusActive || s == CategoryStatusInactive
}

const (
	// UncategorizedName is the well-known root that receives products whose
	// category was deleted. There is one per taxonomy.
	UncategorizedName = "Uncategorized"

	// MaxCategoryDepth is the deepest level the import columns can express:
	// one root column plus five subcategory columns.
	MaxCategoryDepth = 6
)

// Category is a node in either the vendor or the store taxonomy.
// Level is the depth at which the category sits (roots are 1).
type Category struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Type      CategoryType   `json:"type"`
	ParentID  *int64         `json:"parent_id"`
	Level     int            `json:"level"`
	Status    CategoryStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Virtual fields populated by store methods.
	Children     []Category `json:"children,omitempty"`
	ProductCount int        `json:"product_count"`
	Path         []string   `json:"path,omitempty"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// IsUncategorized reports whether c is the fallback root of its taxonomy.
func (c *Category) IsUncategorized() bool {
	return c.ParentID == nil && c.Name == UncategorizedName
}
