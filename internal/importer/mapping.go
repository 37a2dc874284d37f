// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package importer

import (
	"fmt"
	"strconv"
	"strings"

	"catalogadmin/internal/hierarchy"
	"catalogadmin/internal/models"
)

// Canonical field keys a CSV header can be mapped to.
const (
	FieldSKU               = "sku"
	FieldName              = "name"
	FieldDescription       = "description"
	FieldPrice             = "price"
	FieldCost              = "cost"
	FieldStockQuantity     = "stock_quantity"
	FieldVendor            = "vendor"
	FieldStatus            = "status"
	FieldVendorCategory    = "vendor_category"
	FieldStoreCategory     = "store_category"
	FieldCategoryHierarchy = "category_hierarchy"
)

// MaxSubcategoryLevels is the number of *_subcategory_N columns per taxonomy.
const MaxSubcategoryLevels = models.MaxCategoryDepth - 1

// RootField returns the root category column of taxonomy t.
func RootField(t models.CategoryType) string {
	return string(t) + "_category"
}

// SubcategoryField returns the n-th (1-based) subcategory column of t.
func SubcategoryField(t models.CategoryType, n int) string {
	return string(t) + "_subcategory_" + strconv.Itoa(n)
}

// CanonicalFields lists every key a header can be mapped to, in the order
// exports write them.
func CanonicalFields() []string {
	fields := []string{
		FieldSKU, FieldName, FieldDescription, FieldPrice, FieldCost,
		FieldStockQuantity, FieldVendor, FieldStatus,
	}
	for _, t := range models.CategoryTypes() {
		fields = append(fields, RootField(t))
		for n := 1; n <= MaxSubcategoryLevels; n++ {
			fields = append(fields, SubcategoryField(t, n))
		}
	}
	return append(fields, FieldCategoryHierarchy)
}

func isCanonical(key string) bool {
	for _, f := range CanonicalFields() {
		if f == key {
			return true
		}
	}
	return false
}

// FieldMapping maps a source header to a canonical field key. Headers that
// are not mapped are ignored.
type FieldMapping map[string]string

// DefaultMapping maps every header that already names a canonical field,
// ignoring case, surrounding space and "Stock Quantity" style spacing.
func DefaultMapping(headers []string) FieldMapping {
	m := make(FieldMapping)
	for _, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.Join(strings.Fields(key), "_")
		if isCanonical(key) {
			m[h] = key
		}
	}
	return m
}

// Validate rejects mappings that target unknown keys, map two headers to
// the same key, or lack a sku or name column.
func (m FieldMapping) Validate() error {
	seen := make(map[string]string, len(m))
	for header, key := range m {
		if key == "" {
			continue
		}
		if !isCanonical(key) {
			return fmt.Errorf("header %q is mapped to unknown field %q", header, key)
		}
		if other, ok := seen[key]; ok {
			return fmt.Errorf("headers %q and %q are both mapped to %q", other, header, key)
		}
		seen[key] = header
	}
	for _, required := range []string{FieldSKU, FieldName} {
		if _, ok := seen[required]; !ok {
			return fmt.Errorf("no column is mapped to %q", required)
		}
	}
	return nil
}

// Apply converts a header-keyed row into a canonical-keyed one. Values are
// trimmed; empty values are dropped.
func (m FieldMapping) Apply(values map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for header, key := range m {
		if key == "" {
			continue
		}
		if v := strings.TrimSpace(values[header]); v != "" {
			out[key] = v
		}
	}
	return out
}

// CategoryPath extracts the root-to-leaf segments for taxonomy t from a
// canonical row. The root and subcategory columns win; the single
// category_hierarchy column is used for hierarchyType when none of them is
// set. It returns nil when the row carries no path for t.
func CategoryPath(fields map[string]string, t, hierarchyType models.CategoryType) []string {
	var segments []string
	if v := fields[RootField(t)]; v != "" {
		segments = append(segments, v)
	}
	for n := 1; n <= MaxSubcategoryLevels; n++ {
		if v := fields[SubcategoryField(t, n)]; v != "" {
			segments = append(segments, v)
		}
	}
	if len(segments) > 0 {
		return segments
	}
	if t == hierarchyType {
		return hierarchy.SplitPath(fields[FieldCategoryHierarchy])
	}
	return nil
}
