// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"catalogadmin/internal/models"
	"catalogadmin/internal/store"
)

// ProductLister is the read side of the product repository. It is
// satisfied by *store.ProductStore.
type ProductLister interface {
	List(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error)
}

// Products serves the read-only product listing.
type Products struct {
	store ProductLister
}

// NewProducts creates the product handlers.
func NewProducts(s ProductLister) *Products {
	return &Products{store: s}
}

// List returns one page of products, optionally filtered by category
// (?categoryId=&type=) and by a SKU or name search (?search=).
func (h *Products) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, ok := typeParam(w, r)
	if !ok {
		return
	}
	f := store.ProductFilter{Type: t, Search: q.Get("search")}

	if raw := q.Get("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid categoryId.")
			return
		}
		f.CategoryID = &id
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid "+name+".")
			return
		}
		*dst = n
	}

	items, total, err := h.store.List(r.Context(), f)
	if err != nil {
		writeStoreError(w, "list products", err)
		return
	}
	if items == nil {
		items = []models.Product{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": items, "total": total})
}
