// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"fmt"
	"net/http"

	"catalogadmin/internal/cache"
	"catalogadmin/internal/hierarchy"
	"catalogadmin/internal/models"
)

// CategoryStore is the category repository the handlers use. It is
// satisfied by *store.CategoryStore.
type CategoryStore interface {
	List(ctx context.Context, t models.CategoryType) ([]models.Category, error)
	Tree(ctx context.Context, t models.CategoryType) ([]models.Category, error)
	FindByID(ctx context.Context, id int64) (*models.Category, error)
	Create(ctx context.Context, c *models.Category) error
	Update(ctx context.Context, c *models.Category) error
	BulkDelete(ctx context.Context, ids []int64) (int, error)
	Merge(ctx context.Context, sourceID, targetID int64, t models.CategoryType) (int64, error)
	ResolveChain(ctx context.Context, t models.CategoryType, segments []string) (int64, error)
}

// Categories groups the category management handlers.
type Categories struct {
	store CategoryStore
	trees *cache.TreeCache
}

// NewCategories creates the category handlers. trees may be nil.
func NewCategories(s CategoryStore, trees *cache.TreeCache) *Categories {
	return &Categories{store: s, trees: trees}
}

// typeParam reads the optional ?type= filter. An empty value selects both
// taxonomies.
func typeParam(w http.ResponseWriter, r *http.Request) (models.CategoryType, bool) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		return "", true
	}
	t, err := models.ParseCategoryType(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, sentence(err.Error()))
		return "", false
	}
	return t, true
}

// List returns every category of the requested taxonomy, flat, with
// recursive product counts and full paths.
func (h *Categories) List(w http.ResponseWriter, r *http.Request) {
	t, ok := typeParam(w, r)
	if !ok {
		return
	}
	items, err := h.store.List(r.Context(), t)
	if err != nil {
		writeStoreError(w, "list categories", err)
		return
	}
	if items == nil {
		items = []models.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": items})
}

// Tree returns the nested category forest, served from Valkey when cached.
func (h *Categories) Tree(w http.ResponseWriter, r *http.Request) {
	t, ok := typeParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	tree, hit := h.trees.Get(ctx, t)
	if !hit {
		var err error
		tree, err = h.store.Tree(ctx, t)
		if err != nil {
			writeStoreError(w, "load category tree", err)
			return
		}
		if tree == nil {
			tree = []models.Category{}
		}
		h.trees.Set(ctx, t, tree)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": tree})
}

// Get returns one category.
func (h *Categories) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid category id.")
		return
	}
	c, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, "load category", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type createCategoryRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Type     string `json:"type" validate:"required,oneof=vendor store"`
	ParentID *int64 `json:"parentId" validate:"omitempty,gt=0"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// Create adds a category chosen explicitly by a user.
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := readJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	c := &models.Category{
		Name:     req.Name,
		Type:     models.CategoryType(req.Type),
		ParentID: req.ParentID,
		Status:   models.CategoryStatus(req.Status),
	}
	if err := h.store.Create(r.Context(), c); err != nil {
		writeStoreError(w, "create category", err)
		return
	}
	h.trees.InvalidateAll(r.Context())
	writeJSON(w, http.StatusCreated, c)
}

type updateCategoryRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	ParentID *int64 `json:"parentId" validate:"omitempty,gt=0"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// Update renames, moves or changes the status of a category. A null or
// missing parentId makes it a root; a missing status keeps the current one.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid category id.")
		return
	}
	var req updateCategoryRequest
	if err := readJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	ctx := r.Context()
	c, err := h.store.FindByID(ctx, id)
	if err != nil {
		writeStoreError(w, "update category", err)
		return
	}
	c.Name = req.Name
	c.ParentID = req.ParentID
	if req.Status != "" {
		c.Status = models.CategoryStatus(req.Status)
	}
	if err := h.store.Update(ctx, c); err != nil {
		writeStoreError(w, "update category", err)
		return
	}
	h.trees.InvalidateAll(ctx)
	writeJSON(w, http.StatusOK, c)
}

// Delete removes a category with its whole subtree.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid category id.")
		return
	}
	h.deleteCategories(w, r, []int64{id})
}

type bulkDeleteRequest struct {
	CategoryIDs []int64 `json:"categoryIds" validate:"required,min=1,max=1000,dive,gt=0"`
}

// BulkDelete removes several categories with their subtrees. Products that
// referenced any removed category move to Uncategorized.
func (h *Categories) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := readJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	h.deleteCategories(w, r, req.CategoryIDs)
}

func (h *Categories) deleteCategories(w http.ResponseWriter, r *http.Request, ids []int64) {
	n, err := h.store.BulkDelete(r.Context(), ids)
	if err != nil {
		writeStoreError(w, "delete categories", err)
		return
	}
	h.trees.InvalidateAll(r.Context())

	msg := fmt.Sprintf("Deleted %d categories", n)
	if n == 1 {
		msg = "Deleted 1 category"
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg, "deletedCount": n})
}

type mergeRequest struct {
	SourceCategoryID int64  `json:"sourceCategoryId" validate:"required,gt=0"`
	TargetCategoryID int64  `json:"targetCategoryId" validate:"required,gt=0"`
	CategoryType     string `json:"categoryType" validate:"omitempty,oneof=vendor store"`
}

// Merge moves every product of the source category to the target.
func (h *Categories) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	moved, err := h.store.Merge(r.Context(), req.SourceCategoryID, req.TargetCategoryID, models.CategoryType(req.CategoryType))
	if err != nil {
		writeStoreError(w, "merge categories", err)
		return
	}
	h.trees.InvalidateAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       fmt.Sprintf("Categories merged successfully, %d products moved", moved),
		"productsMoved": moved,
	})
}

type resolveRequest struct {
	Type     string   `json:"type" validate:"required,oneof=vendor store"`
	Path     string   `json:"path" validate:"required_without=Segments,max=2000"`
	Segments []string `json:"segments" validate:"max=6"`
}

// Resolve finds or creates a whole category path ("A > B > C" or a
// segment list) and returns the leaf id.
func (h *Categories) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := readJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	segments := req.Segments
	if len(segments) == 0 {
		segments = hierarchy.SplitPath(req.Path)
	}
	segments = hierarchy.NormalizeSegments(segments)
	if len(segments) > models.MaxCategoryDepth {
		writeJSONError(w, http.StatusUnprocessableEntity, "Category path is too deep.")
		return
	}

	id, err := h.store.ResolveChain(r.Context(), models.CategoryType(req.Type), segments)
	if err != nil {
		writeStoreError(w, "resolve category path", err)
		return
	}
	h.trees.InvalidateAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "path": hierarchy.JoinPath(segments)})
}
