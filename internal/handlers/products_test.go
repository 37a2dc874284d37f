package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogadmin/internal/models"
)

func TestProductsListFilters(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodGet, "/api/products?categoryId=12&type=store&search=mouse&limit=20&offset=40", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f := env.products.filter
	require.NotNil(t, f.CategoryID)
	assert.EqualValues(t, 12, *f.CategoryID)
	assert.Equal(t, models.CategoryTypeStore, f.Type)
	assert.Equal(t, "mouse", f.Search)
	assert.Equal(t, 20, f.Limit)
	assert.Equal(t, 40, f.Offset)

	body := decode(t, rec)
	assert.EqualValues(t, 1, body["total"])
	assert.Len(t, body["products"], 1)
}

func TestProductsListRejectsBadParams(t *testing.T) {
	env := newTestEnv(t, false)

	for _, target := range []string{
		"/api/products?categoryId=abc",
		"/api/products?categoryId=0",
		"/api/products?limit=-1",
		"/api/products?offset=x",
		"/api/products?type=brand",
	} {
		rec := env.do(http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}
