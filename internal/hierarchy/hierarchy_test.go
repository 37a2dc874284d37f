// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package hierarchy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogadmin/internal/models"
)

func ptr(id int64) *int64 { return &id }

// memResolver is an in-memory Resolver that records every creation.
type memResolver struct {
	mu      sync.Mutex
	next    int64
	rows    map[string]int64
	levels  map[int64]int
	calls   int
	created []string
	failOn  string
}

func newMemResolver() *memResolver {
	return &memResolver{rows: map[string]int64{}, levels: map[int64]int{}}
}

func (m *memResolver) GetOrCreate(_ context.Context, name string, parentID *int64, t models.CategoryType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if name == m.failOn {
		return 0, errors.New("boom")
	}
	key := CacheKey(t, name, parentID)
	if id, ok := m.rows[key]; ok {
		return id, nil
	}
	m.next++
	id := m.next
	m.rows[key] = id
	level := 1
	if parentID != nil {
		level = m.levels[*parentID] + 1
	}
	m.levels[id] = level
	m.created = append(m.created, name)
	return id, nil
}

func sampleForest() *Forest {
	// vendor: 1 Electronics > 2 Phones > 3 Android
	//                       > 4 Laptops
	// store:  5 Home > 6 Kitchen
	return NewForest([]Node{
		{ID: 1, Name: "Electronics", Type: models.CategoryTypeVendor},
		{ID: 2, ParentID: ptr(1), Name: "Phones", Type: models.CategoryTypeVendor},
		{ID: 3, ParentID: ptr(2), Name: "Android", Type: models.CategoryTypeVendor},
		{ID: 4, ParentID: ptr(1), Name: "Laptops", Type: models.CategoryTypeVendor},
		{ID: 5, Name: "Home", Type: models.CategoryTypeStore},
		{ID: 6, ParentID: ptr(5), Name: "Kitchen", Type: models.CategoryTypeStore},
	})
}

func TestForestDescendants(t *testing.T) {
	f := sampleForest()

	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, f.Descendants(1))
	assert.ElementsMatch(t, []int64{2, 3, 6}, f.Descendants(2, 6))
	assert.Equal(t, []int64{3}, f.Descendants(3))

	// Unknown ids are still part of the closure.
	assert.Equal(t, []int64{99}, f.Descendants(99))

	// Overlapping requests do not produce duplicates.
	assert.Len(t, f.Descendants(1, 2, 3), 4)
}

func TestForestDescendantsTerminatesOnCycle(t *testing.T) {
	// 1 -> 2 -> 3 -> 1 is corrupt data; the walk must still finish.
	f := NewForest([]Node{
		{ID: 1, ParentID: ptr(3), Name: "A"},
		{ID: 2, ParentID: ptr(1), Name: "B"},
		{ID: 3, ParentID: ptr(2), Name: "C"},
	})

	assert.ElementsMatch(t, []int64{1, 2, 3}, f.Descendants(1))
	assert.Len(t, f.Ancestors(1), 2)
	assert.True(t, f.IsAncestor(2, 1))
}

func TestForestAncestry(t *testing.T) {
	f := sampleForest()

	assert.Equal(t, []int64{2, 1}, f.Ancestors(3))
	assert.True(t, f.IsAncestor(1, 3))
	assert.True(t, f.IsAncestor(3, 3))
	assert.False(t, f.IsAncestor(3, 1))
	assert.False(t, f.IsAncestor(5, 3))

	assert.Equal(t, 1, f.Depth(1))
	assert.Equal(t, 3, f.Depth(3))
	assert.Equal(t, 0, f.Depth(42))

	assert.Equal(t, []string{"Electronics", "Phones", "Android"}, f.PathNames(3))
	assert.Nil(t, f.PathNames(42))
}

func TestForestRootsAndOrphans(t *testing.T) {
	f := NewForest([]Node{
		{ID: 10, Name: "Orphan", ParentID: ptr(999), Type: models.CategoryTypeStore},
		{ID: 1, Name: "Root", Type: models.CategoryTypeVendor},
	})

	assert.Equal(t, []int64{1, 10}, f.Roots(""))
	assert.Equal(t, []int64{1}, f.Roots(models.CategoryTypeVendor))
	assert.Equal(t, []int64{10}, f.Roots(models.CategoryTypeStore))
}

func TestForestSubtreeTotals(t *testing.T) {
	f := sampleForest()
	totals := f.SubtreeTotals(map[int64]int{1: 1, 2: 2, 3: 3, 4: 4, 6: 10})

	assert.Equal(t, 10, totals[1])
	assert.Equal(t, 5, totals[2])
	assert.Equal(t, 3, totals[3])
	assert.Equal(t, 4, totals[4])
	assert.Equal(t, 10, totals[5])
	assert.Equal(t, 10, totals[6])
}

func TestResolveChainBuildsLevels(t *testing.T) {
	ctx := context.Background()
	r := newMemResolver()

	leaf, err := ResolveChain(ctx, r, models.CategoryTypeStore, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, r.created)
	assert.Equal(t, 3, r.levels[leaf])

	other, err := ResolveChain(ctx, r, models.CategoryTypeStore, []string{"A", "B", "D"})
	require.NoError(t, err)
	assert.NotEqual(t, leaf, other)
	assert.Equal(t, []string{"A", "B", "C", "D"}, r.created, "A and B must be reused")
	assert.Equal(t, 3, r.levels[other])
}

func TestResolveChainSkipsBlankSegments(t *testing.T) {
	r := newMemResolver()

	leaf, err := ResolveChain(context.Background(), r, models.CategoryTypeStore, []string{"A", "  ", "", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, r.created)
	assert.Equal(t, 2, r.levels[leaf])
}

func TestResolveChainEmptyPath(t *testing.T) {
	r := newMemResolver()

	_, err := ResolveChain(context.Background(), r, models.CategoryTypeVendor, []string{" ", ""})
	assert.ErrorIs(t, err, ErrEmptyPath)
	assert.Zero(t, r.calls)
}

func TestResolveChainPropagatesErrors(t *testing.T) {
	r := newMemResolver()
	r.failOn = "B"

	_, err := ResolveChain(context.Background(), r, models.CategoryTypeVendor, []string{"A", "B", "C"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"B"`)
	assert.Equal(t, []string{"A"}, r.created)
}

func TestCacheAvoidsRepeatedLookups(t *testing.T) {
	ctx := context.Background()
	r := newMemResolver()
	c := NewCache(r)

	for i := 0; i < 5; i++ {
		_, err := ResolveChain(ctx, c, models.CategoryTypeVendor, []string{"Computer Accessories", "Computers", "Mice"})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, r.calls, "only the first run reaches the resolver")
	hits, misses := c.Stats()
	assert.Equal(t, 12, hits)
	assert.Equal(t, 3, misses)
	assert.Equal(t, 3, c.Len())
}

func TestCacheKeysSeparateTypesAndParents(t *testing.T) {
	assert.Equal(t, "vendor:Phones:null", CacheKey(models.CategoryTypeVendor, " Phones ", nil))
	assert.Equal(t, "store:Phones:7", CacheKey(models.CategoryTypeStore, "Phones", ptr(7)))

	ctx := context.Background()
	r := newMemResolver()
	c := NewCache(r)

	a, err := c.GetOrCreate(ctx, "Phones", nil, models.CategoryTypeVendor)
	require.NoError(t, err)
	b, err := c.GetOrCreate(ctx, "Phones", nil, models.CategoryTypeStore)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCacheDoesNotRememberFailures(t *testing.T) {
	ctx := context.Background()
	r := newMemResolver()
	r.failOn = "Flaky"
	c := NewCache(r)

	_, err := c.GetOrCreate(ctx, "Flaky", nil, models.CategoryTypeVendor)
	require.Error(t, err)
	assert.Zero(t, c.Len())

	r.failOn = ""
	_, err = c.GetOrCreate(ctx, "Flaky", nil, models.CategoryTypeVendor)
	require.NoError(t, err)
	assert.Equal(t, 2, r.calls)
}

func TestCacheForget(t *testing.T) {
	ctx := context.Background()
	r := newMemResolver()
	c := NewCache(r)

	id, err := c.GetOrCreate(ctx, "Gone", nil, models.CategoryTypeVendor)
	require.NoError(t, err)
	c.Forget(id)
	assert.Zero(t, c.Len())
}

func TestSplitAndJoinPath(t *testing.T) {
	assert.Equal(t, []string{"Electronics", "Phones", "Android"}, SplitPath("Electronics > Phones>Android"))
	assert.Equal(t, []string{"A", "C"}, SplitPath("A >  > C >"))
	assert.Empty(t, SplitPath("   "))
	assert.Equal(t, "A > B", JoinPath([]string{"A", "B"}))
}
