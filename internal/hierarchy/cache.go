// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package hierarchy

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"catalogadmin/internal/metrics"
	"catalogadmin/internal/models"
)

// Cache is a process-local memo of resolved categories scoped to a single
// import run. It only saves round trips for repeated segments; it does not
// make concurrent creation safe. That is the job of the Resolver it wraps.
type Cache struct {
	next Resolver

	mu     sync.Mutex
	ids    map[string]int64
	hits   int
	misses int
}

// NewCache returns an empty cache in front of next.
func NewCache(next Resolver) *Cache {
	return &Cache{next: next, ids: make(map[string]int64)}
}

// CacheKey builds the "type:name:parentId" key for a triple. Roots use
// "null" for the parent.
func CacheKey(t models.CategoryType, name string, parentID *int64) string {
	parent := "null"
	if parentID != nil {
		parent = strconv.FormatInt(*parentID, 10)
	}
	return string(t) + ":" + strings.TrimSpace(name) + ":" + parent
}

// GetOrCreate returns the cached id for the triple, or asks the wrapped
// resolver and remembers the answer. Failed lookups are not cached.
func (c *Cache) GetOrCreate(ctx context.Context, name string, parentID *int64, t models.CategoryType) (int64, error) {
	key := CacheKey(t, name, parentID)

	c.mu.Lock()
	id, ok := c.ids[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	metrics.RecordCategoryCache(ok)
	if ok {
		return id, nil
	}

	id, err := c.next.GetOrCreate(ctx, strings.TrimSpace(name), parentID, t)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.ids[key] = id
	c.mu.Unlock()
	return id, nil
}

// Forget drops every cached entry that resolved to one of ids.
func (c *Cache) Forget(ids ...int64) {
	doomed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.ids {
		if doomed[v] {
			delete(c.ids, k)
		}
	}
}

// Stats returns hit and miss counts since the cache was created.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}
