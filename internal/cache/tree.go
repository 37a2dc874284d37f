// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go provides a Valkey-backed cache of rendered category trees.
// Building a tree loads every category of a taxonomy plus product counts,
// so the JSON result is kept until the next category mutation.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"catalogadmin/internal/models"
)

const (
	// treeKeyPrefix is the Valkey key prefix for cached trees.
	treeKeyPrefix = "catalog:tree:"

	// DefaultTreeTTL is how long a tree stays cached without mutations.
	DefaultTreeTTL = 10 * time.Minute
)

// TreeCache stores category trees per taxonomy. A nil *TreeCache is valid
// and behaves as an always-empty cache, so the app runs without Valkey.
type TreeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTreeCache creates a tree cache backed by the given Valkey client.
// It returns nil when client is nil.
func NewTreeCache(client *redis.Client, ttl time.Duration) *TreeCache {
	if client == nil {
		return nil
	}
	if ttl == 0 {
		ttl = DefaultTreeTTL
	}
	return &TreeCache{client: client, ttl: ttl}
}

// TreeKey returns the cache key for the tree of t. The empty type stands
// for both taxonomies.
func TreeKey(t models.CategoryType) string {
	if t == "" {
		return treeKeyPrefix + "all"
	}
	return treeKeyPrefix + string(t)
}

// Get returns the cached tree of t.
func (tc *TreeCache) Get(ctx context.Context, t models.CategoryType) ([]models.Category, bool) {
	if tc == nil {
		return nil, false
	}
	val, err := tc.client.Get(ctx, TreeKey(t)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("tree cache get error", "type", t, "error", err)
		return nil, false
	}

	var tree []models.Category
	if err := json.Unmarshal(val, &tree); err != nil {
		slog.Warn("tree cache decode error", "type", t, "error", err)
		return nil, false
	}
	slog.Debug("tree cache hit", "type", t)
	return tree, true
}

// Set stores the tree of t with the configured TTL.
func (tc *TreeCache) Set(ctx context.Context, t models.CategoryType, tree []models.Category) {
	if tc == nil {
		return
	}
	val, err := json.Marshal(tree)
	if err != nil {
		slog.Warn("tree cache encode error", "type", t, "error", err)
		return
	}
	if err := tc.client.Set(ctx, TreeKey(t), val, tc.ttl).Err(); err != nil {
		slog.Warn("tree cache set error", "type", t, "error", err)
	}
}

// InvalidateAll removes every cached tree. Any category mutation, delete,
// merge or import can change several trees at once (the combined tree and
// product counts included), so there is no finer invalidation.
func (tc *TreeCache) InvalidateAll(ctx context.Context) {
	if tc == nil {
		return
	}
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := tc.client.Scan(ctx, cursor, treeKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("tree cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := tc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("tree cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Debug("tree cache cleared", "deleted", deleted)
	}
}

// Close releases the underlying client.
func (tc *TreeCache) Close() error {
	if tc == nil {
		return nil
	}
	return tc.client.Close()
}
