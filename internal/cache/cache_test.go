// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"

	"catalogadmin/internal/models"
)

// testValkeyClient returns a Redis client for tests.
// Skips if Valkey is unavailable.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15, // Use DB 15 for tests.
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, treeKeyPrefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestConnectValkey(t *testing.T) {
	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")

	client, err := ConnectValkey(host, port, "")
	if err != nil {
		t.Skipf("skipping: Valkey not available: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if pong != "PONG" {
		t.Errorf("expected PONG, got %q", pong)
	}
}

func sampleTree() []models.Category {
	return []models.Category{{
		ID: 1, Name: "Electronics", Type: models.CategoryTypeVendor, Level: 1, ProductCount: 3,
		Children: []models.Category{{ID: 2, Name: "Phones", Type: models.CategoryTypeVendor, Level: 2, ProductCount: 3}},
	}}
}

func TestTreeCacheSetAndGet(t *testing.T) {
	client := testValkeyClient(t)
	tc := NewTreeCache(client, time.Minute)
	ctx := context.Background()

	// Miss.
	if _, ok := tc.Get(ctx, models.CategoryTypeVendor); ok {
		t.Error("expected cache miss")
	}

	tc.Set(ctx, models.CategoryTypeVendor, sampleTree())

	// Hit.
	tree, ok := tc.Get(ctx, models.CategoryTypeVendor)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(tree) != 1 || len(tree[0].Children) != 1 || tree[0].Children[0].Name != "Phones" {
		t.Errorf("tree mismatch: %+v", tree)
	}

	// Other taxonomies are separate entries.
	if _, ok := tc.Get(ctx, models.CategoryTypeStore); ok {
		t.Error("expected miss for store tree")
	}
}

func TestTreeCacheInvalidateAll(t *testing.T) {
	client := testValkeyClient(t)
	tc := NewTreeCache(client, time.Minute)
	ctx := context.Background()

	tc.Set(ctx, models.CategoryTypeVendor, sampleTree())
	tc.Set(ctx, models.CategoryTypeStore, sampleTree())
	tc.Set(ctx, "", sampleTree())

	tc.InvalidateAll(ctx)

	for _, typ := range []models.CategoryType{models.CategoryTypeVendor, models.CategoryTypeStore, ""} {
		if _, ok := tc.Get(ctx, typ); ok {
			t.Errorf("expected miss for %q after InvalidateAll", typ)
		}
	}
}

func TestTreeKey(t *testing.T) {
	if got := TreeKey(models.CategoryTypeStore); got != "catalog:tree:store" {
		t.Errorf("TreeKey(store) = %q", got)
	}
	if got := TreeKey(""); got != "catalog:tree:all" {
		t.Errorf("TreeKey(\"\") = %q", got)
	}
}

func TestNilTreeCacheIsUsable(t *testing.T) {
	tc := NewTreeCache(nil, 0)
	if tc != nil {
		t.Fatal("expected nil cache without a client")
	}
	ctx := context.Background()
	tc.Set(ctx, models.CategoryTypeVendor, sampleTree())
	if _, ok := tc.Get(ctx, models.CategoryTypeVendor); ok {
		t.Error("nil cache must always miss")
	}
	tc.InvalidateAll(ctx)
}

func TestNewTreeCacheDefaultTTL(t *testing.T) {
	tc := NewTreeCache(redis.NewClient(&redis.Options{Addr: "localhost:0"}), 0)
	if tc.ttl != DefaultTreeTTL {
		t.Errorf("expected DefaultTreeTTL (%v), got %v", DefaultTreeTTL, tc.ttl)
	}
}

func TestLimiterStoreSharesWindow(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, importGatePrefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})

	rate := limiter.Rate{Period: time.Minute, Limit: 1}
	a, err := NewLimiterStore(client)
	if err != nil {
		t.Fatalf("NewLimiterStore: %v", err)
	}
	b, err := NewLimiterStore(client)
	if err != nil {
		t.Fatalf("NewLimiterStore: %v", err)
	}

	first, err := limiter.New(a, rate).Get(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if first.Reached {
		t.Fatal("first start should be allowed")
	}
	second, err := limiter.New(b, rate).Get(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !second.Reached {
		t.Error("a second instance must see the first start")
	}
}
