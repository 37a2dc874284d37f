// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// importGatePrefix namespaces the import start counters.
const importGatePrefix = "catalog:import-gate"

// NewLimiterStore returns a limiter store on Valkey so that every server
// instance counts a client's import starts against the same window.
func NewLimiterStore(client *redis.Client) (limiter.Store, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: importGatePrefix})
	if err != nil {
		return nil, fmt.Errorf("valkey limiter store: %w", err)
	}
	return store, nil
}
