// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// catalog.go caches public marketplace reads (template listings, domains,
// plans) as JSON in Valkey. Any admin change to templates drops the whole
// catalog since a single template can appear in many listings.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	catalogKeyPrefix = "catalog:"

	// DefaultCatalogTTL is how long a catalog read stays cached.
	DefaultCatalogTTL = 5 * time.Minute
)

// Catalog is a JSON read-through cache. A nil *Catalog is valid and
// caches nothing.
type Catalog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCatalog creates a catalog cache backed by the given Valkey client.
func NewCatalog(client *redis.Client, ttl time.Duration) *Catalog {
	if ttl == 0 {
		ttl = DefaultCatalogTTL
	}
	return &Catalog{client: client, ttl: ttl}
}

// Get decodes the cached value for key into dst. Reports false on a miss
// or any error.
func (c *Catalog) Get(ctx context.Context, key string, dst any) bool {
	if c == nil {
		return false
	}
	val, err := c.client.Get(ctx, catalogKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		slog.Warn("catalog cache get error", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(val, dst); err != nil {
		slog.Warn("catalog cache decode error", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores v under key with the configured TTL.
func (c *Catalog) Set(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("catalog cache encode error", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, catalogKeyPrefix+key, data, c.ttl).Err(); err != nil {
		slog.Warn("catalog cache set error", "key", key, "error", err)
	}
}

// Invalidate removes every catalog entry.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	var cursor uint64
	var deleted int
	for {
		keys, next, err := c.client.Scan(ctx, cursor, catalogKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("catalog cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("catalog cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	slog.Debug("catalog cache cleared", "deleted", deleted)
}

// Fetch returns the cached value for key, calling load and caching its
// result on a miss. Load errors are returned and not cached.
func Fetch[T any](ctx context.Context, c *Catalog, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	if c.Get(ctx, key, &v) {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v)
	return v, nil
}

// TemplatesKey identifies one page of a template listing.
func TemplatesKey(domain, query string, limit, offset int) string {
	return fmt.Sprintf("templates:%s:%s:%d:%d",
		strings.ToLower(strings.TrimSpace(domain)), strings.ToLower(strings.TrimSpace(query)), limit, offset)
}

// Fixed catalog keys.
const (
	DomainsKey = "domains"
	PlansKey   = "plans"
)
