package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-cart/internal/domain"
	"github.com/utafrali/storefront-cart/internal/productdata"
	"github.com/utafrali/storefront-cart/pkg/database"
)

const keyPrefix = "cart:product:"

// Cache implements productdata.Cache using Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new Redis-backed product data cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// key maps an option key ("<productNo>:<optionId>") to its Redis key.
func key(optionKey string) string {
	return keyPrefix + optionKey
}

// GetMany reads the requested options with a single MGET.
func (c *Cache) GetMany(ctx context.Context, optionKeys []string) (_ map[string]domain.ProductData, err error) {
	if len(optionKeys) == 0 {
		return map[string]domain.ProductData{}, nil
	}

	ctx, end := database.TraceCommand(ctx, "GetProductData", "MGET", len(optionKeys))
	defer func() { end(err) }()

	keys := make([]string, len(optionKeys))
	for i, k := range optionKeys {
		keys[i] = key(k)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget product data: %w", err)
	}

	out := make(map[string]domain.ProductData, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var d domain.ProductData
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return nil, fmt.Errorf("unmarshal product data: %w", err)
		}
		out[d.OptionKey()] = d
	}

	if len(out) == 0 {
		return nil, productdata.ErrCacheMiss
	}
	return out, nil
}

// SetMany stores entries in one pipeline with the configured TTL. Basket row
// numbers are dropped: entries are shared across visitors.
func (c *Cache) SetMany(ctx context.Context, data []domain.ProductData) (err error) {
	ctx, end := database.TraceCommand(ctx, "SetProductData", "SET", len(data))
	defer func() { end(err) }()

	pipe := c.client.Pipeline()
	for _, d := range data {
		d.BasketProductNo = 0
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal product data: %w", err)
		}
		pipe.Set(ctx, key(d.OptionKey()), payload, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set product data: %w", err)
	}
	return nil
}
