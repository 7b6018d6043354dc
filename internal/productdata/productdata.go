// Package productdata enriches basket line items with display metadata.
package productdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront-cart/internal/domain"
)

// ErrCacheMiss is returned by a Cache that holds none of the requested options.
var ErrCacheMiss = errors.New("product data cache miss")

// Cache stores product metadata shared by all visitors, keyed by
// domain.ProductData.OptionKey. Entries carry no basket row number.
type Cache interface {
	// GetMany returns the cached entries among optionKeys. Missing entries are
	// simply absent from the result.
	GetMany(ctx context.Context, optionKeys []string) (map[string]domain.ProductData, error)

	// SetMany stores the given entries.
	SetMany(ctx context.Context, data []domain.ProductData) error
}

// Fetcher loads product metadata for the current basket, one entry per row.
type Fetcher interface {
	ProductData(ctx context.Context) ([]domain.ProductData, error)
}

// Enricher resolves product metadata for line items, consulting the cache
// first and falling back to the fetcher when any option is missing.
type Enricher struct {
	cache  Cache
	logger *slog.Logger
}

// NewEnricher creates an Enricher. A nil cache always fetches.
func NewEnricher(cache Cache, logger *slog.Logger) *Enricher {
	return &Enricher{cache: cache, logger: logger}
}

// Enrich returns metadata for every row of items that the cache or the
// fetcher knows about, keyed by BasketProductNo.
func (e *Enricher) Enrich(ctx context.Context, fetcher Fetcher, items []domain.LineItem) (map[int64]domain.ProductData, error) {
	wanted := optionKeys(items)
	if len(wanted) == 0 {
		return map[int64]domain.ProductData{}, nil
	}

	if e.cache != nil {
		cached, err := e.cache.GetMany(ctx, wanted)
		switch {
		case err == nil && len(cached) == len(wanted):
			return byRow(items, nil, cached), nil
		case err != nil && !errors.Is(err, ErrCacheMiss):
			e.logger.WarnContext(ctx, "product data cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	fetched, err := fetcher.ProductData(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch product data: %w", err)
	}

	rows := make(map[int64]domain.ProductData, len(fetched))
	options := make(map[string]domain.ProductData, len(fetched))
	shared := make([]domain.ProductData, 0, len(fetched))
	for _, d := range fetched {
		if d.BasketProductNo != 0 {
			rows[d.BasketProductNo] = d
		}
		d.BasketProductNo = 0
		if _, dup := options[d.OptionKey()]; !dup {
			shared = append(shared, d)
		}
		options[d.OptionKey()] = d
	}

	if e.cache != nil && len(shared) > 0 {
		if err := e.cache.SetMany(ctx, shared); err != nil {
			e.logger.WarnContext(ctx, "product data cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return byRow(items, rows, options), nil
}

// byRow assigns metadata to each item, preferring an entry fetched for the
// exact basket row over one matched by option.
func byRow(items []domain.LineItem, rows map[int64]domain.ProductData, options map[string]domain.ProductData) map[int64]domain.ProductData {
	out := make(map[int64]domain.ProductData, len(items))
	for _, item := range items {
		d, ok := rows[item.BasketProductNo]
		if !ok {
			d, ok = options[item.OptionKey()]
		}
		if !ok {
			continue
		}
		d.BasketProductNo = item.BasketProductNo
		out[item.BasketProductNo] = d
	}
	return out
}

// optionKeys returns the distinct option keys of items in order.
func optionKeys(items []domain.LineItem) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		k := item.OptionKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
