// Package basket defines the contract of the platform basket API that holds
// the authoritative cart state.
package basket

import (
	"context"

	"github.com/utafrali/storefront-cart/internal/domain"
)

// API is the platform basket API consumed by a cart session.
type API interface {
	// Init prepares the client. It is idempotent.
	Init(ctx context.Context) error

	// GetData returns the current line items in basket order.
	GetData(ctx context.Context) ([]domain.LineItem, error)

	// SetAsyncData applies a quantity update to one basket row.
	SetAsyncData(ctx context.Context, req domain.UpdateRequest) error

	// DeleteCartItems removes the given rows in a single request.
	DeleteCartItems(ctx context.Context, mode string, targets []domain.DeleteTarget) error

	// RestoreCache asks the platform to rebuild its server-side basket cache.
	RestoreCache(ctx context.Context) error

	// ProductData returns display metadata for the products in the basket.
	ProductData(ctx context.Context) ([]domain.ProductData, error)
}
