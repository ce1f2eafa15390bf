package port

import (
	"context"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

type CatalogReader interface {
	// GetProduct retrieves a product by ID, nil if absent
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}
