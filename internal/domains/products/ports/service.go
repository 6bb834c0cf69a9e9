package ports

import (
	"context"

	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
)

// Service defines the aggregated catalog use cases exposed to adapters (inbound/driving port).
type Service interface {
	ListAll(ctx context.Context) ([]domain.AggregatedProduct, error)
	// GetByID returns nil when the catalog does not know the product.
	GetByID(ctx context.Context, id string) (*domain.AggregatedProduct, error)
	Create(ctx context.Context, input domain.ProductInput, idempotencyKey string) (*domain.Product, error)
	Update(ctx context.Context, id string, input domain.ProductInput, idempotencyKey string) (*domain.Product, error)
	// Delete reports false when the product did not exist.
	Delete(ctx context.Context, id string) (bool, error)
	CheckUpstreams(ctx context.Context) map[string]bool
}

// Cache is the read-through store used by the aggregation service.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
}
