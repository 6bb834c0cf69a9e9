package ports

import (
	"context"

	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
)

// Catalog is the outbound port to the product master-data upstream.
// Missing products are reported as nil / false, never as errors.
type Catalog interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, input domain.ProductInput, idempotencyKey string) (*domain.Product, error)
	Update(ctx context.Context, id string, input domain.ProductInput, idempotencyKey string) (*domain.Product, error)
	Delete(ctx context.Context, id string) (bool, error)
	Probe(ctx context.Context) bool
}

// Stock is the outbound port to the warehouse upstream.
type Stock interface {
	// Get returns nil when the warehouse has no record for the product.
	Get(ctx context.Context, productID string) (*domain.Stock, error)
	GetBulk(ctx context.Context, productIDs []string) (map[string]domain.Stock, error)
	// GetAll degrades to an empty map when the warehouse cannot be reached.
	GetAll(ctx context.Context) (map[string]domain.Stock, error)
	Probe(ctx context.Context) bool
}
