package mapper

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
)

// ProductRequest is the create/update body accepted by the v1 API.
type ProductRequest struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Price        *decimal.Decimal `json:"price"`
	Category     string           `json:"category"`
	SKU          string           `json:"sku"`
	Manufacturer string           `json:"manufacturer"`
}

// ToInput converts the transport payload into the domain input.
func ToInput(req ProductRequest) domain.ProductInput {
	return domain.ProductInput{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		Category:     req.Category,
		SKU:          req.SKU,
		Manufacturer: req.Manufacturer,
	}
}

// Product is the v1 representation of a catalog record.
type Product struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Price        json.Number `json:"price"`
	Category     string      `json:"category,omitempty"`
	SKU          string      `json:"sku,omitempty"`
	Manufacturer string      `json:"manufacturer,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	Status       string      `json:"status"`
}

// AggregatedProduct is the v1 merged catalog and stock view.
type AggregatedProduct struct {
	Product
	Stock            int        `json:"stock"`
	InStock          bool       `json:"inStock"`
	StockLocation    string     `json:"stockLocation,omitempty"`
	StockLastUpdated *time.Time `json:"stockLastUpdated,omitempty"`
}

func FromProduct(p *domain.Product) Product {
	if p == nil {
		return Product{}
	}
	return Product{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Price:        json.Number(p.Price.String()),
		Category:     p.Category,
		SKU:          p.SKU,
		Manufacturer: p.Manufacturer,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		Status:       string(p.Status),
	}
}

func FromAggregated(p domain.AggregatedProduct) AggregatedProduct {
	return AggregatedProduct{
		Product:          FromProduct(&p.Product),
		Stock:            p.Stock,
		InStock:          p.InStock,
		StockLocation:    p.StockLocation,
		StockLastUpdated: p.StockLastUpdated,
	}
}

func FromAggregatedList(products []domain.AggregatedProduct) []AggregatedProduct {
	out := make([]AggregatedProduct, 0, len(products))
	for _, p := range products {
		out = append(out, FromAggregated(p))
	}
	return out
}
