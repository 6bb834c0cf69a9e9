package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
	"github.com/Apurer/catalog-gateway/internal/domains/products/adapters/upstream/payload"
	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
)

// productPayload is the catalog upstream's product representation.
type productPayload struct {
	ID           payload.Text        `json:"id"`
	LegacyID     payload.Text        `json:"_id"`
	Name         payload.Text        `json:"name"`
	Description  payload.Text        `json:"description"`
	Price        decimal.NullDecimal `json:"price"`
	Category     payload.Text        `json:"category"`
	SKU          payload.Text        `json:"sku"`
	Manufacturer payload.Text        `json:"manufacturer"`
	Status       payload.Text        `json:"status"`
	CreatedAt    payload.Text        `json:"createdAt"`
	UpdatedAt    payload.Text        `json:"updatedAt"`
}

// productRequest is the create/update body sent upstream. Prices travel as JSON numbers.
type productRequest struct {
	ID           string       `json:"id,omitempty"`
	Name         string       `json:"name,omitempty"`
	Description  string       `json:"description,omitempty"`
	Price        *json.Number `json:"price,omitempty"`
	Category     string       `json:"category,omitempty"`
	SKU          string       `json:"sku,omitempty"`
	Manufacturer string       `json:"manufacturer,omitempty"`
}

func toRequest(in domain.ProductInput) productRequest {
	req := productRequest{
		ID:           in.ID,
		Name:         in.Name,
		Description:  in.Description,
		Category:     in.Category,
		SKU:          in.SKU,
		Manufacturer: in.Manufacturer,
	}
	if in.Price != nil {
		price := json.Number(in.Price.String())
		req.Price = &price
	}
	return req
}

func toDomain(p productPayload, now func() time.Time) domain.Product {
	return domain.Product{
		ID:           payload.FirstText(p.ID, p.LegacyID),
		Name:         p.Name.String(),
		Description:  p.Description.String(),
		Category:     p.Category.String(),
		SKU:          p.SKU.String(),
		Manufacturer: p.Manufacturer.String(),
		Price:        p.Price.Decimal,
		CreatedAt:    payload.Time(p.CreatedAt, now),
		UpdatedAt:    payload.Time(p.UpdatedAt, now),
		Status:       domain.ParseStatus(p.Status.String()),
	}
}

// decodeProduct maps a single product; an empty body maps to an empty product.
func decodeProduct(resp *resilient.Response, now func() time.Time) (*domain.Product, error) {
	var p productPayload
	if err := resp.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode catalog product: %w", err)
	}
	product := toDomain(p, now)
	return &product, nil
}

// decodeProducts maps a list payload; anything but a JSON array yields an empty list.
func decodeProducts(resp *resilient.Response, now func() time.Time) ([]domain.Product, error) {
	if !payload.IsArray(resp.Body) {
		return []domain.Product{}, nil
	}
	var raw []productPayload
	if err := resp.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog products: %w", err)
	}
	products := make([]domain.Product, 0, len(raw))
	for _, p := range raw {
		products = append(products, toDomain(p, now))
	}
	return products, nil
}
