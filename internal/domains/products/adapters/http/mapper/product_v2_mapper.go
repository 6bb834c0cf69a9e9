package mapper

import (
	"net/url"
	"time"

	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
)

const cacheStatusLive = "live"

// Metadata carries record timestamps in the v2 envelope.
type Metadata struct {
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	CacheStatus string    `json:"cacheStatus"`
}

// Links points at related resources.
type Links struct {
	Self  string `json:"self"`
	Stock string `json:"stock"`
	ERP   string `json:"erp"`
}

// Availability summarises stock for a single v2 product.
type Availability struct {
	InStock     bool       `json:"inStock"`
	StockLevel  int        `json:"stockLevel"`
	Location    string     `json:"location,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// ProductV2 extends the v1 view with metadata, links and, for single reads, availability.
type ProductV2 struct {
	AggregatedProduct
	Metadata     Metadata      `json:"metadata"`
	Links        Links         `json:"links"`
	Availability *Availability `json:"availability,omitempty"`
}

func ToV2(p domain.AggregatedProduct) ProductV2 {
	id := url.PathEscape(p.ID)
	return ProductV2{
		AggregatedProduct: FromAggregated(p),
		Metadata: Metadata{
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
			CacheStatus: cacheStatusLive,
		},
		Links: Links{
			Self:  "/v2/products/" + id,
			Stock: "/v2/products/" + id + "/stock",
			ERP:   "/v1/products/" + id,
		},
	}
}

// ToV2Detail adds the availability block served by the single-product endpoint.
func ToV2Detail(p domain.AggregatedProduct) ProductV2 {
	v2 := ToV2(p)
	v2.Availability = &Availability{
		InStock:     p.InStock,
		StockLevel:  p.Stock,
		Location:    p.StockLocation,
		LastUpdated: p.StockLastUpdated,
	}
	return v2
}

func ToV2List(products []domain.AggregatedProduct) []ProductV2 {
	out := make([]ProductV2, 0, len(products))
	for _, p := range products {
		out = append(out, ToV2(p))
	}
	return out
}
