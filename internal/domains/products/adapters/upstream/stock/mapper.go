package stock

import (
	"fmt"
	"time"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
	"github.com/Apurer/catalog-gateway/internal/domains/products/adapters/upstream/payload"
	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
)

const unknownLocation = "unknown"

type stockPayload struct {
	ProductID   payload.Text  `json:"productId"`
	ID          payload.Text  `json:"id"`
	Quantity    payload.Count `json:"quantity"`
	StockLevel  payload.Count `json:"stockLevel"`
	Location    payload.Text  `json:"location"`
	LastUpdated payload.Text  `json:"lastUpdated"`
	Reserved    payload.Count `json:"reserved"`
	InTransit   payload.Count `json:"inTransit"`
	Status      payload.Text  `json:"status"`
}

func toDomain(p stockPayload, now func() time.Time) domain.Stock {
	quantity := payload.FirstNonZero(p.Quantity, p.StockLevel)
	location := p.Location.String()
	if location == "" {
		location = unknownLocation
	}
	status := domain.StockStatus(p.Status.String())
	if status == "" {
		status = domain.StockOutOfStock
		if quantity > 0 {
			status = domain.StockInStock
		}
	}
	return domain.Stock{
		ProductID:   payload.FirstText(p.ProductID, p.ID),
		Quantity:    quantity,
		Location:    location,
		LastUpdated: payload.Time(p.LastUpdated, now),
		Reserved:    payload.FirstNonZero(p.Reserved),
		InTransit:   payload.FirstNonZero(p.InTransit),
		Status:      status,
	}
}

func decodeStock(resp *resilient.Response, now func() time.Time) (*domain.Stock, error) {
	var p stockPayload
	if err := resp.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode stock record: %w", err)
	}
	stock := toDomain(p, now)
	return &stock, nil
}

// decodeStockMap accepts either a list of records or an object keyed by product id.
func decodeStockMap(resp *resilient.Response, now func() time.Time) (map[string]domain.Stock, error) {
	out := map[string]domain.Stock{}
	switch {
	case payload.IsArray(resp.Body):
		var records []stockPayload
		if err := resp.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode stock records: %w", err)
		}
		for _, record := range records {
			stock := toDomain(record, now)
			out[stock.ProductID] = stock
		}
	case payload.IsObject(resp.Body):
		var records map[string]stockPayload
		if err := resp.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode stock records: %w", err)
		}
		for productID, record := range records {
			stock := toDomain(record, now)
			if stock.ProductID == "" {
				stock.ProductID = productID
			}
			out[productID] = stock
		}
	}
	return out, nil
}
