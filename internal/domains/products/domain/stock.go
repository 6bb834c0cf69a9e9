package domain

import "time"

// StockStatus is the warehouse-reported availability of a product.
type StockStatus string

const (
	StockInStock      StockStatus = "in_stock"
	StockOutOfStock   StockStatus = "out_of_stock"
	StockLow          StockStatus = "low_stock"
	StockDiscontinued StockStatus = "discontinued"
)

// Stock is a warehouse record for a single product.
type Stock struct {
	ProductID   string
	Quantity    int
	Location    string
	LastUpdated time.Time
	Reserved    int
	InTransit   int
	Status      StockStatus
}

// AggregatedProduct is the merged catalog + stock view served to callers.
// InStock always equals Stock > 0.
type AggregatedProduct struct {
	Product
	Stock            int
	InStock          bool
	StockLocation    string
	StockLastUpdated *time.Time
}

// Merge combines a product with its (possibly absent) stock record.
func Merge(product Product, stock *Stock) AggregatedProduct {
	merged := AggregatedProduct{Product: product}
	if stock == nil {
		return merged
	}
	if stock.Quantity > 0 {
		merged.Stock = stock.Quantity
	}
	merged.InStock = merged.Stock > 0
	merged.StockLocation = stock.Location
	lastUpdated := stock.LastUpdated
	merged.StockLastUpdated = &lastUpdated
	return merged
}

// MergeAll merges every product with the stock record found under its id.
func MergeAll(products []Product, stocks map[string]Stock) []AggregatedProduct {
	merged := make([]AggregatedProduct, 0, len(products))
	for _, product := range products {
		if stock, ok := stocks[product.ID]; ok {
			merged = append(merged, Merge(product, &stock))
			continue
		}
		merged = append(merged, Merge(product, nil))
	}
	return merged
}
