//go:build pact
// +build pact

package pacttest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const (
	ConsumerName        = "catalog-gateway"
	CatalogProviderName = "catalog-service"
	StockProviderName   = "stock-service"

	StateCatalogBaseline = "catalog has products"
	StateProductExists   = "product p-101 exists"
	StateProductMissing  = "no product with id p-404"
	StateStockBaseline   = "stock records exist"
	StateStockExists     = "stock for product p-101 exists"
	StateStockMissing    = "no stock for product p-404"
)

const (
	ExistingProductID = "p-101"
	MissingProductID  = "p-404"
	IdempotencyKey    = "pact-key-1"
)

const (
	exampleName      = "Pact Widget"
	exampleTimestamp = "2024-06-12T10:00:00Z"
)

// PactDir returns the workspace-level directory for generated pact files.
func PactDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "pacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact dir: %v", err)
	}
	return dir
}

// PactFile returns the canonical pact file path between the gateway and provider.
func PactFile(t testing.TB, provider string) string {
	t.Helper()
	return filepath.Join(PactDir(t), ConsumerName+"-"+provider+".json")
}

// LogDir returns the log output directory for pact-go.
func LogDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "bin", "pact-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact log dir: %v", err)
	}
	return dir
}

// ExampleProductPayload is a catalog product as the catalog service returns it.
func ExampleProductPayload() map[string]any {
	return map[string]any{
		"id":           ExistingProductID,
		"name":         exampleName,
		"description":  "Contract test product",
		"price":        19.99,
		"category":     "tools",
		"sku":          "PW-101",
		"manufacturer": "Pact Industries",
		"status":       "active",
		"createdAt":    exampleTimestamp,
		"updatedAt":    exampleTimestamp,
	}
}

// ExampleStockPayload is a stock record as the stock service returns it.
func ExampleStockPayload() map[string]any {
	return map[string]any{
		"productId":   ExistingProductID,
		"quantity":    42,
		"location":    "warehouse-a",
		"lastUpdated": exampleTimestamp,
		"status":      "in_stock",
	}
}

// projectRoot walks up from this file to the workspace root.
func projectRoot(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine caller for pact paths")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
