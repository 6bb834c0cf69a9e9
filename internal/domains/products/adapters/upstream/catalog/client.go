// Package catalog adapts the product master-data upstream to ports.Catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
	"github.com/Apurer/catalog-gateway/internal/domains/products/adapters/upstream/payload"
	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
	"github.com/Apurer/catalog-gateway/internal/domains/products/ports"
)

const (
	productsPath         = "/products"
	idempotencyKeyHeader = "Idempotency-Key"
)

var _ ports.Catalog = (*Client)(nil)

// Caller is the subset of resilient.Client the adapter needs.
type Caller interface {
	Call(ctx context.Context, req resilient.Request) (*resilient.Response, error)
	Probe(ctx context.Context) bool
}

// Client talks to the catalog upstream through a resilient caller.
type Client struct {
	remote Caller
	now    func() time.Time
}

// Option configures the adapter.
type Option func(*Client)

// WithClock overrides the clock used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient wires the adapter over remote.
func NewClient(remote Caller, opts ...Option) (*Client, error) {
	if remote == nil {
		return nil, errors.New("catalog remote client is required")
	}
	c := &Client{remote: remote, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) List(ctx context.Context) ([]domain.Product, error) {
	resp, err := c.remote.Call(ctx, resilient.Request{Method: http.MethodGet, Path: productsPath})
	if err != nil {
		return nil, fmt.Errorf("list catalog products: %w", err)
	}
	return decodeProducts(resp, c.now)
}

func (c *Client) Get(ctx context.Context, id string) (*domain.Product, error) {
	path, err := payload.Path(productsPath, "id", id)
	if err != nil {
		return nil, fmt.Errorf("encode product id: %w", err)
	}
	resp, err := c.remote.Call(ctx, resilient.Request{Method: http.MethodGet, Path: path})
	if resilient.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog product %s: %w", id, err)
	}
	return decodeProduct(resp, c.now)
}

func (c *Client) Create(ctx context.Context, input domain.ProductInput, idempotencyKey string) (*domain.Product, error) {
	resp, err := c.remote.Call(ctx, resilient.Request{
		Method: http.MethodPost,
		Path:   productsPath,
		Body:   toRequest(input),
		Header: keyHeader(idempotencyKey),
	})
	if err != nil {
		return nil, fmt.Errorf("create catalog product: %w", err)
	}
	return decodeProduct(resp, c.now)
}

func (c *Client) Update(ctx context.Context, id string, input domain.ProductInput, idempotencyKey string) (*domain.Product, error) {
	path, err := payload.Path(productsPath, "id", id)
	if err != nil {
		return nil, fmt.Errorf("encode product id: %w", err)
	}
	resp, err := c.remote.Call(ctx, resilient.Request{
		Method: http.MethodPut,
		Path:   path,
		Body:   toRequest(input),
		Header: keyHeader(idempotencyKey),
	})
	if err != nil {
		return nil, fmt.Errorf("update catalog product %s: %w", id, err)
	}
	return decodeProduct(resp, c.now)
}

func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	path, err := payload.Path(productsPath, "id", id)
	if err != nil {
		return false, fmt.Errorf("encode product id: %w", err)
	}
	_, err = c.remote.Call(ctx, resilient.Request{Method: http.MethodDelete, Path: path})
	if resilient.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete catalog product %s: %w", id, err)
	}
	return true, nil
}

func (c *Client) Probe(ctx context.Context) bool {
	return c.remote.Probe(ctx)
}

func keyHeader(key string) http.Header {
	header := http.Header{}
	if key = strings.TrimSpace(key); key != "" {
		header.Set(idempotencyKeyHeader, key)
	}
	return header
}
