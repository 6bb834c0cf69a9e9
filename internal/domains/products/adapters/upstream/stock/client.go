// Package stock adapts the warehouse upstream to ports.Stock.
package stock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
	"github.com/Apurer/catalog-gateway/internal/domains/products/adapters/upstream/payload"
	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
	"github.com/Apurer/catalog-gateway/internal/domains/products/ports"
)

const stockPath = "/stock"

var _ ports.Stock = (*Client)(nil)

// Caller is the subset of resilient.Client the adapter needs.
type Caller interface {
	Call(ctx context.Context, req resilient.Request) (*resilient.Response, error)
	Probe(ctx context.Context) bool
}

// Client talks to the warehouse upstream through a resilient caller.
type Client struct {
	remote Caller
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(remote Caller, opts ...Option) (*Client, error) {
	if remote == nil {
		return nil, errors.New("stock remote client is required")
	}
	c := &Client{
		remote: remote,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) Get(ctx context.Context, productID string) (*domain.Stock, error) {
	path, err := payload.Path(stockPath, "productId", productID)
	if err != nil {
		return nil, fmt.Errorf("encode product id: %w", err)
	}
	resp, err := c.remote.Call(ctx, resilient.Request{Method: http.MethodGet, Path: path})
	if resilient.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stock for %s: %w", productID, err)
	}
	return decodeStock(resp, c.now)
}

type bulkRequest struct {
	ProductIDs []string `json:"productIds"`
}

func (c *Client) GetBulk(ctx context.Context, productIDs []string) (map[string]domain.Stock, error) {
	if len(productIDs) == 0 {
		return map[string]domain.Stock{}, nil
	}
	resp, err := c.remote.Call(ctx, resilient.Request{
		Method: http.MethodPost,
		Path:   stockPath + "/bulk",
		Body:   bulkRequest{ProductIDs: productIDs},
	})
	if resilient.IsNotFound(err) {
		return map[string]domain.Stock{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bulk stock: %w", err)
	}
	return decodeStockMap(resp, c.now)
}

// GetAll never fails: the first upstream or decoding error yields an empty map
// without retrying, so a stock outage does not slow down listings.
func (c *Client) GetAll(ctx context.Context) (map[string]domain.Stock, error) {
	resp, err := c.remote.Call(ctx, resilient.Request{Method: http.MethodGet, Path: stockPath, MaxAttempts: 1})
	if err == nil {
		var stocks map[string]domain.Stock
		if stocks, err = decodeStockMap(resp, c.now); err == nil {
			return stocks, nil
		}
	}
	c.logger.ErrorContext(ctx, "failed to fetch all stock records", slog.String("error", err.Error()))
	return map[string]domain.Stock{}, nil
}

func (c *Client) Probe(ctx context.Context) bool {
	return c.remote.Probe(ctx)
}
