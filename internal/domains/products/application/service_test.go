package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
	"github.com/Apurer/catalog-gateway/internal/platform/cache"
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
	err      error
	healthy  bool
	calls    map[string]int
	lastKey  string
}

func newFakeCatalog(products ...domain.Product) *fakeCatalog {
	c := &fakeCatalog{products: map[string]domain.Product{}, calls: map[string]int{}, healthy: true}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) record(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	return c.err
}

func (c *fakeCatalog) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *fakeCatalog) List(context.Context) ([]domain.Product, error) {
	if err := c.record("list"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	return out, nil
}

func (c *fakeCatalog) Get(_ context.Context, id string) (*domain.Product, error) {
	if err := c.record("get"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *fakeCatalog) Create(_ context.Context, input domain.ProductInput, key string) (*domain.Product, error) {
	if err := c.record("create"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastKey = key
	p := domain.Product{ID: "new", Name: input.Name, Price: *input.Price, Status: domain.StatusActive}
	c.products[p.ID] = p
	return &p, nil
}

func (c *fakeCatalog) Update(_ context.Context, id string, input domain.ProductInput, key string) (*domain.Product, error) {
	if err := c.record("update"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastKey = key
	p := c.products[id]
	p.ID = input.ID
	if input.Name != "" {
		p.Name = input.Name
	}
	c.products[id] = p
	return &p, nil
}

func (c *fakeCatalog) Delete(_ context.Context, id string) (bool, error) {
	if err := c.record("delete"); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[id]; !ok {
		return false, nil
	}
	delete(c.products, id)
	return true, nil
}

func (c *fakeCatalog) Probe(context.Context) bool { return c.healthy }

type fakeStock struct {
	mu      sync.Mutex
	records map[string]domain.Stock
	getErr  error
	healthy bool
	calls   map[string]int
}

func newFakeStock(records ...domain.Stock) *fakeStock {
	s := &fakeStock{records: map[string]domain.Stock{}, calls: map[string]int{}}
	for _, r := range records {
		s.records[r.ProductID] = r
	}
	return s
}

func (s *fakeStock) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *fakeStock) Get(_ context.Context, id string) (*domain.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["get"]++
	if s.getErr != nil {
		return nil, s.getErr
	}
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *fakeStock) GetBulk(_ context.Context, ids []string) (map[string]domain.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]domain.Stock{}
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (s *fakeStock) GetAll(context.Context) (map[string]domain.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["all"]++
	out := make(map[string]domain.Stock, len(s.records))
	for id, r := range s.records {
		out[id] = r
	}
	return out, nil
}

func (s *fakeStock) Probe(context.Context) bool { return s.healthy }

type countingRecorder struct {
	mu      sync.Mutex
	lookups map[string]int
}

func (r *countingRecorder) ObserveCacheLookup(key string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookups == nil {
		r.lookups = map[string]int{}
	}
	label := key + ":miss"
	if hit {
		label = key + ":hit"
	}
	r.lookups[label]++
}

func widget() domain.Product {
	return domain.Product{ID: "1", Name: "Widget", Price: decimal.RequireFromString("19.99"), Status: domain.StatusActive}
}

func newTestService(catalog *fakeCatalog, stock *fakeStock, opts ...Option) (*Service, *cache.Store[any]) {
	store := cache.New[any](30 * time.Second)
	return NewService(catalog, stock, store, opts...), store
}

func TestListAll_EmptyUpstreams(t *testing.T) {
	svc, _ := newTestService(newFakeCatalog(), newFakeStock())

	products, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, products)
	require.Empty(t, products)
}

func TestListAll_MergesStock(t *testing.T) {
	gadget := domain.Product{ID: "2", Name: "Gadget"}
	svc, _ := newTestService(
		newFakeCatalog(widget(), gadget),
		newFakeStock(domain.Stock{ProductID: "1", Quantity: 15, Location: "A1"}),
	)

	products, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	byID := map[string]domain.AggregatedProduct{}
	for _, p := range products {
		byID[p.ID] = p
	}
	require.Equal(t, 15, byID["1"].Stock)
	require.True(t, byID["1"].InStock)
	require.Equal(t, "A1", byID["1"].StockLocation)
	require.Zero(t, byID["2"].Stock)
	require.False(t, byID["2"].InStock)
}

func TestListAll_CachesResult(t *testing.T) {
	catalog, stock := newFakeCatalog(widget()), newFakeStock()
	recorder := &countingRecorder{}
	svc, _ := newTestService(catalog, stock, WithCacheRecorder(recorder))

	_, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	_, err = svc.ListAll(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, catalog.count("list"))
	require.Equal(t, 1, stock.count("all"))
	require.Equal(t, 1, recorder.lookups["products:all:miss"])
	require.Equal(t, 1, recorder.lookups["products:all:hit"])
}

func TestListAll_CatalogFailureIsWrapped(t *testing.T) {
	catalog := newFakeCatalog()
	cause := errors.New("connection refused")
	catalog.err = cause
	svc, store := newTestService(catalog, newFakeStock())

	products, err := svc.ListAll(context.Background())
	require.Nil(t, products)
	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "failed to fetch products")
	require.Zero(t, store.Len())
}

func TestGetByID_MergesStock(t *testing.T) {
	svc, _ := newTestService(newFakeCatalog(widget()), newFakeStock(domain.Stock{ProductID: "1", Quantity: 15}))

	product, err := svc.GetByID(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, product)
	require.Equal(t, 15, product.Stock)
	require.True(t, product.InStock)
}

func TestGetByID_NotFoundIsNotCached(t *testing.T) {
	catalog := newFakeCatalog()
	svc, store := newTestService(catalog, newFakeStock())

	product, err := svc.GetByID(context.Background(), "999")
	require.NoError(t, err)
	require.Nil(t, product)
	require.Zero(t, store.Len())

	_, err = svc.GetByID(context.Background(), "999")
	require.NoError(t, err)
	require.Equal(t, 2, catalog.count("get"))
}

func TestGetByID_StockFailureDegrades(t *testing.T) {
	stock := newFakeStock(domain.Stock{ProductID: "1", Quantity: 15})
	stock.getErr = resilient.ErrCircuitOpen
	svc, _ := newTestService(newFakeCatalog(widget()), stock)

	product, err := svc.GetByID(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, product)
	require.Zero(t, product.Stock)
	require.False(t, product.InStock)
	require.Nil(t, product.StockLastUpdated)
}

func TestGetByID_CatalogFailureIsWrapped(t *testing.T) {
	catalog := newFakeCatalog(widget())
	catalog.err = resilient.ErrCircuitOpen
	svc, _ := newTestService(catalog, newFakeStock())

	_, err := svc.GetByID(context.Background(), "42")
	require.EqualError(t, err, "failed to fetch product 42")
	require.ErrorIs(t, err, resilient.ErrCircuitOpen)

	var aggErr *AggregationError
	require.ErrorAs(t, err, &aggErr)
	require.Equal(t, "42", aggErr.ID)
}

func TestGetByID_CachedCopyIsIsolated(t *testing.T) {
	catalog := newFakeCatalog(widget())
	svc, _ := newTestService(catalog, newFakeStock())

	first, err := svc.GetByID(context.Background(), "1")
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := svc.GetByID(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "Widget", second.Name)
	require.Equal(t, 1, catalog.count("get"))
}

func TestUpdate_InvalidatesCache(t *testing.T) {
	catalog := newFakeCatalog(widget())
	stock := newFakeStock(domain.Stock{ProductID: "1", Quantity: 15})
	svc, _ := newTestService(catalog, stock)
	ctx := context.Background()

	_, err := svc.GetByID(ctx, "1")
	require.NoError(t, err)
	_, err = svc.ListAll(ctx)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "1", domain.ProductInput{Name: "Widget v2"}, "key")
	require.NoError(t, err)
	require.Equal(t, "1", updated.ID)
	require.Equal(t, "key", catalog.lastKey)

	product, err := svc.GetByID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "Widget v2", product.Name)
	require.Equal(t, 2, catalog.count("get"))
	require.Equal(t, 2, stock.count("get"))

	_, err = svc.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, catalog.count("list"))
}

func TestUpdate_RejectsNegativePrice(t *testing.T) {
	catalog := newFakeCatalog(widget())
	svc, _ := newTestService(catalog, newFakeStock())
	price := decimal.NewFromInt(-1)

	_, err := svc.Update(context.Background(), "1", domain.ProductInput{Price: &price}, "key")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, err, domain.ErrNegativePrice)
	require.Zero(t, catalog.count("update"))
}

func TestCreate_InvalidatesList(t *testing.T) {
	catalog := newFakeCatalog()
	svc, store := newTestService(catalog, newFakeStock())
	ctx := context.Background()

	_, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	price := decimal.RequireFromString("5")
	created, err := svc.Create(ctx, domain.ProductInput{Name: "Gizmo", Price: &price}, "key-1")
	require.NoError(t, err)
	require.Equal(t, "Gizmo", created.Name)
	require.Zero(t, store.Len())

	products, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
}

func TestCreate_ValidatesInput(t *testing.T) {
	catalog := newFakeCatalog()
	svc, _ := newTestService(catalog, newFakeStock())

	_, err := svc.Create(context.Background(), domain.ProductInput{}, "key")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Zero(t, catalog.count("create"))
}

func TestCreate_UpstreamFailureKeepsCache(t *testing.T) {
	catalog := newFakeCatalog()
	svc, store := newTestService(catalog, newFakeStock())
	ctx := context.Background()
	_, err := svc.ListAll(ctx)
	require.NoError(t, err)

	catalog.err = errors.New("boom")
	price := decimal.RequireFromString("5")
	_, err = svc.Create(ctx, domain.ProductInput{Name: "Gizmo", Price: &price}, "key")
	require.EqualError(t, err, "failed to create product")
	require.Equal(t, 1, store.Len())
}

func TestDelete_InvalidatesOnlyWhenDeleted(t *testing.T) {
	catalog := newFakeCatalog(widget())
	svc, store := newTestService(catalog, newFakeStock())
	ctx := context.Background()

	_, err := svc.GetByID(ctx, "1")
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, "missing")
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, 1, store.Len())

	deleted, err = svc.Delete(ctx, "1")
	require.NoError(t, err)
	require.True(t, deleted)
	require.Zero(t, store.Len())
}

func TestDelete_FailureIsWrapped(t *testing.T) {
	catalog := newFakeCatalog(widget())
	catalog.err = errors.New("boom")
	svc, _ := newTestService(catalog, newFakeStock())

	_, err := svc.Delete(context.Background(), "1")
	require.EqualError(t, err, "failed to delete product 1")
	require.ErrorIs(t, err, ErrUpstream)
}

func TestCheckUpstreams(t *testing.T) {
	catalog := newFakeCatalog()
	stock := newFakeStock()
	stock.healthy = false
	svc, _ := newTestService(catalog, stock)

	require.Equal(t, map[string]bool{"catalog": true, "stock": false}, svc.CheckUpstreams(context.Background()))
}
