package application

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
	"github.com/Apurer/catalog-gateway/internal/domains/products/ports"
)

// Upstream names reported by CheckUpstreams.
const (
	CatalogUpstream = "catalog"
	StockUpstream   = "stock"
)

const (
	allProductsKey    = "products:all"
	productKeyPrefix  = "product:"
	productCacheLabel = "product"

	opFetchProducts = "fetch products"
	opFetchProduct  = "fetch product"
	opCreateProduct = "create product"
	opUpdateProduct = "update product"
	opDeleteProduct = "delete product"
)

var _ ports.Service = (*Service)(nil)

// CacheRecorder observes cache lookups.
type CacheRecorder interface {
	ObserveCacheLookup(key string, hit bool)
}

// Service aggregates catalog and stock data behind a read-through cache.
type Service struct {
	catalog  ports.Catalog
	stock    ports.Stock
	cache    ports.Cache
	logger   *slog.Logger
	recorder CacheRecorder
}

// Option configures the service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCacheRecorder(recorder CacheRecorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// NewService wires the aggregation service with its upstream ports and cache.
func NewService(catalog ports.Catalog, stock ports.Stock, cache ports.Cache, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		stock:   stock,
		cache:   cache,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ListAll returns every catalog product merged with its stock level.
func (s *Service) ListAll(ctx context.Context) ([]domain.AggregatedProduct, error) {
	if cached, ok := s.cachedList(); ok {
		return cached, nil
	}

	var (
		products []domain.Product
		stocks   map[string]domain.Stock
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.catalog.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stocks, err = s.stock.GetAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "failed to fetch all products", slog.String("error", err.Error()))
		return nil, wrap(opFetchProducts, "", err)
	}

	merged := domain.MergeAll(products, stocks)
	s.cache.Set(allProductsKey, merged)
	return cloneList(merged), nil
}

// GetByID returns the merged view of one product, or nil when the catalog does not know it.
// A failing stock lookup degrades to "no stock" instead of failing the request.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.AggregatedProduct, error) {
	key := productKeyPrefix + id
	if cached, ok := s.cachedProduct(key); ok {
		return cached, nil
	}

	var (
		product  *domain.Product
		stock    *domain.Stock
		stockErr error
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		stock, stockErr = s.stock.Get(ctx, id)
	}()
	product, err := s.catalog.Get(ctx, id)
	wg.Wait()

	if err != nil {
		s.logger.ErrorContext(ctx, "failed to fetch product", slog.String("id", id), slog.String("error", err.Error()))
		return nil, wrap(opFetchProduct, id, err)
	}
	if product == nil {
		return nil, nil
	}
	if stockErr != nil {
		s.logger.WarnContext(ctx, "stock lookup failed, serving product without stock",
			slog.String("id", id),
			slog.String("error", stockErr.Error()),
		)
		stock = nil
	}

	merged := domain.Merge(*product, stock)
	s.cache.Set(key, merged)
	return &merged, nil
}

func (s *Service) Create(ctx context.Context, input domain.ProductInput, idempotencyKey string) (*domain.Product, error) {
	if err := input.ValidateForCreate(); err != nil {
		return nil, mapError(err)
	}
	product, err := s.catalog.Create(ctx, input, idempotencyKey)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create product", slog.String("error", err.Error()))
		return nil, wrap(opCreateProduct, "", err)
	}
	s.cache.Delete(allProductsKey)
	return product, nil
}

func (s *Service) Update(ctx context.Context, id string, input domain.ProductInput, idempotencyKey string) (*domain.Product, error) {
	if err := input.ValidateForUpdate(); err != nil {
		return nil, mapError(err)
	}
	input.ID = id
	product, err := s.catalog.Update(ctx, id, input, idempotencyKey)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update product", slog.String("id", id), slog.String("error", err.Error()))
		return nil, wrap(opUpdateProduct, id, err)
	}
	s.invalidate(id)
	return product, nil
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.catalog.Delete(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete product", slog.String("id", id), slog.String("error", err.Error()))
		return false, wrap(opDeleteProduct, id, err)
	}
	if deleted {
		s.invalidate(id)
	}
	return deleted, nil
}

// CheckUpstreams probes both upstreams concurrently.
func (s *Service) CheckUpstreams(ctx context.Context) map[string]bool {
	var catalogOK, stockOK bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		catalogOK = s.catalog.Probe(ctx)
	}()
	go func() {
		defer wg.Done()
		stockOK = s.stock.Probe(ctx)
	}()
	wg.Wait()
	return map[string]bool{CatalogUpstream: catalogOK, StockUpstream: stockOK}
}

func (s *Service) invalidate(id string) {
	s.cache.Delete(allProductsKey)
	s.cache.Delete(productKeyPrefix + id)
}

func (s *Service) cachedList() ([]domain.AggregatedProduct, bool) {
	value, ok := s.cache.Get(allProductsKey)
	list, typed := value.([]domain.AggregatedProduct)
	hit := ok && typed
	s.observe(allProductsKey, hit)
	if !hit {
		return nil, false
	}
	return cloneList(list), true
}

func (s *Service) cachedProduct(key string) (*domain.AggregatedProduct, bool) {
	value, ok := s.cache.Get(key)
	product, typed := value.(domain.AggregatedProduct)
	hit := ok && typed
	s.observe(productCacheLabel, hit)
	if !hit {
		return nil, false
	}
	return &product, true
}

func (s *Service) observe(key string, hit bool) {
	if s.recorder != nil {
		s.recorder.ObserveCacheLookup(key, hit)
	}
}

func cloneList(list []domain.AggregatedProduct) []domain.AggregatedProduct {
	return append(make([]domain.AggregatedProduct, 0, len(list)), list...)
}
