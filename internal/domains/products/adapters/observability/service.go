package observability

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
	"github.com/Apurer/catalog-gateway/internal/domains/products/ports"
)

const tracerName = "github.com/Apurer/catalog-gateway/internal/domains/products/adapters/observability/service"

// Service decorates the product aggregation port with tracing, logging, and metrics.
type Service struct {
	inner   ports.Service
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer injects a tracer implementation.
func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

// WithMeter injects the meter used to create service metrics instruments.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.metrics = newServiceMetrics(m)
	}
}

// New wires a decorator around the core service.
func New(inner ports.Service, opts ...Option) ports.Service {
	s := &Service{
		inner:   inner,
		tracer:  nooptrace.NewTracerProvider().Tracer(tracerName),
		logger:  defaultLogger(),
		metrics: newServiceMetrics(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}
	return s
}

func (s *Service) ListAll(ctx context.Context) ([]domain.AggregatedProduct, error) {
	ctx, span := s.startSpan(ctx, "Service.ListAll")
	defer span.End()

	result, err := s.inner.ListAll(ctx)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to list products")
	}
	span.SetAttributes(attribute.Int("product.result.count", len(result)))
	s.logDebug(ctx, "listed products", slog.Int("count", len(result)))
	return result, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.AggregatedProduct, error) {
	ctx, span := s.startSpan(ctx, "Service.GetByID", attribute.String("product.id", id))
	defer span.End()

	result, err := s.inner.GetByID(ctx, id)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to get product", slog.String("product.id", id))
	}
	span.SetAttributes(attribute.Bool("product.found", result != nil))
	if result != nil {
		span.SetAttributes(attribute.Int("product.stock", result.Stock))
	}
	return result, nil
}

// Create adds a product upstream with instrumentation.
func (s *Service) Create(ctx context.Context, input domain.ProductInput, idempotencyKey string) (*domain.Product, error) {
	ctx, span := s.startSpan(ctx, "Service.Create", attribute.String("product.name", input.Name))
	defer span.End()

	s.logInfo(ctx, "creating product", slog.String("product.name", input.Name))
	result, err := s.inner.Create(ctx, input, idempotencyKey)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to create product", slog.String("product.name", input.Name))
	}
	if result != nil {
		s.metrics.recordCreated(ctx, result.Status)
		span.SetAttributes(attribute.String("product.id", result.ID))
		s.logInfo(ctx, "product created", slog.String("product.id", result.ID), slog.String("status", string(result.Status)))
	}
	return result, nil
}

func (s *Service) Update(ctx context.Context, id string, input domain.ProductInput, idempotencyKey string) (*domain.Product, error) {
	ctx, span := s.startSpan(ctx, "Service.Update", attribute.String("product.id", id))
	defer span.End()

	s.logInfo(ctx, "updating product", slog.String("product.id", id))
	result, err := s.inner.Update(ctx, id, input, idempotencyKey)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to update product", slog.String("product.id", id))
	}
	if result != nil {
		s.metrics.recordUpdated(ctx, result.Status)
		s.logInfo(ctx, "product updated", slog.String("product.id", id), slog.String("status", string(result.Status)))
	}
	return result, nil
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := s.startSpan(ctx, "Service.Delete", attribute.String("product.id", id))
	defer span.End()

	s.logInfo(ctx, "deleting product", slog.String("product.id", id))
	deleted, err := s.inner.Delete(ctx, id)
	if err != nil {
		return false, s.handleError(ctx, span, err, "failed to delete product", slog.String("product.id", id))
	}
	span.SetAttributes(attribute.Bool("product.deleted", deleted))
	if deleted {
		s.metrics.recordDeleted(ctx)
		s.logInfo(ctx, "product deleted", slog.String("product.id", id))
	}
	return deleted, nil
}

// CheckUpstreams probes the upstreams and flags the span when any is down.
func (s *Service) CheckUpstreams(ctx context.Context) map[string]bool {
	ctx, span := s.startSpan(ctx, "Service.CheckUpstreams")
	defer span.End()

	result := s.inner.CheckUpstreams(ctx)
	for name, healthy := range result {
		span.SetAttributes(attribute.Bool("upstream."+name+".healthy", healthy))
		if !healthy {
			span.SetStatus(codes.Error, "upstream unhealthy")
			s.logger.LogAttrs(ctx, slog.LevelWarn, "upstream unhealthy", slog.String("upstream", name))
		}
	}
	return result
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) logInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (s *Service) logDebug(ctx context.Context, msg string, attrs ...slog.Attr) {
	s.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}

func (s *Service) handleError(ctx context.Context, span trace.Span, err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	attrs = append(attrs, slog.String("error", err.Error()))
	s.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
	return err
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serviceMetrics struct {
	productsCreated metric.Int64Counter
	productsUpdated metric.Int64Counter
	productsDeleted metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	created, _ := m.Int64Counter("products.service.created", metric.WithDescription("Number of products created"))
	updated, _ := m.Int64Counter("products.service.updated", metric.WithDescription("Number of products updated"))
	deleted, _ := m.Int64Counter("products.service.deleted", metric.WithDescription("Number of products deleted"))
	return serviceMetrics{
		productsCreated: created,
		productsUpdated: updated,
		productsDeleted: deleted,
	}
}

func (m serviceMetrics) recordCreated(ctx context.Context, status domain.Status) {
	addCounter(ctx, m.productsCreated, 1, attribute.String("product.status", string(status)))
}

func (m serviceMetrics) recordUpdated(ctx context.Context, status domain.Status) {
	addCounter(ctx, m.productsUpdated, 1, attribute.String("product.status", string(status)))
}

func (m serviceMetrics) recordDeleted(ctx context.Context) {
	addCounter(ctx, m.productsDeleted, 1)
}

func addCounter(ctx context.Context, counter metric.Int64Counter, value int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

var _ ports.Service = (*Service)(nil)
