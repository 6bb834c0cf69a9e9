package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
	productshttp "github.com/Apurer/catalog-gateway/internal/domains/products/adapters/http"
	productsmemory "github.com/Apurer/catalog-gateway/internal/domains/products/adapters/memory"
	productsobs "github.com/Apurer/catalog-gateway/internal/domains/products/adapters/observability"
	"github.com/Apurer/catalog-gateway/internal/domains/products/adapters/upstream/catalog"
	"github.com/Apurer/catalog-gateway/internal/domains/products/adapters/upstream/stock"
	productsapp "github.com/Apurer/catalog-gateway/internal/domains/products/application"
	"github.com/Apurer/catalog-gateway/internal/platform/cache"
	"github.com/Apurer/catalog-gateway/internal/platform/events"
	"github.com/Apurer/catalog-gateway/internal/platform/metrics"
	platformobservability "github.com/Apurer/catalog-gateway/internal/platform/observability"
)

const serviceName = "catalog-gateway"

// Run boots the gateway HTTP API and blocks until ctx is cancelled or the server fails.
func Run(ctx context.Context, cfg Config) error {
	instruments, shutdown, err := platformobservability.Init(ctx, platformobservability.Settings{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
		TraceExporter:  cfg.TraceExporter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger
	registry := metrics.NewRegistry()

	g, ctx := errgroup.WithContext(ctx)

	publisher, err := buildPublisher(ctx, g, cfg, logger)
	if err != nil {
		return err
	}
	upstreams, err := buildUpstreams(cfg, logger,
		resilient.WithRecorder(registry),
		resilient.WithTransitionListener(publisher.Publish),
	)
	if err != nil {
		return err
	}

	aggregationCache := cache.New[any](cfg.CacheTTL)
	idempotency := productsmemory.NewIdempotencyStore(cfg.IdempotencyTTL)
	g.Go(func() error {
		aggregationCache.Run(ctx, cfg.SweepInterval)
		return nil
	})
	g.Go(func() error {
		idempotency.Run(ctx, cfg.SweepInterval)
		return nil
	})

	core := productsapp.NewService(upstreams.catalog, upstreams.stock, aggregationCache,
		productsapp.WithLogger(logger),
		productsapp.WithCacheRecorder(registry),
	)
	service := productsobs.New(core,
		productsobs.WithLogger(logger),
		productsobs.WithTracer(instruments.Tracer("internal.products.application")),
		productsobs.WithMeter(instruments.Meter("internal.products.application")),
	)

	products := productshttp.NewProductAPI(service, idempotency,
		productshttp.WithLogger(logger),
		productshttp.WithDuplicateRecorder(registry),
	)
	health := productshttp.NewHealthAPI(service, cfg.Version)
	router := productshttp.NewRouter(productshttp.Routes(products, health),
		otelgin.Middleware(serviceName),
		productshttp.RequestLogger(logger),
	)
	router.GET("/metrics", gin.WrapH(registry.Handler()))

	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		logger.Info("catalog gateway listening",
			slog.String("addr", server.Addr),
			slog.String("catalog", cfg.CatalogBaseURL),
			slog.String("stock", cfg.StockBaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("catalog gateway server exited", slog.String("addr", server.Addr), slog.String("error", err.Error()))
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down catalog gateway")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Probe runs one health check against every upstream and reports the results.
func Probe(ctx context.Context, cfg Config, logger *slog.Logger) (map[string]bool, error) {
	upstreams, err := buildUpstreams(cfg, logger)
	if err != nil {
		return nil, err
	}
	service := productsapp.NewService(upstreams.catalog, upstreams.stock, cache.New[any](cfg.CacheTTL),
		productsapp.WithLogger(logger),
	)
	return service.CheckUpstreams(ctx), nil
}

type upstreamSet struct {
	catalog *catalog.Client
	stock   *stock.Client
}

func buildUpstreams(cfg Config, logger *slog.Logger, opts ...resilient.Option) (upstreamSet, error) {
	opts = append(opts, resilient.WithLogger(logger))
	catalogRemote, err := resilient.New(cfg.Upstream(productsapp.CatalogUpstream, cfg.CatalogBaseURL), opts...)
	if err != nil {
		return upstreamSet{}, fmt.Errorf("build catalog client: %w", err)
	}
	stockRemote, err := resilient.New(cfg.Upstream(productsapp.StockUpstream, cfg.StockBaseURL), opts...)
	if err != nil {
		return upstreamSet{}, fmt.Errorf("build stock client: %w", err)
	}
	catalogClient, err := catalog.NewClient(catalogRemote)
	if err != nil {
		return upstreamSet{}, err
	}
	stockClient, err := stock.NewClient(stockRemote, stock.WithLogger(logger))
	if err != nil {
		return upstreamSet{}, err
	}
	return upstreamSet{catalog: catalogClient, stock: stockClient}, nil
}

// buildPublisher always logs breaker transitions and also ships them to Kafka when brokers are set.
func buildPublisher(ctx context.Context, g *errgroup.Group, cfg Config, logger *slog.Logger) (events.Publisher, error) {
	logPublisher := events.NewLogPublisher(logger)
	if strings.TrimSpace(cfg.KafkaBrokers) == "" {
		logger.Info("GATEWAY_KAFKA_BROKERS not set, circuit events are logged only")
		return logPublisher, nil
	}
	kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, events.WithKafkaLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build kafka publisher: %w", err)
	}
	g.Go(func() error {
		defer kafka.Close()
		if err := kafka.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, events.ErrClosed) {
			return err
		}
		return nil
	})
	logger.Info("circuit events published to kafka", slog.String("topic", cfg.KafkaTopic))
	return events.NewMultiPublisher(logPublisher, kafka), nil
}
