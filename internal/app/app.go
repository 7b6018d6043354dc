package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-cart/internal/basket"
	"github.com/utafrali/storefront-cart/internal/basket/httpapi"
	"github.com/utafrali/storefront-cart/internal/config"
	"github.com/utafrali/storefront-cart/internal/event"
	handler "github.com/utafrali/storefront-cart/internal/handler/http"
	"github.com/utafrali/storefront-cart/internal/productdata"
	redisdata "github.com/utafrali/storefront-cart/internal/productdata/redis"
	"github.com/utafrali/storefront-cart/internal/session"
	"github.com/utafrali/storefront-cart/pkg/database"
	"github.com/utafrali/storefront-cart/pkg/health"
	"github.com/utafrali/storefront-cart/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront-cart/pkg/kafka"
	"github.com/utafrali/storefront-cart/pkg/middleware"
	"github.com/utafrali/storefront-cart/pkg/tracing"
)

const sweepInterval = time.Minute

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	registry       *session.Registry
	httpServer     *http.Server
	tracerShutdown tracing.Shutdown
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "storefront-cart",
		ServiceVersion: cfg.OTELServiceBuild,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	// Initialize the Redis product data cache.
	var (
		rdb   *redis.Client
		cache productdata.Cache
	)
	if cfg.RedisAddr != "" {
		rdb, err = database.NewRedisClient(ctx, database.RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPass,
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		database.SetSlowCommandLogging(cfg.RedisSlowCommand(), logger)
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		cache = redisdata.NewCache(rdb, cfg.ProductDataTTL())
		healthHandler.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		logger.Info("product data cache disabled")
	}

	sessionOpts := []session.Option{
		session.WithDebounce(cfg.Debounce()),
		session.WithScope(cfg.Scope()),
		session.WithEnricher(productdata.NewEnricher(cache, logger)),
		session.WithLogger(logger),
	}

	// Initialize Kafka producer.
	var producer *pkgkafka.Producer
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		sessionOpts = append(sessionOpts, session.WithNotifier(event.NewProducer(producer, logger)))
		healthHandler.Register("kafka", producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Basket API clients share one pooled HTTP client and circuit breaker;
	// each session stamps its own basket token.
	doer := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{
			Timeout:         cfg.BasketTimeout(),
			MaxConnsPerHost: httpclient.DefaultConfig().MaxConnsPerHost,
			UserAgent:       httpclient.DefaultConfig().UserAgent,
		}),
		httpclient.DefaultCircuitBreakerConfig("basket-api"),
		logger,
	)
	newAPI := func(token string) basket.API {
		return httpapi.NewClient(cfg.BasketAPIURL, httpapi.WithToken(doer, token), logger)
	}

	registry := session.NewRegistry(newAPI, cfg.SessionIdleTTL(), logger, sessionOpts...)

	// HTTP router.
	router := handler.NewRouter(registry, healthHandler, logger, handler.RouterConfig{
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		CreateLimit: middleware.RateLimitConfig{
			RPS:   cfg.CreateRateRPS,
			Burst: cfg.CreateRateBurst,
		},
	})

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Quantity changes hold the response until the debounced commit lands.
		WriteTimeout: handler.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		registry:       registry,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the idle session sweeper, and blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.registry.Run(ctx, sweepInterval)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.Duration("debounce", a.cfg.Debounce()),
			slog.String("debounce_scope", a.cfg.Scope().String()),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Release anyone still waiting on a debounced commit.
	a.registry.CloseAll()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
