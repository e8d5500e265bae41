package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/checkout"
	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/gateway"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/storage"
	"github.com/joao-fontenele/storefront/internal/storage/memory"
	"github.com/joao-fontenele/storefront/internal/storage/postgres"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

const (
	serviceName    = "storefront"
	serviceVersion = "1.0.0"
)

type backend interface {
	storage.Store
	storage.OrderReader
	storage.CartStore
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to init tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to init meter provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err, "storage", cfg.Storage)
		os.Exit(1)
	}
	defer closeStore()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	var publisher checkout.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		defer func() { _ = producer.Close() }()
		publisher = messaging.NewBreakerPublisher(producer, messaging.DefaultBreakerSettings(cfg.OrderEventsTopic), logger)
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events will not be published")
	}

	checkoutService, err := checkout.NewService(store, publisher, logger)
	if err != nil {
		logger.Error("failed to create checkout service", "error", err)
		os.Exit(1)
	}

	router := gateway.NewRouter(gateway.Dependencies{
		Checkout: checkout.NewHandler(checkoutService, cfg.CheckoutTimeout, logger),
		Orders:   orders.NewHandler(orders.NewService(store), logger),
		Cart:     cart.NewHandler(store, logger),
		Sessions: auth.NewRedisResolver(redisClient),
		Store:    store,
		Metrics:  metricsHandler,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.CheckoutTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting storefront", "port", cfg.Port, "storage", cfg.Storage)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend, func(), error) {
	if cfg.Storage == config.StorageMemory {
		store := memory.New()
		seedCatalog(store)
		logger.Warn("using in-memory storage, data is lost on restart")
		return store, func() {}, nil
	}

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL, telemetry.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxOpenConns / 2,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return postgres.New(db), func() { _ = db.Close() }, nil
}
