package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/auth"
	"github.com/jogardn/craft-storefront/internal/cart"
	"github.com/jogardn/craft-storefront/internal/catalog"
	"github.com/jogardn/craft-storefront/internal/checkout"
	"github.com/jogardn/craft-storefront/internal/circuitbreaker"
	"github.com/jogardn/craft-storefront/internal/config"
	"github.com/jogardn/craft-storefront/internal/content"
	"github.com/jogardn/craft-storefront/internal/delivery"
	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/internal/events"
	"github.com/jogardn/craft-storefront/internal/httpapi"
	"github.com/jogardn/craft-storefront/internal/metrics"
	"github.com/jogardn/craft-storefront/internal/orders"
	"github.com/jogardn/craft-storefront/internal/storage"
	"github.com/jogardn/craft-storefront/internal/websocket"
)

// guardStore is what checkout locking and admin sessions need from the
// shared key-value backend.
type guardStore interface {
	checkout.Guard
	auth.SessionStore
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()
	breakers := circuitbreaker.NewManager(logger)

	raw, ping, closeStore := openDocstore(ctx, cfg, logger)
	defer closeStore()
	docBreaker := breakers.GetOrCreate("docstore", circuitbreaker.Config{
		Name:          "docstore",
		MaxFailures:   cfg.BreakerMaxFailures,
		Timeout:       cfg.BreakerTimeout,
		MaxRequests:   1,
		IsFailure:     docstore.CountsAsFailure,
		OnStateChange: reg.BreakerStateChanged,
	})
	docs := docstore.NewGuarded(raw, docBreaker, reg)

	cartStore, err := cart.NewPebbleStore(cfg.CartDBPath)
	if err != nil {
		logger.WithError(err).WithField("path", cfg.CartDBPath).Fatal("Failed to open cart store")
	}
	defer cartStore.Close()

	guard := openGuardStore(ctx, cfg, logger)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.KafkaBrokers != "" {
		producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events will not be published")
	}

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	products := catalog.NewStore(docs, logger, reg)
	charges := delivery.NewStore(docs, logger, reg)
	orderService := orders.NewService(docs, publisher, logger,
		orders.WithFallbackRecorder(reg),
		orders.WithStatusRecorder(reg),
		orders.WithBroadcaster(hub),
	)

	if cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_EMAIL or ADMIN_PASSWORD_HASH not set, admin sign-in is disabled")
	}

	server := httpapi.NewServer(httpapi.Dependencies{
		Catalog:  products,
		Carts:    cart.NewManager(cartStore, logger),
		Delivery: charges,
		Gallery:  content.NewGallery(docs, logger, reg),
		Heroes:   content.NewHeroes(docs, logger, reg),
		Checkout: checkout.NewService(orderService, charges, guard, publisher, hub, reg,
			checkout.Config{LockTTL: cfg.CheckoutLockTTL}, logger),
		Orders:   orderService,
		Auth:     auth.NewAuthenticator(cfg.AdminEmail, cfg.AdminPasswordHash, guard, cfg.SessionTTL, logger),
		Hub:      hub,
		Breakers: breakers,
		Metrics:  reg,
		Ping:     ping,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":     cfg.HTTPPort,
			"docstore": cfg.DocstoreDriver,
		}).Info("Starting storefront")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	cancel()

	logger.Info("Server gracefully stopped")
}

func openDocstore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (docstore.Store, func(context.Context) error, func()) {
	if cfg.DocstoreDriver == "memory" {
		logger.Warn("Using in-memory document store, data is lost on restart")
		return docstore.NewMemoryStore(), nil, func() {}
	}

	dialect, err := docstore.DialectFor(cfg.DocstoreDriver)
	if err != nil {
		logger.WithError(err).Fatal("Unsupported document store")
	}
	store, err := docstore.OpenSQL(ctx, dialect, cfg.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	return store, store.Ping, closeQuietly(store, logger)
}

func openGuardStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) guardStore {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, checkout locks and sessions are kept in process")
		return storage.NewMemoryAdapter()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	adapter := storage.NewRedisAdapter(client)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := adapter.Ping(pingCtx); err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Fatal("Failed to connect to Redis")
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Redis connection established")
	return adapter
}

func closeQuietly(c io.Closer, logger *logrus.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close resource")
		}
	}
}
