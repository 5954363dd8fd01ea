package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/circuitbreaker"
	"github.com/jogardn/craft-storefront/internal/config"
	"github.com/jogardn/craft-storefront/internal/events"
	"github.com/jogardn/craft-storefront/internal/metrics"
	"github.com/jogardn/craft-storefront/internal/notify"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.KafkaBrokers == "" {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	reg := metrics.NewRegistry()
	breakers := circuitbreaker.NewManager(logger)

	var handler events.OrderEventHandler
	if cfg.NotifyWebhookURL != "" {
		breaker := breakers.GetOrCreate("webhook", circuitbreaker.Config{
			Name:          "webhook",
			MaxFailures:   cfg.BreakerMaxFailures,
			Timeout:       cfg.BreakerTimeout,
			MaxRequests:   1,
			IsFailure:     notify.CountsAsFailure,
			OnStateChange: reg.BreakerStateChanged,
		})
		handler = notify.NewWebhookClient(cfg.NotifyWebhookURL, breaker, logger)
	} else {
		logger.Warn("NOTIFY_WEBHOOK_URL not set, order events will only be logged")
		handler = notify.NewLogHandler(logger)
	}

	consumer, err := events.NewKafkaConsumer(cfg.KafkaBrokers, "order-notifier-group", handler,
		events.DefaultRetryPolicy, reg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Close()

	replayer, err := events.NewDLQReplayer(cfg.KafkaBrokers, cfg.DLQReplayDelay, cfg.DLQMaxReplays, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ replayer")
	}
	defer replayer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Order event consumer stopped")
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := replayer.Run(ctx); err != nil {
			logger.WithError(err).Error("DLQ replayer stopped")
			cancel()
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "order-notifier",
		})
	}).Methods("GET")
	router.HandleFunc("/breakers", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"breakers": breakers.Snapshots(),
		})
	}).Methods("GET")
	router.Handle("/metrics", reg.Handler()).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.WithField("port", cfg.HTTPPort).Info("Order notifier started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.Info("Shutting down order notifier...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
