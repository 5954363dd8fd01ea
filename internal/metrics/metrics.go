package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jogardn/craft-storefront/internal/circuitbreaker"
	"github.com/jogardn/craft-storefront/internal/docstore"
)

type Registry struct {
	reg *prometheus.Registry

	StoreCalls    *prometheus.CounterVec
	StoreLatency  *prometheus.HistogramVec
	ReadFallbacks *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec

	OrdersPlaced     prometheus.Counter
	CheckoutFailures *prometheus.CounterVec
	StatusChanges    *prometheus.CounterVec
	EventsConsumed   *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	storeCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_docstore_calls_total",
		Help: "Document store calls by operation, collection and result.",
	}, []string{"operation", "collection", "result"})
	storeLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_docstore_latency_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_read_fallbacks_total",
		Help: "Reads that failed and were served as empty results.",
	}, []string{"source"})
	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_circuit_breaker_state",
		Help: "0 closed, 1 open, 2 half-open.",
	}, []string{"name"})

	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_orders_placed_total"})
	checkoutFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_failures_total",
	}, []string{"reason"})
	statusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_status_changes_total",
	}, []string{"status"})
	eventsConsumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_events_consumed_total",
	}, []string{"topic", "outcome"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_http_requests_total",
	}, []string{"method", "route", "code"})
	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	r.MustRegister(storeCalls, storeLatency, fallbacks, breakerState,
		ordersPlaced, checkoutFailures, statusChanges, eventsConsumed,
		httpRequests, httpLatency)

	return &Registry{
		reg:              r,
		StoreCalls:       storeCalls,
		StoreLatency:     storeLatency,
		ReadFallbacks:    fallbacks,
		BreakerState:     breakerState,
		OrdersPlaced:     ordersPlaced,
		CheckoutFailures: checkoutFailures,
		StatusChanges:    statusChanges,
		EventsConsumed:   eventsConsumed,
		HTTPRequests:     httpRequests,
		HTTPLatency:      httpLatency,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) ObserveStoreCall(operation, collection string, duration time.Duration, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, docstore.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	r.StoreCalls.WithLabelValues(operation, collection, result).Inc()
	r.StoreLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *Registry) ReadFallback(source string) {
	r.ReadFallbacks.WithLabelValues(source).Inc()
}

// BreakerStateChanged matches circuitbreaker.Config.OnStateChange.
func (r *Registry) BreakerStateChanged(name string, from, to circuitbreaker.State) {
	r.BreakerState.WithLabelValues(name).Set(float64(to))
}

func (r *Registry) OrderPlaced() { r.OrdersPlaced.Inc() }

func (r *Registry) CheckoutFailed(reason string) {
	r.CheckoutFailures.WithLabelValues(reason).Inc()
}

func (r *Registry) OrderStatusChanged(status string) {
	r.StatusChanges.WithLabelValues(status).Inc()
}

func (r *Registry) ObserveEvent(topic, outcome string) {
	r.EventsConsumed.WithLabelValues(topic, outcome).Inc()
}

func (r *Registry) ObserveRequest(method, route string, code int, duration time.Duration) {
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.HTTPLatency.WithLabelValues(route).Observe(duration.Seconds())
}
