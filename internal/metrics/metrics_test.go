package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/craft-storefront/internal/circuitbreaker"
	"github.com/jogardn/craft-storefront/internal/docstore"
)

func TestRegistry_StoreCallResults(t *testing.T) {
	r := NewRegistry()

	r.ObserveStoreCall("get", "products", time.Millisecond, nil)
	r.ObserveStoreCall("get", "products", time.Millisecond, docstore.ErrNotFound)
	r.ObserveStoreCall("get", "products", time.Millisecond, errors.New("boom"))
	r.ObserveStoreCall("get", "products", time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.StoreCalls.WithLabelValues("get", "products", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreCalls.WithLabelValues("get", "products", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreCalls.WithLabelValues("get", "products", "error")))
}

func TestRegistry_DomainCounters(t *testing.T) {
	r := NewRegistry()

	r.ReadFallback("products")
	r.OrderPlaced()
	r.CheckoutFailed("validation")
	r.OrderStatusChanged("shipped")
	r.ObserveEvent("order.placed", "handled")
	r.BreakerStateChanged("docstore", circuitbreaker.StateClosed, circuitbreaker.StateOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ReadFallbacks.WithLabelValues("products")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OrdersPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CheckoutFailures.WithLabelValues("validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StatusChanges.WithLabelValues("shipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.EventsConsumed.WithLabelValues("order.placed", "handled")))
	assert.Equal(t, float64(circuitbreaker.StateOpen), testutil.ToFloat64(r.BreakerState.WithLabelValues("docstore")))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ObserveRequest("GET", "/products", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `storefront_http_requests_total{code="200",method="GET",route="/products"} 1`))
}
