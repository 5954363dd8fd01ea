// Package httpapi is the storefront's HTTP surface: the public shop and the
// admin console API.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/auth"
	"github.com/jogardn/craft-storefront/internal/cart"
	"github.com/jogardn/craft-storefront/internal/catalog"
	"github.com/jogardn/craft-storefront/internal/checkout"
	"github.com/jogardn/craft-storefront/internal/circuitbreaker"
	"github.com/jogardn/craft-storefront/internal/content"
	"github.com/jogardn/craft-storefront/internal/delivery"
	"github.com/jogardn/craft-storefront/internal/metrics"
	"github.com/jogardn/craft-storefront/internal/orders"
	"github.com/jogardn/craft-storefront/internal/websocket"
)

// Dependencies are constructed once in main and shared by every handler.
type Dependencies struct {
	Catalog  *catalog.Store
	Carts    *cart.Manager
	Delivery *delivery.Store
	Gallery  *content.Gallery
	Heroes   *content.Heroes
	Checkout *checkout.Service
	Orders   *orders.Service
	Auth     *auth.Authenticator
	Hub      *websocket.Hub
	Breakers *circuitbreaker.Manager
	Metrics  *metrics.Registry
	// Ping reports whether the document store answers. Nil means always healthy.
	Ping   func(ctx context.Context) error
	Logger *logrus.Logger
}

type Server struct {
	catalog  *catalog.Store
	carts    *cart.Manager
	delivery *delivery.Store
	gallery  *content.Gallery
	heroes   *content.Heroes
	checkout *checkout.Service
	orders   *orders.Service
	auth     *auth.Authenticator
	hub      *websocket.Hub
	breakers *circuitbreaker.Manager
	metrics  *metrics.Registry
	ping     func(ctx context.Context) error
	logger   *logrus.Logger
}

func NewServer(deps Dependencies) *Server {
	return &Server{
		catalog:  deps.Catalog,
		carts:    deps.Carts,
		delivery: deps.Delivery,
		gallery:  deps.Gallery,
		heroes:   deps.Heroes,
		checkout: deps.Checkout,
		orders:   deps.Orders,
		auth:     deps.Auth,
		hub:      deps.Hub,
		breakers: deps.Breakers,
		metrics:  deps.Metrics,
		ping:     deps.Ping,
		logger:   deps.Logger,
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.HealthCheck).Methods("GET", "OPTIONS")
	router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	router.HandleFunc("/home", s.Home).Methods("GET", "OPTIONS")
	router.HandleFunc("/products", s.ListProducts).Methods("GET", "OPTIONS")
	router.HandleFunc("/products/{id}", s.GetProduct).Methods("GET", "OPTIONS")
	router.HandleFunc("/delivery-charges", s.ListDeliveryCharges).Methods("GET", "OPTIONS")
	router.HandleFunc("/gallery", s.ListGallery).Methods("GET", "OPTIONS")
	router.HandleFunc("/hero-images", s.ListHeroImages).Methods("GET", "OPTIONS")

	router.HandleFunc("/carts", s.CreateCart).Methods("POST", "OPTIONS")
	router.HandleFunc("/carts/{id}", s.GetCart).Methods("GET", "OPTIONS")
	router.HandleFunc("/carts/{id}", s.ClearCart).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/carts/{id}/items", s.AddCartItem).Methods("POST", "OPTIONS")
	router.HandleFunc("/carts/{id}/items/{productId}", s.SetCartItemQuantity).Methods("PUT", "OPTIONS")
	router.HandleFunc("/carts/{id}/items/{productId}", s.RemoveCartItem).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/carts/{id}/quote", s.QuoteCart).Methods("GET", "OPTIONS")
	router.HandleFunc("/carts/{id}/checkout", s.Checkout).Methods("POST", "OPTIONS")

	router.HandleFunc("/admin/login", s.Login).Methods("POST", "OPTIONS")

	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/logout", s.Logout).Methods("POST", "OPTIONS")
	admin.HandleFunc("/me", s.Me).Methods("GET", "OPTIONS")
	admin.HandleFunc("/products", s.AdminListProducts).Methods("GET", "OPTIONS")
	admin.HandleFunc("/products", s.AdminCreateProduct).Methods("POST", "OPTIONS")
	admin.HandleFunc("/products/{id}", s.AdminUpdateProduct).Methods("PUT", "OPTIONS")
	admin.HandleFunc("/products/{id}", s.AdminDeleteProduct).Methods("DELETE", "OPTIONS")
	admin.HandleFunc("/delivery-charges", s.ListDeliveryCharges).Methods("GET", "OPTIONS")
	admin.HandleFunc("/delivery-charges", s.AdminCreateDeliveryCharge).Methods("POST", "OPTIONS")
	admin.HandleFunc("/delivery-charges/{id}", s.AdminUpdateDeliveryCharge).Methods("PUT", "OPTIONS")
	admin.HandleFunc("/delivery-charges/{id}", s.AdminDeleteDeliveryCharge).Methods("DELETE", "OPTIONS")
	admin.HandleFunc("/gallery", s.ListGallery).Methods("GET", "OPTIONS")
	admin.HandleFunc("/gallery", s.AdminAddGalleryImage).Methods("POST", "OPTIONS")
	admin.HandleFunc("/gallery/{id}", s.AdminDeleteGalleryImage).Methods("DELETE", "OPTIONS")
	admin.HandleFunc("/hero-images", s.ListHeroImages).Methods("GET", "OPTIONS")
	admin.HandleFunc("/hero-images", s.AdminAddHeroImage).Methods("POST", "OPTIONS")
	admin.HandleFunc("/hero-images/{id}", s.AdminDeleteHeroImage).Methods("DELETE", "OPTIONS")
	admin.HandleFunc("/orders", s.AdminListOrders).Methods("GET", "OPTIONS")
	admin.HandleFunc("/orders/{id}", s.AdminGetOrder).Methods("GET", "OPTIONS")
	admin.HandleFunc("/orders/{id}/status", s.AdminUpdateOrderStatus).Methods("PUT", "OPTIONS")
	admin.HandleFunc("/breakers", s.AdminListBreakers).Methods("GET", "OPTIONS")
	admin.HandleFunc("/breakers/{name}/reset", s.AdminResetBreaker).Methods("POST", "OPTIONS")
	admin.HandleFunc("/ws", s.AdminLiveFeed).Methods("GET", "OPTIONS")

	router.Use(loggingMiddleware(s.logger, s.metrics))
	router.Use(corsMiddleware())
	return router
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "storefront",
				"error":   "document store unreachable",
			})
			return
		}
	}
	s.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "storefront",
	})
}
