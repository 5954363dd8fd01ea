package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jogardn/craft-storefront/internal/cart"
	"github.com/jogardn/craft-storefront/internal/catalog"
	"github.com/jogardn/craft-storefront/internal/content"
	"github.com/jogardn/craft-storefront/internal/pricing"
	"github.com/jogardn/craft-storefront/pkg/models"
)

const (
	homeNewArrivals = 6
	homeOnSale      = 6
	homeFeatured    = 10
)

func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"heroImages":  s.heroes.Images(ctx),
		"newArrivals": s.catalog.Products(ctx, catalog.View{NewArrivals: true, Limit: homeNewArrivals}),
		"onSale":      s.catalog.Products(ctx, catalog.View{OnSale: true, Limit: homeOnSale}),
		"featured":    s.catalog.Products(ctx, catalog.View{Limit: homeFeatured}),
	})
}

// criteriaFromQuery starts from the cleared filter panel and applies
// whatever the query string sets.
func criteriaFromQuery(r *http.Request) (catalog.Criteria, int, error) {
	q := r.URL.Query()
	criteria := catalog.DefaultCriteria()
	criteria.SearchQuery = strings.TrimSpace(q.Get("q"))
	criteria.Category = q.Get("filterCategory")
	criteria.InStock = q.Get("inStock") == "true"
	if sortBy := q.Get("sort"); sortBy != "" {
		criteria.SortBy = catalog.SortBy(sortBy)
	}

	var err error
	if raw := q.Get("minPrice"); raw != "" {
		if criteria.PriceRange.Min, err = strconv.ParseFloat(raw, 64); err != nil {
			return criteria, 0, catalog.ErrInvalidCriteria
		}
	}
	if raw := q.Get("maxPrice"); raw != "" {
		if criteria.PriceRange.Max, err = strconv.ParseFloat(raw, 64); err != nil {
			return criteria, 0, catalog.ErrInvalidCriteria
		}
	}

	page := 1
	if raw := q.Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			return criteria, 0, catalog.ErrInvalidCriteria
		}
	}
	return criteria, page, criteria.Validate()
}

func viewFromQuery(r *http.Request) catalog.View {
	q := r.URL.Query()
	view := catalog.View{Category: q.Get("category")}
	switch q.Get("type") {
	case "new-arrivals":
		view.NewArrivals = true
	case "sales":
		view.OnSale = true
	}
	return view
}

func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	criteria, page, err := criteriaFromQuery(r)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	browser := catalog.NewBrowser(s.catalog.Products(r.Context(), viewFromQuery(r)))
	browser.SetCriteria(criteria)
	browser.SetPage(page)

	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"criteria": browser.Criteria(),
		"result":   browser.Result(),
	})
}

func (s *Server) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.Product(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, product)
}

func (s *Server) ListDeliveryCharges(w http.ResponseWriter, r *http.Request) {
	charges := s.delivery.Charges(r.Context())
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"charges": charges,
		"count":   len(charges),
	})
}

func (s *Server) ListGallery(w http.ResponseWriter, r *http.Request) {
	var section models.GallerySection
	if raw := r.URL.Query().Get("section"); raw != "" {
		parsed, err := content.ParseSection(raw)
		if err != nil {
			s.respondWithServiceError(w, err)
			return
		}
		section = parsed
	}
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"images":  s.gallery.Images(r.Context(), section),
	})
}

func (s *Server) ListHeroImages(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"images":  s.heroes.Images(r.Context()),
	})
}

type cartView struct {
	ID        string            `json:"id"`
	Lines     []models.CartLine `json:"lines"`
	ItemCount int               `json:"itemCount"`
	Subtotal  float64           `json:"subtotal"`
}

func viewCart(ledger *cart.Ledger) cartView {
	lines := ledger.Lines()
	return cartView{
		ID:        ledger.ID(),
		Lines:     lines,
		ItemCount: models.ItemCount(lines),
		Subtotal:  pricing.Round2(models.Subtotal(lines)),
	}
}

func (s *Server) openCart(w http.ResponseWriter, r *http.Request) (*cart.Ledger, bool) {
	ledger, err := s.carts.Open(mux.Vars(r)["id"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return nil, false
	}
	return ledger, true
}

func (s *Server) CreateCart(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusCreated, viewCart(s.carts.New()))
}

func (s *Server) GetCart(w http.ResponseWriter, r *http.Request) {
	if ledger, ok := s.openCart(w, r); ok {
		s.respondWithJSON(w, http.StatusOK, viewCart(ledger))
	}
}

func (s *Server) ClearCart(w http.ResponseWriter, r *http.Request) {
	if ledger, ok := s.openCart(w, r); ok {
		ledger.Clear()
		s.respondWithJSON(w, http.StatusOK, viewCart(ledger))
	}
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) AddCartItem(w http.ResponseWriter, r *http.Request) {
	ledger, ok := s.openCart(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	product, err := s.catalog.Product(r.Context(), req.ProductID)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	ledger.Add(product, req.Quantity)
	s.respondWithJSON(w, http.StatusOK, viewCart(ledger))
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	ledger, ok := s.openCart(w, r)
	if !ok {
		return
	}
	var req setQuantityRequest
	if !s.decode(w, r, &req) {
		return
	}
	// Zero or less is a removal, which succeeds whether or not the line exists.
	_, found := ledger.SetQuantity(mux.Vars(r)["productId"], req.Quantity)
	if !found && req.Quantity > 0 {
		s.respondWithError(w, http.StatusNotFound, "Item not found")
		return
	}
	s.respondWithJSON(w, http.StatusOK, viewCart(ledger))
}

func (s *Server) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	if ledger, ok := s.openCart(w, r); ok {
		ledger.Remove(mux.Vars(r)["productId"])
		s.respondWithJSON(w, http.StatusOK, viewCart(ledger))
	}
}

func (s *Server) QuoteCart(w http.ResponseWriter, r *http.Request) {
	ledger, ok := s.openCart(w, r)
	if !ok {
		return
	}
	quote := pricing.Quote(ledger.Lines(), r.URL.Query().Get("city"), s.delivery.Charges(r.Context()))
	s.respondWithJSON(w, http.StatusOK, quote.Presented())
}

func (s *Server) Checkout(w http.ResponseWriter, r *http.Request) {
	ledger, ok := s.openCart(w, r)
	if !ok {
		return
	}
	var form models.CustomerInfo
	if !s.decode(w, r, &form) {
		return
	}

	order, err := s.checkout.PlaceOrder(r.Context(), ledger, form)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, models.OrderResponse{
		Success: true,
		Message: "Order placed successfully",
		OrderID: order.ID,
		Order:   &order,
	})
}
