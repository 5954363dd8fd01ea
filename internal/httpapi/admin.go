package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/pkg/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	session, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"session": session,
	})
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), bearerToken(r)); err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"email":   subjectFrom(r.Context()),
	})
}

// AdminListProducts reconciles the admin cache with the store, falling back
// to the optimistic copy when the store cannot be read.
func (s *Server) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.Reconcile(r.Context())
	if err != nil {
		s.logger.WithError(err).Warn("Serving cached product list")
		products = s.catalog.Cached()
	}
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"products": products,
		"count":    len(products),
	})
}

func (s *Server) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if !s.decode(w, r, &p) {
		return
	}
	created, err := s.catalog.Create(r.Context(), p)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, created)
}

func (s *Server) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if !s.decode(w, r, &p) {
		return
	}
	updated, err := s.catalog.Update(r.Context(), mux.Vars(r)["id"], p)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, updated)
}

func (s *Server) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) AdminCreateDeliveryCharge(w http.ResponseWriter, r *http.Request) {
	var c models.DeliveryCharge
	if !s.decode(w, r, &c) {
		return
	}
	created, err := s.delivery.Create(r.Context(), c)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, created)
}

func (s *Server) AdminUpdateDeliveryCharge(w http.ResponseWriter, r *http.Request) {
	var c models.DeliveryCharge
	if !s.decode(w, r, &c) {
		return
	}
	updated, err := s.delivery.Update(r.Context(), mux.Vars(r)["id"], c)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, updated)
}

func (s *Server) AdminDeleteDeliveryCharge(w http.ResponseWriter, r *http.Request) {
	if err := s.delivery.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) AdminAddGalleryImage(w http.ResponseWriter, r *http.Request) {
	var img models.GalleryImage
	if !s.decode(w, r, &img) {
		return
	}
	added, err := s.gallery.Add(r.Context(), img)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, added)
}

func (s *Server) AdminDeleteGalleryImage(w http.ResponseWriter, r *http.Request) {
	if err := s.gallery.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type heroRequest struct {
	URL string `json:"url"`
}

func (s *Server) AdminAddHeroImage(w http.ResponseWriter, r *http.Request) {
	var req heroRequest
	if !s.decode(w, r, &req) {
		return
	}
	added, err := s.heroes.Add(r.Context(), req.URL)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, added)
}

func (s *Server) AdminDeleteHeroImage(w http.ResponseWriter, r *http.Request) {
	if err := s.heroes.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	list := s.orders.List(r.Context())
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  list,
		"count":   len(list),
	})
}

func (s *Server) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, order)
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (s *Server) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	order, err := s.orders.UpdateStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, order)
}

func (s *Server) AdminListBreakers(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"breakers": s.breakers.Snapshots(),
	})
}

func (s *Server) AdminResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !s.breakers.Reset(name) {
		s.respondWithError(w, http.StatusNotFound, "Unknown circuit breaker")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"breaker": name,
		"admin":   subjectFrom(r.Context()),
	}).Warn("Circuit breaker reset by admin")
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) AdminLiveFeed(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, subjectFrom(r.Context()))
}
