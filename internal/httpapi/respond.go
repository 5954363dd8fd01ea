package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jogardn/craft-storefront/internal/auth"
	"github.com/jogardn/craft-storefront/internal/cart"
	"github.com/jogardn/craft-storefront/internal/catalog"
	"github.com/jogardn/craft-storefront/internal/checkout"
	"github.com/jogardn/craft-storefront/internal/circuitbreaker"
	"github.com/jogardn/craft-storefront/internal/content"
	"github.com/jogardn/craft-storefront/internal/delivery"
	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/internal/orders"
)

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
		code = http.StatusInternalServerError
		response = []byte(`{"success":false,"message":"Internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// respondWithServiceError maps domain errors onto status codes. Validation
// errors carry their per-field messages.
func (s *Server) respondWithServiceError(w http.ResponseWriter, err error) {
	var verr *checkout.ValidationError
	switch {
	case errors.As(err, &verr):
		s.respondWithJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"success": false,
			"message": "Please correct the highlighted fields",
			"fields":  verr.Fields,
		})
	case errors.Is(err, docstore.ErrNotFound):
		s.respondWithError(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, checkout.ErrSubmissionInProgress):
		s.respondWithError(w, http.StatusConflict, "Your order is already being submitted")
	case errors.Is(err, delivery.ErrDuplicateCity):
		s.respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidCartID),
		errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, catalog.ErrInvalidCriteria),
		errors.Is(err, delivery.ErrInvalidCharge),
		errors.Is(err, content.ErrInvalidSection),
		errors.Is(err, content.ErrInvalidImage),
		errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, docstore.ErrInvalidQuery):
		s.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		s.respondWithError(w, http.StatusUnauthorized, "Please sign in")
	case errors.Is(err, docstore.ErrUnavailable), errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		s.respondWithError(w, http.StatusServiceUnavailable, "Service temporarily unavailable, please try again")
	default:
		s.logger.WithError(err).Error("Unhandled service error")
		s.respondWithError(w, http.StatusInternalServerError, "Something went wrong")
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.WithError(err).WithField("path", r.URL.Path).Warn("Failed to decode request body")
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
