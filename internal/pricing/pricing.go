// Package pricing computes what a cart costs delivered to a city.
package pricing

import (
	"math"
	"strings"

	"github.com/jogardn/craft-storefront/pkg/models"
)

// Breakdown is kept at full precision. Use Presented for display values.
type Breakdown struct {
	Subtotal       float64 `json:"subtotal"`
	DeliveryCharge float64 `json:"deliveryCharge"`
	Total          float64 `json:"total"`
	City           string  `json:"city,omitempty"`
	EstimatedDays  string  `json:"estimatedDays,omitempty"`
	CityMatched    bool    `json:"cityMatched"`
}

// Quote prices lines for delivery to city. An empty or unknown city costs nothing to deliver.
func Quote(lines []models.CartLine, city string, charges []models.DeliveryCharge) Breakdown {
	b := Breakdown{Subtotal: models.Subtotal(lines)}

	if match, ok := MatchCity(city, charges); ok {
		b.DeliveryCharge = match.Charge
		b.City = match.City
		b.EstimatedDays = match.EstimatedDays
		b.CityMatched = true
	}

	b.Total = b.Subtotal + b.DeliveryCharge
	return b
}

// MatchCity finds the charge record for city, ignoring case and surrounding space.
func MatchCity(city string, charges []models.DeliveryCharge) (models.DeliveryCharge, bool) {
	city = strings.TrimSpace(city)
	if city == "" {
		return models.DeliveryCharge{}, false
	}
	for _, c := range charges {
		if strings.EqualFold(strings.TrimSpace(c.City), city) {
			return c, true
		}
	}
	return models.DeliveryCharge{}, false
}

// Presented rounds the money fields to cents.
func (b Breakdown) Presented() Breakdown {
	b.Subtotal = Round2(b.Subtotal)
	b.DeliveryCharge = Round2(b.DeliveryCharge)
	b.Total = Round2(b.Total)
	return b
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
