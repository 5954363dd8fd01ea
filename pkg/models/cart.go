package models

// CartLine holds a copy of the product as it was when first added.
// Later catalog edits are not reflected in open carts.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

func (l CartLine) LineTotal() float64 {
	return l.Product.EffectivePrice() * float64(l.Quantity)
}

// Subtotal sums effective price times quantity across lines at full precision.
func Subtotal(lines []CartLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.LineTotal()
	}
	return total
}

func ItemCount(lines []CartLine) int {
	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return count
}
