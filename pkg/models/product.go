package models

import "time"

// DefaultStockCeiling caps cart quantities for products without a known stock level.
const DefaultStockCeiling = 99

type Product struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category"`
	Price        float64   `json:"price"`
	SalePrice    *float64  `json:"salePrice,omitempty"`
	Stock        int       `json:"stock"`
	Images       []string  `json:"images"`
	IsNewArrival bool      `json:"isNewArrival"`
	IsOnSale     bool      `json:"isOnSale"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// EffectivePrice is the sale price when one is set, otherwise the list price.
func (p Product) EffectivePrice() float64 {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// Discounted reports whether the sale price undercuts the list price.
// A sale price at or above the list price is stored as entered and simply
// does not count as a discount.
func (p Product) Discounted() bool {
	return p.SalePrice != nil && *p.SalePrice < p.Price
}

func (p Product) InStock() bool {
	return p.Stock > 0
}

// StockCeiling is the largest quantity of this product a cart line may hold.
// A zero stock is treated as unknown.
func (p Product) StockCeiling() int {
	if p.Stock <= 0 {
		return DefaultStockCeiling
	}
	return p.Stock
}
