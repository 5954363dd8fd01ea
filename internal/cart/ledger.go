// Package cart keeps shoppers' cart ledgers and persists them after every change.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/pkg/models"
)

var ErrMalformedCart = errors.New("malformed cart data")

// Persister stores ledger contents between process runs.
type Persister interface {
	Load(cartID string) ([]models.CartLine, error)
	Save(cartID string, lines []models.CartLine) error
	Delete(cartID string) error
}

// Ledger is an ordered list of cart lines, at most one per product.
// Quantities stay within [1, product stock ceiling].
type Ledger struct {
	id        string
	persister Persister
	logger    *logrus.Logger
	track     func(l *Ledger, empty bool)

	mu    sync.Mutex
	lines []models.CartLine
}

// Restore loads a ledger from persistence. Unreadable data is discarded and
// the ledger starts empty.
func Restore(id string, persister Persister, logger *logrus.Logger) *Ledger {
	l := &Ledger{id: id, persister: persister, logger: logger}

	lines, err := persister.Load(id)
	if err == nil {
		err = validateLines(lines)
	}
	if err != nil {
		logger.WithError(err).WithField("cart_id", id).Warn("Discarding stored cart")
		if delErr := persister.Delete(id); delErr != nil {
			logger.WithError(delErr).WithField("cart_id", id).Warn("Failed to delete stored cart")
		}
		return l
	}
	l.lines = lines
	return l
}

func validateLines(lines []models.CartLine) error {
	seen := make(map[string]bool, len(lines))
	for i, line := range lines {
		if line.Product.ID == "" {
			return fmt.Errorf("%w: line %d has no product id", ErrMalformedCart, i)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: line %d has quantity %d", ErrMalformedCart, i, line.Quantity)
		}
		if seen[line.Product.ID] {
			return fmt.Errorf("%w: product %s appears twice", ErrMalformedCart, line.Product.ID)
		}
		seen[line.Product.ID] = true
	}
	return nil
}

func (l *Ledger) ID() string {
	return l.id
}

// Add puts quantity units of product in the cart. An existing line for the
// same product grows instead of a second line being added; the product
// snapshot taken when the line was created is kept.
func (l *Ledger) Add(product models.Product, quantity int) models.CartLine {
	if quantity < 1 {
		quantity = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		if l.lines[i].Product.ID == product.ID {
			line := &l.lines[i]
			line.Quantity = clamp(line.Quantity+quantity, line.Product.StockCeiling())
			l.persist()
			return copyLine(*line)
		}
	}

	line := models.CartLine{
		Product:  copyProduct(product),
		Quantity: clamp(quantity, product.StockCeiling()),
	}
	l.lines = append(l.lines, line)
	l.persist()
	return copyLine(line)
}

// SetQuantity replaces a line's quantity. Zero or less removes the line.
// It reports false when the product is not in the cart.
func (l *Ledger) SetQuantity(productID string, quantity int) (models.CartLine, bool) {
	if quantity <= 0 {
		return models.CartLine{}, l.Remove(productID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		if l.lines[i].Product.ID == productID {
			line := &l.lines[i]
			line.Quantity = clamp(quantity, line.Product.StockCeiling())
			l.persist()
			return copyLine(*line), true
		}
	}
	return models.CartLine{}, false
}

// Remove deletes a product's line and reports whether one existed.
func (l *Ledger) Remove(productID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		if l.lines[i].Product.ID == productID {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
			l.persist()
			return true
		}
	}
	return false
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = nil
	l.persist()
}

// RemoveOrdered takes the quantities of ordered out of the cart. Lines added
// or grown after ordered was read keep whatever exceeds the ordered amount.
func (l *Ledger) RemoveOrdered(ordered []models.CartLine) {
	l.mu.Lock()
	defer l.mu.Unlock()

	taken := make(map[string]int, len(ordered))
	for _, line := range ordered {
		taken[line.Product.ID] += line.Quantity
	}

	kept := l.lines[:0]
	for _, line := range l.lines {
		line.Quantity -= taken[line.Product.ID]
		if line.Quantity > 0 {
			kept = append(kept, line)
		}
	}
	l.lines = kept
	l.persist()
}

// Lines returns a deep copy of the ledger's lines.
func (l *Ledger) Lines() []models.CartLine {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.CartLine, len(l.lines))
	for i, line := range l.lines {
		out[i] = copyLine(line)
	}
	return out
}

func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.Subtotal(l.lines)
}

func (l *Ledger) ItemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.ItemCount(l.lines)
}

func (l *Ledger) IsEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines) == 0
}

// persist must be called with mu held. A failed write keeps the in-memory
// state; the next mutation writes the whole ledger again.
func (l *Ledger) persist() {
	var err error
	if len(l.lines) == 0 {
		err = l.persister.Delete(l.id)
	} else {
		err = l.persister.Save(l.id, l.lines)
	}
	if err != nil {
		l.logger.WithError(err).WithField("cart_id", l.id).Error("Failed to persist cart")
	}
	if l.track != nil {
		l.track(l, len(l.lines) == 0)
	}
}

func clamp(quantity, ceiling int) int {
	if quantity < 1 {
		return 1
	}
	if quantity > ceiling {
		return ceiling
	}
	return quantity
}

func copyLine(line models.CartLine) models.CartLine {
	line.Product = copyProduct(line.Product)
	return line
}

func copyProduct(p models.Product) models.Product {
	if p.SalePrice != nil {
		sale := *p.SalePrice
		p.SalePrice = &sale
	}
	if p.Images != nil {
		p.Images = append([]string(nil), p.Images...)
	}
	return p
}
