package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/pkg/models"
)

var ErrInvalidProduct = errors.New("invalid product")

// FallbackRecorder counts reads that degraded to an empty result.
type FallbackRecorder interface {
	ReadFallback(source string)
}

// View narrows the product collection on the store side before the engine runs.
type View struct {
	Category    string
	NewArrivals bool
	OnSale      bool
	Limit       int
}

// Store is the catalog's window onto the products collection. It also keeps
// the admin console's product list, which is updated optimistically and then
// reconciled against a fresh listing.
type Store struct {
	docs      docstore.Store
	logger    *logrus.Logger
	fallbacks FallbackRecorder

	mu    sync.RWMutex
	cache []models.Product
}

func NewStore(docs docstore.Store, logger *logrus.Logger, fallbacks FallbackRecorder) *Store {
	return &Store{docs: docs, logger: logger, fallbacks: fallbacks}
}

// Products lists the products of a view. Store failures are logged and
// yield an empty list so the storefront stays usable.
func (s *Store) Products(ctx context.Context, view View) []models.Product {
	var constraints []docstore.Constraint
	if view.Category != "" {
		constraints = append(constraints, docstore.Where("category", view.Category))
	}
	if view.NewArrivals {
		constraints = append(constraints, docstore.Where("isNewArrival", true))
	}
	if view.OnSale {
		constraints = append(constraints, docstore.Where("isOnSale", true))
	}
	// Ordering is only requested for unfiltered listings; filtered views are
	// ordered by the engine.
	if len(constraints) == 0 {
		constraints = append(constraints, docstore.OrderBy("name", docstore.Ascending))
	}
	if view.Limit > 0 {
		constraints = append(constraints, docstore.Limit(view.Limit))
	}

	products, err := s.list(ctx, constraints...)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"category":     view.Category,
			"new_arrivals": view.NewArrivals,
			"on_sale":      view.OnSale,
		}).Error("Failed to fetch products")
		if s.fallbacks != nil {
			s.fallbacks.ReadFallback("products")
		}
		return []models.Product{}
	}
	return products
}

func (s *Store) list(ctx context.Context, constraints ...docstore.Constraint) ([]models.Product, error) {
	docs, err := s.docs.List(ctx, docstore.Products, constraints...)
	if err != nil {
		return nil, err
	}
	products := make([]models.Product, 0, len(docs))
	for _, doc := range docs {
		var p models.Product
		if err := docstore.Decode(doc, &p); err != nil {
			s.logger.WithError(err).WithField("product_id", doc.ID()).Warn("Skipping malformed product")
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

// Product fetches a single product. Misses wrap docstore.ErrNotFound.
func (s *Store) Product(ctx context.Context, id string) (models.Product, error) {
	doc, err := s.docs.Get(ctx, docstore.Products, id)
	if err != nil {
		return models.Product{}, fmt.Errorf("product %s: %w", id, err)
	}
	var p models.Product
	if err := docstore.Decode(doc, &p); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

// Cached returns the admin product list as last reconciled.
func (s *Store) Cached() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, len(s.cache))
	copy(out, s.cache)
	return out
}

// Reconcile replaces the admin cache with the authoritative listing.
func (s *Store) Reconcile(ctx context.Context) ([]models.Product, error) {
	fresh, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !sameProducts(s.cache, fresh) {
		s.logger.WithFields(logrus.Fields{
			"cached": len(s.cache),
			"stored": len(fresh),
		}).Debug("Product cache reconciled with store")
	}
	s.cache = fresh
	s.mu.Unlock()

	return s.Cached(), nil
}

func (s *Store) Create(ctx context.Context, p models.Product) (models.Product, error) {
	p, err := NormalizeProduct(p)
	if err != nil {
		return models.Product{}, err
	}

	restore := s.mutateCache(func(cache []models.Product) []models.Product {
		return append(cache, p)
	})

	fields, err := productFields(p)
	if err != nil {
		restore()
		return models.Product{}, err
	}
	id, err := s.docs.Insert(ctx, docstore.Products, fields)
	if err != nil {
		restore()
		return models.Product{}, fmt.Errorf("failed to save product: %w", err)
	}
	p.ID = id

	s.logger.WithFields(logrus.Fields{
		"product_id": id,
		"name":       p.Name,
		"category":   p.Category,
	}).Info("Product created")

	s.reconcileQuietly(ctx)
	return p, nil
}

func (s *Store) Update(ctx context.Context, id string, p models.Product) (models.Product, error) {
	p, err := NormalizeProduct(p)
	if err != nil {
		return models.Product{}, err
	}
	p.ID = id

	restore := s.mutateCache(func(cache []models.Product) []models.Product {
		for i := range cache {
			if cache[i].ID == id {
				p.CreatedAt = cache[i].CreatedAt
				cache[i] = p
			}
		}
		return cache
	})

	fields, err := productFields(p)
	if err != nil {
		restore()
		return models.Product{}, err
	}
	if err := s.docs.Update(ctx, docstore.Products, id, fields); err != nil {
		restore()
		return models.Product{}, fmt.Errorf("failed to update product %s: %w", id, err)
	}

	s.logger.WithField("product_id", id).Info("Product updated")
	s.reconcileQuietly(ctx)
	return p, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	restore := s.mutateCache(func(cache []models.Product) []models.Product {
		kept := cache[:0]
		for _, p := range cache {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		return kept
	})

	if err := s.docs.Delete(ctx, docstore.Products, id); err != nil {
		restore()
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}

	s.logger.WithField("product_id", id).Info("Product deleted")
	s.reconcileQuietly(ctx)
	return nil
}

// mutateCache applies fn to a copy of the cache and returns a func that
// restores the previous contents.
func (s *Store) mutateCache(fn func([]models.Product) []models.Product) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.cache
	working := make([]models.Product, len(previous))
	copy(working, previous)
	s.cache = fn(working)

	return func() {
		s.mu.Lock()
		s.cache = previous
		s.mu.Unlock()
	}
}

func (s *Store) reconcileQuietly(ctx context.Context) {
	if _, err := s.Reconcile(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to reconcile product cache, keeping optimistic copy")
	}
}

func sameProducts(a, b []models.Product) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func productFields(p models.Product) (docstore.Document, error) {
	fields, err := docstore.Encode(p)
	if err != nil {
		return nil, err
	}
	// Stamps belong to the store.
	delete(fields, "createdAt")
	delete(fields, "updatedAt")
	if p.SalePrice == nil {
		fields["salePrice"] = nil
	}
	return fields, nil
}

// NormalizeProduct trims text, drops blank image URLs and rejects values the
// catalog cannot display. A sale price at or above the list price is kept.
func NormalizeProduct(p models.Product) (models.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.Description = strings.TrimSpace(p.Description)

	if p.Name == "" {
		return p, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Category == "" {
		return p, fmt.Errorf("%w: category is required", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return p, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	if p.SalePrice != nil && *p.SalePrice < 0 {
		return p, fmt.Errorf("%w: sale price must not be negative", ErrInvalidProduct)
	}
	if p.Stock < 0 {
		return p, fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}

	images := make([]string, 0, len(p.Images))
	for _, raw := range p.Images {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !ValidImageURL(raw) {
			return p, fmt.Errorf("%w: image %q is not a valid URL", ErrInvalidProduct, raw)
		}
		images = append(images, raw)
	}
	p.Images = images
	return p, nil
}

func ValidImageURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
