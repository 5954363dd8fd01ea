// Package delivery manages the per-city delivery charge table.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/pkg/models"
)

var (
	ErrDuplicateCity = errors.New("delivery charge for city already exists")
	ErrInvalidCharge = errors.New("invalid delivery charge")
)

type FallbackRecorder interface {
	ReadFallback(source string)
}

type Store struct {
	docs      docstore.Store
	logger    *logrus.Logger
	fallbacks FallbackRecorder
}

func NewStore(docs docstore.Store, logger *logrus.Logger, fallbacks FallbackRecorder) *Store {
	return &Store{docs: docs, logger: logger, fallbacks: fallbacks}
}

// Charges lists the table sorted by city. A failed read is logged and
// returns an empty table.
func (s *Store) Charges(ctx context.Context) []models.DeliveryCharge {
	charges, err := s.list(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch delivery charges")
		if s.fallbacks != nil {
			s.fallbacks.ReadFallback("deliveryCharges")
		}
		return []models.DeliveryCharge{}
	}
	return charges
}

func (s *Store) list(ctx context.Context) ([]models.DeliveryCharge, error) {
	docs, err := s.docs.List(ctx, docstore.DeliveryCharges)
	if err != nil {
		return nil, err
	}
	charges := make([]models.DeliveryCharge, 0, len(docs))
	for _, doc := range docs {
		var c models.DeliveryCharge
		if err := docstore.Decode(doc, &c); err != nil {
			s.logger.WithError(err).WithField("charge_id", doc.ID()).Warn("Skipping malformed delivery charge")
			continue
		}
		charges = append(charges, c)
	}
	sort.SliceStable(charges, func(i, j int) bool {
		return strings.ToLower(charges[i].City) < strings.ToLower(charges[j].City)
	})
	return charges, nil
}

func (s *Store) Create(ctx context.Context, c models.DeliveryCharge) (models.DeliveryCharge, error) {
	c, err := normalize(c)
	if err != nil {
		return models.DeliveryCharge{}, err
	}
	if err := s.checkUnique(ctx, c.City, ""); err != nil {
		return models.DeliveryCharge{}, err
	}

	fields, err := docstore.Encode(c)
	if err != nil {
		return models.DeliveryCharge{}, err
	}
	id, err := s.docs.Insert(ctx, docstore.DeliveryCharges, fields)
	if err != nil {
		return models.DeliveryCharge{}, fmt.Errorf("failed to save delivery charge: %w", err)
	}
	c.ID = id

	s.logger.WithFields(logrus.Fields{
		"charge_id": id,
		"city":      c.City,
		"charge":    c.Charge,
	}).Info("Delivery charge created")
	return c, nil
}

func (s *Store) Update(ctx context.Context, id string, c models.DeliveryCharge) (models.DeliveryCharge, error) {
	c, err := normalize(c)
	if err != nil {
		return models.DeliveryCharge{}, err
	}
	if err := s.checkUnique(ctx, c.City, id); err != nil {
		return models.DeliveryCharge{}, err
	}

	fields, err := docstore.Encode(c)
	if err != nil {
		return models.DeliveryCharge{}, err
	}
	if err := s.docs.Update(ctx, docstore.DeliveryCharges, id, fields); err != nil {
		return models.DeliveryCharge{}, fmt.Errorf("failed to update delivery charge %s: %w", id, err)
	}
	c.ID = id

	s.logger.WithFields(logrus.Fields{
		"charge_id": id,
		"city":      c.City,
	}).Info("Delivery charge updated")
	return c, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, docstore.DeliveryCharges, id); err != nil {
		return fmt.Errorf("failed to delete delivery charge %s: %w", id, err)
	}
	s.logger.WithField("charge_id", id).Info("Delivery charge deleted")
	return nil
}

// checkUnique needs an authoritative listing, so it does not fall back.
func (s *Store) checkUnique(ctx context.Context, city, exceptID string) error {
	existing, err := s.list(ctx)
	if err != nil {
		return fmt.Errorf("failed to check delivery charges: %w", err)
	}
	for _, c := range existing {
		if c.ID != exceptID && strings.EqualFold(strings.TrimSpace(c.City), city) {
			return fmt.Errorf("%w: %s", ErrDuplicateCity, c.City)
		}
	}
	return nil
}

func normalize(c models.DeliveryCharge) (models.DeliveryCharge, error) {
	c.City = strings.TrimSpace(c.City)
	c.EstimatedDays = strings.TrimSpace(c.EstimatedDays)
	if c.City == "" {
		return c, fmt.Errorf("%w: city is required", ErrInvalidCharge)
	}
	if c.Charge < 0 {
		return c, fmt.Errorf("%w: charge must not be negative", ErrInvalidCharge)
	}
	if c.EstimatedDays == "" {
		c.EstimatedDays = models.DefaultEstimatedDays
	}
	return c, nil
}
