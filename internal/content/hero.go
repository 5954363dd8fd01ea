package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/catalog"
	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/pkg/models"
)

// Heroes manages the homepage carousel images.
type Heroes struct {
	docs      docstore.Store
	logger    *logrus.Logger
	fallbacks FallbackRecorder
}

func NewHeroes(docs docstore.Store, logger *logrus.Logger, fallbacks FallbackRecorder) *Heroes {
	return &Heroes{docs: docs, logger: logger, fallbacks: fallbacks}
}

func (h *Heroes) Images(ctx context.Context) []models.HeroImage {
	docs, err := h.docs.List(ctx, docstore.HeroImages)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch hero images")
		if h.fallbacks != nil {
			h.fallbacks.ReadFallback("heroImages")
		}
		return []models.HeroImage{}
	}

	images := make([]models.HeroImage, 0, len(docs))
	for _, doc := range docs {
		var img models.HeroImage
		if err := docstore.Decode(doc, &img); err != nil {
			h.logger.WithError(err).WithField("image_id", doc.ID()).Warn("Skipping malformed hero image")
			continue
		}
		images = append(images, img)
	}
	return images
}

func (h *Heroes) Add(ctx context.Context, url string) (models.HeroImage, error) {
	url = strings.TrimSpace(url)
	if !catalog.ValidImageURL(url) {
		return models.HeroImage{}, fmt.Errorf("%w: url %q", ErrInvalidImage, url)
	}

	id, err := h.docs.Insert(ctx, docstore.HeroImages, docstore.Document{"url": url})
	if err != nil {
		return models.HeroImage{}, fmt.Errorf("failed to add hero image: %w", err)
	}
	h.logger.WithFields(logrus.Fields{"image_id": id, "url": url}).Info("Hero image added")
	return models.HeroImage{ID: id, URL: url}, nil
}

func (h *Heroes) Delete(ctx context.Context, id string) error {
	if err := h.docs.Delete(ctx, docstore.HeroImages, id); err != nil {
		return fmt.Errorf("failed to delete hero image %s: %w", id, err)
	}
	h.logger.WithField("image_id", id).Info("Hero image deleted")
	return nil
}
