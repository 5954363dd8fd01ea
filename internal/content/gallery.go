// Package content holds the storefront's editorial images: the sectioned
// gallery and the homepage hero carousel.
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/catalog"
	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/pkg/models"
)

var (
	ErrInvalidSection = errors.New("invalid gallery section")
	ErrInvalidImage   = errors.New("invalid image")
)

type FallbackRecorder interface {
	ReadFallback(source string)
}

type Gallery struct {
	docs      docstore.Store
	logger    *logrus.Logger
	fallbacks FallbackRecorder
}

func NewGallery(docs docstore.Store, logger *logrus.Logger, fallbacks FallbackRecorder) *Gallery {
	return &Gallery{docs: docs, logger: logger, fallbacks: fallbacks}
}

func ParseSection(raw string) (models.GallerySection, error) {
	for _, s := range models.GallerySections {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSection, raw)
}

// Images lists a section's images, or every image when section is empty,
// ordered by their order field and then by creation time.
func (g *Gallery) Images(ctx context.Context, section models.GallerySection) []models.GalleryImage {
	var constraints []docstore.Constraint
	if section != "" {
		constraints = append(constraints, docstore.Where("section", string(section)))
	}

	docs, err := g.docs.List(ctx, docstore.Gallery, constraints...)
	if err != nil {
		g.logger.WithError(err).WithField("section", section).Error("Failed to fetch gallery images")
		if g.fallbacks != nil {
			g.fallbacks.ReadFallback("gallery")
		}
		return []models.GalleryImage{}
	}

	images := make([]models.GalleryImage, 0, len(docs))
	for _, doc := range docs {
		var img models.GalleryImage
		if err := docstore.Decode(doc, &img); err != nil {
			g.logger.WithError(err).WithField("image_id", doc.ID()).Warn("Skipping malformed gallery image")
			continue
		}
		images = append(images, img)
	}
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Order != images[j].Order {
			return images[i].Order < images[j].Order
		}
		return images[i].CreatedAt.Before(images[j].CreatedAt)
	})
	return images
}

func (g *Gallery) Add(ctx context.Context, img models.GalleryImage) (models.GalleryImage, error) {
	img.Title = strings.TrimSpace(img.Title)
	img.Description = strings.TrimSpace(img.Description)
	img.URL = strings.TrimSpace(img.URL)
	if img.Section == "" {
		img.Section = models.GallerySectionFactory
	}
	if _, err := ParseSection(string(img.Section)); err != nil {
		return models.GalleryImage{}, err
	}
	if !catalog.ValidImageURL(img.URL) {
		return models.GalleryImage{}, fmt.Errorf("%w: url %q", ErrInvalidImage, img.URL)
	}

	fields, err := docstore.Encode(img)
	if err != nil {
		return models.GalleryImage{}, err
	}
	// The store stamps createdAt.
	delete(fields, "createdAt")

	id, err := g.docs.Insert(ctx, docstore.Gallery, fields)
	if err != nil {
		return models.GalleryImage{}, fmt.Errorf("failed to add gallery image: %w", err)
	}
	img.ID = id

	g.logger.WithFields(logrus.Fields{
		"image_id": id,
		"section":  img.Section,
		"order":    img.Order,
	}).Info("Gallery image added")
	return img, nil
}

func (g *Gallery) Delete(ctx context.Context, id string) error {
	if err := g.docs.Delete(ctx, docstore.Gallery, id); err != nil {
		return fmt.Errorf("failed to delete gallery image %s: %w", id, err)
	}
	g.logger.WithField("image_id", id).Info("Gallery image deleted")
	return nil
}
