package models

import "time"

const DefaultEstimatedDays = "2-5"

type DeliveryCharge struct {
	ID            string  `json:"id,omitempty"`
	City          string  `json:"city"`
	Charge        float64 `json:"charge"`
	EstimatedDays string  `json:"estimatedDays"`
}

type GallerySection string

const (
	GallerySectionFactory   GallerySection = "factory"
	GallerySectionMachinery GallerySection = "machinery"
	GallerySectionShowroom  GallerySection = "showroom"
	GallerySectionProducts  GallerySection = "products"
)

var GallerySections = []GallerySection{
	GallerySectionFactory,
	GallerySectionMachinery,
	GallerySectionShowroom,
	GallerySectionProducts,
}

type GalleryImage struct {
	ID          string         `json:"id,omitempty"`
	Section     GallerySection `json:"section"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url"`
	Order       int            `json:"order"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type HeroImage struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}
