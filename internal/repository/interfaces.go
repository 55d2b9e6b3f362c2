package repository

import (
	"context"
	"image"
)

// AssetRepository resolves and loads the image assets the backend publishes
type AssetRepository interface {
	// ResolveURL turns a backend-relative asset path into a fetchable URL
	ResolveURL(assetURL string) (string, error)

	// ValidateAssetURL validates if the provided URL is acceptable
	ValidateAssetURL(assetURL string) error

	// FetchImage resolves assetURL and decodes the image behind it
	FetchImage(ctx context.Context, assetURL string) (image.Image, error)
}
