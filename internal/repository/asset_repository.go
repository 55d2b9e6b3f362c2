package repository

import (
	"context"
	"fmt"
	"image"
	"net/url"

	"github.com/anime-shed/line-profile-studio/internal/storage"
	"github.com/anime-shed/line-profile-studio/pkg/validation"
)

// FetcherAssetRepository implements AssetRepository on top of a storage fetcher
type FetcherAssetRepository struct {
	fetcher   storage.ImageFetcher
	validator *validation.URLValidator
	base      *url.URL
}

// NewAssetRepository creates a repository resolving relative asset paths
// against baseURL
func NewAssetRepository(fetcher storage.ImageFetcher, validator *validation.URLValidator, baseURL string) (*FetcherAssetRepository, error) {
	if err := validator.ValidateBaseURL(baseURL); err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &FetcherAssetRepository{
		fetcher:   fetcher,
		validator: validator,
		base:      base,
	}, nil
}

// ValidateAssetURL validates if the provided URL is acceptable
func (r *FetcherAssetRepository) ValidateAssetURL(assetURL string) error {
	if err := r.validator.ValidateAssetURL(assetURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAssetURL, err)
	}
	return nil
}

// ResolveURL returns assetURL unchanged when absolute, otherwise joined to the
// backend root
func (r *FetcherAssetRepository) ResolveURL(assetURL string) (string, error) {
	if err := r.ValidateAssetURL(assetURL); err != nil {
		return "", err
	}
	ref, err := url.Parse(assetURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAssetURL, err)
	}
	return r.base.ResolveReference(ref).String(), nil
}

// FetchImage resolves assetURL and decodes the image behind it
func (r *FetcherAssetRepository) FetchImage(ctx context.Context, assetURL string) (image.Image, error) {
	resolved, err := r.ResolveURL(assetURL)
	if err != nil {
		return nil, err
	}
	img, err := r.fetcher.FetchImage(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	return img, nil
}
