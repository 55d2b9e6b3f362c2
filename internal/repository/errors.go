package repository

import "errors"

var (
	// ErrInvalidAssetURL indicates the backend handed back an unusable asset URL
	ErrInvalidAssetURL = errors.New("invalid asset URL")

	// ErrAssetUnavailable indicates the asset could not be fetched or decoded
	ErrAssetUnavailable = errors.New("asset unavailable")
)
