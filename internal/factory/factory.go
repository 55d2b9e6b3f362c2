package factory

import (
	"fmt"

	"github.com/anime-shed/line-profile-studio/internal/config"
	"github.com/anime-shed/line-profile-studio/internal/storage"
	"github.com/anime-shed/line-profile-studio/internal/strategy"
)

// StorageType represents different asset sources
type StorageType string

const (
	// HTTPStorage fetches assets from the backend over HTTP
	HTTPStorage StorageType = config.AssetSourceHTTP
	// AzureStorage reads assets from Azure blob storage
	AzureStorage StorageType = config.AssetSourceAzure
)

// MirrorType selects how selections are mirrored onto samples
type MirrorType string

const (
	PixelMirror        MirrorType = config.MirrorModePixel
	ProportionalMirror MirrorType = config.MirrorModeProportional
)

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ImageFetcher, error)
}

// MirrorFactory creates mirror strategies
type MirrorFactory interface {
	CreateMirror(mirrorType MirrorType) (strategy.MirrorStrategy, error)
}

type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.ImageFetcher, error) {
	switch storageType {
	case HTTPStorage:
		return storage.NewHTTPImageFetcher(f.cfg.AssetFetchTimeout).WithLimits(f.assetLimits()), nil
	case AzureStorage:
		fetcher, err := storage.NewAzureImageFetcher(f.cfg.AzureAccountName, f.cfg.AzureAccountKey)
		if err != nil {
			return nil, err
		}
		return fetcher.WithLimits(f.assetLimits()), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

func (f *storageFactory) assetLimits() storage.AssetLimits {
	return storage.AssetLimits{MaxBytes: f.cfg.MaxAssetBytes, MaxPixels: f.cfg.MaxAssetPixels}
}

type mirrorFactory struct{}

// NewMirrorFactory creates a new mirror strategy factory
func NewMirrorFactory() MirrorFactory {
	return mirrorFactory{}
}

// CreateMirror creates a mirror strategy based on the specified type
func (mirrorFactory) CreateMirror(mirrorType MirrorType) (strategy.MirrorStrategy, error) {
	switch mirrorType {
	case PixelMirror:
		return strategy.NewPixelAlignedStrategy(), nil
	case ProportionalMirror:
		return strategy.NewProportionalStrategy(), nil
	default:
		return nil, fmt.Errorf("unsupported mirror type: %s", mirrorType)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory StorageFactory
	MirrorFactory  MirrorFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		StorageFactory: NewStorageFactory(cfg),
		MirrorFactory:  NewMirrorFactory(),
	}
}
