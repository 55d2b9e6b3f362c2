package factory

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/anime-shed/line-profile-studio/internal/config"
	"github.com/anime-shed/line-profile-studio/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		AssetFetchTimeout: 5 * time.Second,
		AzureAccountName:  "studioassets",
		AzureAccountKey:   base64.StdEncoding.EncodeToString([]byte("not-a-real-key")),
	}
}

func TestCreateStorage(t *testing.T) {
	f := NewComponentFactory(testConfig())

	fetcher, err := f.StorageFactory.CreateStorage(HTTPStorage)
	if err != nil {
		t.Fatalf("CreateStorage(http): %v", err)
	}
	if _, ok := fetcher.(*storage.HTTPImageFetcher); !ok {
		t.Errorf("Expected *storage.HTTPImageFetcher, got %T", fetcher)
	}

	fetcher, err = f.StorageFactory.CreateStorage(AzureStorage)
	if err != nil {
		t.Fatalf("CreateStorage(azure): %v", err)
	}
	if _, ok := fetcher.(*storage.AzureImageFetcher); !ok {
		t.Errorf("Expected *storage.AzureImageFetcher, got %T", fetcher)
	}

	if _, err := f.StorageFactory.CreateStorage("local"); err == nil {
		t.Error("Expected error for unsupported storage type")
	}
}

func TestCreateStorage_BadAzureKey(t *testing.T) {
	cfg := testConfig()
	cfg.AzureAccountKey = "%%% not base64"
	if _, err := NewStorageFactory(cfg).CreateStorage(AzureStorage); err == nil {
		t.Error("Expected error for undecodable account key")
	}
}

func TestCreateMirror(t *testing.T) {
	f := NewMirrorFactory()

	for _, mt := range []MirrorType{PixelMirror, ProportionalMirror} {
		s, err := f.CreateMirror(mt)
		if err != nil {
			t.Fatalf("CreateMirror(%s): %v", mt, err)
		}
		if s.GetStrategyName() != string(mt) {
			t.Errorf("Expected strategy %s, got %s", mt, s.GetStrategyName())
		}
	}

	if _, err := f.CreateMirror("diagonal"); err == nil {
		t.Error("Expected error for unsupported mirror type")
	}
}
