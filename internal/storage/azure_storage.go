package storage

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// BlobDownloader is the slice of the azblob client the fetcher needs
type BlobDownloader interface {
	DownloadStream(ctx context.Context, containerName string, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// AzureImageFetcher reads assets the backend published to Azure Blob Storage.
// Asset URLs look like https://<account>.blob.core.windows.net/<container>/<blob>.
type AzureImageFetcher struct {
	client BlobDownloader
	limits AssetLimits
}

// NewAzureImageFetcher creates a fetcher authenticated with a shared key
func NewAzureImageFetcher(accountName, accountKey string) (*AzureImageFetcher, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return NewAzureImageFetcherWithClient(client), nil
}

// NewAzureImageFetcherWithClient wraps an existing blob client
func NewAzureImageFetcherWithClient(client BlobDownloader) *AzureImageFetcher {
	return &AzureImageFetcher{client: client, limits: DefaultAssetLimits}
}

// WithLimits replaces the asset limits; zero fields keep the defaults
func (s *AzureImageFetcher) WithLimits(limits AssetLimits) *AzureImageFetcher {
	s.limits = limits.normalize()
	return s
}

// FetchImage downloads and decodes the blob named by blobURL
func (s *AzureImageFetcher) FetchImage(ctx context.Context, blobURL string) (image.Image, error) {
	containerName, blobName, err := SplitBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	body := downloadResponse.Body
	defer body.Close()

	data, err := readLimited(body, s.limits.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("blob %s/%s: %w", containerName, blobName, err)
	}
	img, err := decodeLimited(data, s.limits.MaxPixels)
	if err != nil {
		return nil, fmt.Errorf("blob %s/%s: %w", containerName, blobName, err)
	}
	return img, nil
}

// SplitBlobURL extracts container and blob names from a blob URL path. The
// query string (SAS tokens, cache-busting) is ignored.
func SplitBlobURL(blobURL string) (string, string, error) {
	parsedURL, err := url.Parse(blobURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob URL: %w", err)
	}

	parts := strings.SplitN(strings.TrimPrefix(parsedURL.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("blob URL %q must name a container and a blob", blobURL)
	}
	return parts[0], parts[1], nil
}
