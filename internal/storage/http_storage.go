package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"
)

// ImageFetcher retrieves and decodes one image asset
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) (image.Image, error)
}

// RetryPolicy controls how transient asset fetch failures are retried
type RetryPolicy struct {
	Attempts int
	// Backoff is multiplied by the attempt number before each retry
	Backoff time.Duration
}

// DefaultRetryPolicy is three attempts with 1s, 2s backoff
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: time.Second}

// AssetLimits bounds the memory one asset may take. The pixel bound is
// checked from the image header before the full decode.
type AssetLimits struct {
	MaxBytes  int64
	MaxPixels int64
}

// DefaultAssetLimits allows 32MB encoded and 50 megapixels decoded
var DefaultAssetLimits = AssetLimits{MaxBytes: 32 << 20, MaxPixels: 50_000_000}

// ErrAssetTooLarge is returned for assets over the configured limits
var ErrAssetTooLarge = errors.New("asset exceeds size limit")

func (l AssetLimits) normalize() AssetLimits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultAssetLimits.MaxBytes
	}
	if l.MaxPixels <= 0 {
		l.MaxPixels = DefaultAssetLimits.MaxPixels
	}
	return l
}

// HTTPImageFetcher fetches assets served by the backend over HTTP
type HTTPImageFetcher struct {
	client *http.Client
	retry  RetryPolicy
	limits AssetLimits
}

// NewHTTPImageFetcher creates an HTTP image fetcher with the default retry policy
func NewHTTPImageFetcher(timeout time.Duration) *HTTPImageFetcher {
	return NewHTTPImageFetcherWithRetry(timeout, DefaultRetryPolicy)
}

// NewHTTPImageFetcherWithRetry creates an HTTP image fetcher
func NewHTTPImageFetcherWithRetry(timeout time.Duration, retry RetryPolicy) *HTTPImageFetcher {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		// A session fetches one reference plus a handful of samples from one host
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		retry:  retry,
		limits: DefaultAssetLimits,
	}
}

// WithLimits replaces the asset limits; zero fields keep the defaults
func (h *HTTPImageFetcher) WithLimits(limits AssetLimits) *HTTPImageFetcher {
	h.limits = limits.normalize()
	return h
}

// FetchImage downloads and decodes imageURL. 5xx and transport errors are
// retried; 4xx is returned immediately.
func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	var lastErr error

	for attempt := 0; attempt < h.retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(time.Duration(attempt) * h.retry.Backoff):
			}
		}

		img, retryable, err := h.fetchOnce(ctx, imageURL)
		if err == nil {
			return img, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("failed to fetch image %s: %w", imageURL, lastErr)
}

func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string) (image.Image, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/png, image/jpeg, image/gif, */*")
	req.Header.Set("User-Agent", "line-profile-studio/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, h.limits.MaxBytes)
	if err != nil {
		return nil, !errors.Is(err, ErrAssetTooLarge) && ctx.Err() == nil, err
	}
	img, err := decodeLimited(data, h.limits.MaxPixels)
	if err != nil {
		return nil, false, err
	}
	return img, false, nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return data, nil
}

func decodeLimited(data []byte, maxPixels int64) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d is over %d pixels", ErrAssetTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
