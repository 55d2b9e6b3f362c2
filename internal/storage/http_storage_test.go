package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var fastRetry = RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestHTTPImageFetcher_RetryLogic(t *testing.T) {
	pngData := encodeTestPNG(t, 4, 3)

	tests := []struct {
		name          string
		responses     []int
		expectCalls   int32
		expectError   bool
		errorContains string
	}{
		{
			name:        "Success on first attempt",
			responses:   []int{200},
			expectCalls: 1,
		},
		{
			name:        "Success on second attempt after 5xx",
			responses:   []int{500, 200},
			expectCalls: 2,
		},
		{
			name:          "4xx client error - no retry",
			responses:     []int{404},
			expectCalls:   1,
			expectError:   true,
			errorContains: "client error: status code 404",
		},
		{
			name:          "4xx after 5xx - stop on 4xx",
			responses:     []int{500, 404},
			expectCalls:   2,
			expectError:   true,
			errorContains: "client error: status code 404",
		},
		{
			name:          "All 5xx errors - retry all attempts",
			responses:     []int{500, 502, 503},
			expectCalls:   3,
			expectError:   true,
			errorContains: "server error: status code 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1) - 1
				if int(n) >= len(tt.responses) {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				status := tt.responses[n]
				if status == http.StatusOK {
					w.Header().Set("Content-Type", "image/png")
					_, _ = w.Write(pngData)
					return
				}
				w.WriteHeader(status)
				_, _ = w.Write([]byte(fmt.Sprintf("Error %d", status)))
			}))
			defer server.Close()

			fetcher := NewHTTPImageFetcherWithRetry(5*time.Second, fastRetry)
			img, err := fetcher.FetchImage(context.Background(), server.URL+"/static/a.png")

			if got := atomic.LoadInt32(&calls); got != tt.expectCalls {
				t.Errorf("Expected %d requests, got %d", tt.expectCalls, got)
			}

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, but got none")
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain %q, got: %v", tt.errorContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
				t.Errorf("Expected 4x3 image, got %v", b)
			}
		})
	}
}

func TestHTTPImageFetcher_NetworkErrorRetry(t *testing.T) {
	pngData := encodeTestPNG(t, 1, 1)
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngData)
	}))
	defer server.Close()

	fetcher := NewHTTPImageFetcherWithRetry(5*time.Second, fastRetry)
	if _, err := fetcher.FetchImage(context.Background(), server.URL); err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}
}

func TestHTTPImageFetcher_DecodeError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("definitely not an image"))
	}))
	defer server.Close()

	fetcher := NewHTTPImageFetcherWithRetry(5*time.Second, fastRetry)
	_, err := fetcher.FetchImage(context.Background(), server.URL)
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("Expected decode error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected decode failures not to be retried, got %d requests", got)
	}
}

func TestHTTPImageFetcher_Limits(t *testing.T) {
	pngData := encodeTestPNG(t, 100, 100)

	tests := []struct {
		name     string
		limits   AssetLimits
		wantErr  bool
		wantSize bool
	}{
		{name: "within limits", limits: AssetLimits{MaxBytes: 1 << 20, MaxPixels: 10_000}},
		{name: "too many bytes", limits: AssetLimits{MaxBytes: 16, MaxPixels: 10_000}, wantErr: true},
		{name: "too many pixels", limits: AssetLimits{MaxBytes: 1 << 20, MaxPixels: 9_999}, wantErr: true},
		{name: "zero keeps defaults", limits: AssetLimits{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				_, _ = w.Write(pngData)
			}))
			defer server.Close()

			fetcher := NewHTTPImageFetcherWithRetry(5*time.Second, fastRetry).WithLimits(tt.limits)
			img, err := fetcher.FetchImage(context.Background(), server.URL)
			if tt.wantErr {
				if !errors.Is(err, ErrAssetTooLarge) {
					t.Fatalf("Expected ErrAssetTooLarge, got %v", err)
				}
				if got := atomic.LoadInt32(&calls); got != 1 {
					t.Errorf("Expected oversized assets not to be retried, got %d requests", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchImage: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
				t.Errorf("Expected 100x100 image, got %v", b)
			}
		})
	}
}

func TestHTTPImageFetcher_CancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	fetcher := NewHTTPImageFetcherWithRetry(5*time.Second, RetryPolicy{Attempts: 3, Backoff: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := fetcher.FetchImage(ctx, server.URL)
	if err == nil {
		t.Fatal("Expected error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Expected cancellation to interrupt the backoff")
	}
}
