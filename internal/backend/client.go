// Package backend is the HTTP client for the profile-computing backend: image
// set upload, per-sample line analysis, and the spreadsheet export location.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/anime-shed/line-profile-studio/internal/errors"
	"github.com/anime-shed/line-profile-studio/pkg/models"
)

const (
	uploadPath   = "/upload"
	analyzePath  = "/analyze_line"
	downloadPath = "/download_excel"

	// maxResponseBytes bounds JSON replies; they only ever carry a few URLs.
	maxResponseBytes = 1 << 20
)

// File is one image selected for upload
type File struct {
	Name    string
	Content io.Reader
}

// UploadRequest holds the reference image and one or more samples
type UploadRequest struct {
	Reference File
	Samples   []File
}

// Validate mirrors the backend's own preconditions so obviously incomplete
// uploads never leave the studio
func (r UploadRequest) Validate() error {
	if r.Reference.Content == nil || strings.TrimSpace(r.Reference.Name) == "" {
		return apperrors.NewValidationError("missing reference file", nil)
	}
	if len(r.Samples) == 0 {
		return apperrors.NewValidationError("no sample files selected", nil)
	}
	for i, s := range r.Samples {
		if s.Content == nil || strings.TrimSpace(s.Name) == "" {
			return apperrors.NewValidationError(fmt.Sprintf("sample %d has no file", i), nil)
		}
	}
	return nil
}

// Client talks to the backend collaborator
type Client interface {
	Upload(ctx context.Context, req UploadRequest) (*models.UploadResponse, error)
	AnalyzeLine(ctx context.Context, req models.AnalyzeLineRequest) (*models.AnalyzeLineResponse, error)
	DownloadURL() string
}

// HTTPClient implements Client over net/http
type HTTPClient struct {
	baseURL *url.URL
	client  *http.Client
}

// NewHTTPClient creates a backend client rooted at baseURL
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}

	transport := &http.Transport{
		MaxIdleConns:           10,
		MaxIdleConnsPerHost:    2,
		IdleConnTimeout:        30 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPClient{
		baseURL: u,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}, nil
}

// BaseURL returns the backend root
func (c *HTTPClient) BaseURL() string {
	return c.baseURL.String()
}

// DownloadURL is where the export control navigates to
func (c *HTTPClient) DownloadURL() string {
	return c.endpoint(downloadPath)
}

func (c *HTTPClient) endpoint(path string) string {
	return c.baseURL.String() + path
}

// Upload posts the image set as multipart form data
func (c *HTTPClient) Upload(ctx context.Context, req UploadRequest) (*models.UploadResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := writeFormFile(mw, "reference", req.Reference); err != nil {
		return nil, apperrors.NewInternalError("failed to encode reference file", err)
	}
	for _, s := range req.Samples {
		if err := writeFormFile(mw, "samples", s); err != nil {
			return nil, apperrors.NewInternalError("failed to encode sample file", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, apperrors.NewInternalError("failed to finish multipart body", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(uploadPath), &body)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build upload request", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	var out models.UploadResponse
	if err := c.do(httpReq, "upload", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeLine requests the profiles of one sample along the selected line
func (c *HTTPClient) AnalyzeLine(ctx context.Context, req models.AnalyzeLineRequest) (*models.AnalyzeLineResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode analysis request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(analyzePath), bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build analysis request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	// a JSON null leaves the pointer nil
	var out *models.AnalyzeLineResponse
	if err := c.do(httpReq, "analyze_line", &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, apperrors.NewMalformedResponseError("analyze_line response is not a JSON object", nil)
	}
	return out, nil
}

func (c *HTTPClient) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return apperrors.NewTimeoutError(op+" request timed out", err)
		}
		return apperrors.NewNetworkError(op+" request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.NewNetworkError("failed to read "+op+" response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("%s returned status %d", op, resp.StatusCode)
		var be models.BackendError
		if json.Unmarshal(raw, &be) == nil && be.Error != "" {
			msg += ": " + be.Error
		}
		if resp.StatusCode == http.StatusNotFound {
			return apperrors.NewNotFoundError(msg, nil)
		}
		return apperrors.NewNetworkError(msg, nil)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewMalformedResponseError("could not decode "+op+" response", err)
	}
	return nil
}

func writeFormFile(mw *multipart.Writer, field string, f File) error {
	part, err := mw.CreateFormFile(field, f.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f.Content)
	return err
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
