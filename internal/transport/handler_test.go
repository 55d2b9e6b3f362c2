package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anime-shed/line-profile-studio/internal/backend"
	"github.com/anime-shed/line-profile-studio/internal/config"
	apperrors "github.com/anime-shed/line-profile-studio/internal/errors"
	"github.com/anime-shed/line-profile-studio/pkg/geometry"
	"github.com/anime-shed/line-profile-studio/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStudio struct {
	uploadErr    error
	uploaded     []string
	clickErr     error
	lastClick    geometry.DisplayEvent
	lastBounds   geometry.Rect
	points       []geometry.Point
	slideCalls   []string
	exportURL    string
	renderErr    error
	renderWidths []int
}

func (f *fakeStudio) Upload(ctx context.Context, req backend.UploadRequest) (models.SessionView, error) {
	if f.uploadErr != nil {
		return models.SessionView{}, f.uploadErr
	}
	f.uploaded = append(f.uploaded, req.Reference.Name)
	for _, s := range req.Samples {
		f.uploaded = append(f.uploaded, s.Name)
	}
	return models.SessionView{Epoch: 1, Samples: make([]models.SampleView, len(req.Samples))}, nil
}

func (f *fakeStudio) Click(ctx context.Context, ev geometry.DisplayEvent, bounds geometry.Rect) (models.SessionView, error) {
	f.lastClick, f.lastBounds = ev, bounds
	if f.clickErr != nil {
		return models.SessionView{}, f.clickErr
	}
	return models.SessionView{Epoch: 1, Selection: models.SelectionView{Phase: "armed_a"}}, nil
}

func (f *fakeStudio) SelectPoint(ctx context.Context, p geometry.Point) (models.SessionView, error) {
	f.points = append(f.points, p)
	return models.SessionView{Epoch: 1}, nil
}

func (f *fakeStudio) ShowSlide(index int) models.NavigationView {
	f.slideCalls = append(f.slideCalls, "show")
	return models.NavigationView{Accepted: index == 1}
}

func (f *fakeStudio) PreviousSlide() models.NavigationView {
	f.slideCalls = append(f.slideCalls, "previous")
	return models.NavigationView{}
}

func (f *fakeStudio) NextSlide() models.NavigationView {
	f.slideCalls = append(f.slideCalls, "next")
	return models.NavigationView{Accepted: true}
}

func (f *fakeStudio) View() models.SessionView {
	return models.SessionView{Samples: []models.SampleView{}}
}

func (f *fakeStudio) ExportURL() (string, error) {
	if f.exportURL == "" {
		return "", apperrors.NewNotFoundError("no export", nil)
	}
	return f.exportURL, nil
}

func (f *fakeStudio) RenderReference(w io.Writer, width int) error {
	f.renderWidths = append(f.renderWidths, width)
	if f.renderErr != nil {
		return f.renderErr
	}
	_, err := w.Write([]byte("png"))
	return err
}

func (f *fakeStudio) RenderSample(index int, w io.Writer, width int) error {
	if index != 0 {
		return apperrors.NewNotFoundError("no sample", nil)
	}
	return f.RenderReference(w, width)
}

type staticMetrics map[string]interface{}

func (m staticMetrics) GetMetrics() map[string]interface{} { return m }

func newTestHandler(studio *fakeStudio) http.Handler {
	cfg := &config.Config{
		RequestTimeout:     time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	return NewHandler(studio, staticMetrics{"total_events": 3}, cfg)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func multipartUpload(t *testing.T, reference string, samples ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if reference != "" {
		part, err := mw.CreateFormFile("reference", reference)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte("ref"))
	}
	for _, s := range samples {
		part, err := mw.CreateFormFile("samples", s)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte("sample"))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthAndPage(t *testing.T) {
	h := newTestHandler(&fakeStudio{})

	w := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "available") {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}

	w = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("page status = %d", w.Code)
	}
	for _, id := range []string{"slideIndicator", "prevSlide", "nextSlide", "downloadExcel", "refProfileImage"} {
		if !strings.Contains(w.Body.String(), id) {
			t.Errorf("page is missing %s", id)
		}
	}
}

func TestState(t *testing.T) {
	w := serve(newTestHandler(&fakeStudio{}), httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var view models.SessionView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Samples == nil {
		t.Error("samples should encode as an empty list")
	}
}

func TestUpload(t *testing.T) {
	studio := &fakeStudio{}
	w := serve(newTestHandler(studio), multipartUpload(t, "ref.png", "a.png", "b.png"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var view models.UploadView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.ReferenceLabel != "ref.png" {
		t.Errorf("reference label = %q", view.ReferenceLabel)
	}
	if view.SamplesLabel != "2 file(s) chosen: a.png, b.png" {
		t.Errorf("samples label = %q", view.SamplesLabel)
	}
	if len(view.Session.Samples) != 2 {
		t.Errorf("session samples = %d", len(view.Session.Samples))
	}
	if strings.Join(studio.uploaded, ",") != "ref.png,a.png,b.png" {
		t.Errorf("uploaded = %v", studio.uploaded)
	}
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name       string
		studio     *fakeStudio
		req        func(t *testing.T) *http.Request
		wantStatus int
	}{
		{
			name:       "missing reference",
			studio:     &fakeStudio{},
			req:        func(t *testing.T) *http.Request { return multipartUpload(t, "", "a.png") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing samples",
			studio:     &fakeStudio{},
			req:        func(t *testing.T) *http.Request { return multipartUpload(t, "ref.png") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "not multipart",
			studio: &fakeStudio{},
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("{}"))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "backend unreachable",
			studio:     &fakeStudio{uploadErr: apperrors.NewNetworkError("upload failed", nil)},
			req:        func(t *testing.T) *http.Request { return multipartUpload(t, "ref.png", "a.png") },
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "malformed backend reply",
			studio:     &fakeStudio{uploadErr: apperrors.NewMalformedResponseError("bad", nil)},
			req:        func(t *testing.T) *http.Request { return multipartUpload(t, "ref.png", "a.png") },
			wantStatus: apperrors.GetStatusCode(apperrors.NewMalformedResponseError("bad", nil)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newTestHandler(tt.studio), tt.req(t))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			var resp models.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error == "" || resp.Message == "" {
				t.Errorf("incomplete error body: %+v", resp)
			}
		})
	}
}

func TestClick(t *testing.T) {
	studio := &fakeStudio{}
	body := `{"clientX": 60, "clientY": 35, "bounds": {"left": 10, "top": 10, "width": 200, "height": 100}}`
	req := httptest.NewRequest(http.MethodPost, "/api/click", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := serve(newTestHandler(studio), req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if studio.lastClick != (geometry.DisplayEvent{ClientX: 60, ClientY: 35}) {
		t.Errorf("click = %+v", studio.lastClick)
	}
	if studio.lastBounds != (geometry.Rect{Left: 10, Top: 10, Width: 200, Height: 100}) {
		t.Errorf("bounds = %+v", studio.lastBounds)
	}
}

func TestClick_Rejected(t *testing.T) {
	studio := &fakeStudio{clickErr: apperrors.NewValidationError("reference not loaded", nil)}
	req := httptest.NewRequest(http.MethodPost, "/api/click", strings.NewReader(`{"clientX": 1, "clientY": 1}`))
	req.Header.Set("Content-Type", "application/json")

	w := serve(newTestHandler(studio), req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSelectPoint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid", body: `{"x": 3.5, "y": 0}`, wantStatus: http.StatusOK},
		{name: "missing y", body: `{"x": 3.5}`, wantStatus: http.StatusBadRequest},
		{name: "not json", body: `x=1`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			studio := &fakeStudio{}
			req := httptest.NewRequest(http.MethodPost, "/api/points", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := serve(newTestHandler(studio), req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && (len(studio.points) != 1 || studio.points[0] != (geometry.Point{X: 3.5, Y: 0})) {
				t.Errorf("points = %+v", studio.points)
			}
		})
	}
}

func TestNavigate(t *testing.T) {
	tests := []struct {
		target       string
		wantStatus   int
		wantCall     string
		wantAccepted bool
	}{
		{target: "previous", wantStatus: http.StatusOK, wantCall: "previous"},
		{target: "next", wantStatus: http.StatusOK, wantCall: "next", wantAccepted: true},
		{target: "1", wantStatus: http.StatusOK, wantCall: "show", wantAccepted: true},
		{target: "7", wantStatus: http.StatusOK, wantCall: "show"},
		{target: "last", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			studio := &fakeStudio{}
			w := serve(newTestHandler(studio), httptest.NewRequest(http.MethodPost, "/api/slides/"+tt.target, nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				if len(studio.slideCalls) != 0 {
					t.Errorf("unexpected calls %v", studio.slideCalls)
				}
				return
			}
			if len(studio.slideCalls) != 1 || studio.slideCalls[0] != tt.wantCall {
				t.Errorf("calls = %v, want %s", studio.slideCalls, tt.wantCall)
			}
			var nav models.NavigationView
			if err := json.Unmarshal(w.Body.Bytes(), &nav); err != nil {
				t.Fatal(err)
			}
			if nav.Accepted != tt.wantAccepted {
				t.Errorf("accepted = %v", nav.Accepted)
			}
		})
	}
}

func TestSurfaces(t *testing.T) {
	studio := &fakeStudio{}
	h := newTestHandler(studio)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/surfaces/reference?width=320", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("reference: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("surfaces must not be cached")
	}
	if len(studio.renderWidths) != 1 || studio.renderWidths[0] != 320 {
		t.Errorf("widths = %v", studio.renderWidths)
	}

	if w := serve(h, httptest.NewRequest(http.MethodGet, "/api/surfaces/samples/0", nil)); w.Code != http.StatusOK {
		t.Errorf("sample 0: %d", w.Code)
	}
	if w := serve(h, httptest.NewRequest(http.MethodGet, "/api/surfaces/samples/4", nil)); w.Code != http.StatusNotFound {
		t.Errorf("sample 4: %d", w.Code)
	}
	if w := serve(h, httptest.NewRequest(http.MethodGet, "/api/surfaces/samples/x", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("sample x: %d", w.Code)
	}
	if w := serve(h, httptest.NewRequest(http.MethodGet, "/api/surfaces/reference?width=-2", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("negative width: %d", w.Code)
	}
}

func TestSurfaces_NotDecoded(t *testing.T) {
	studio := &fakeStudio{renderErr: apperrors.NewNotFoundError("reference has not been decoded", nil)}
	w := serve(newTestHandler(studio), httptest.NewRequest(http.MethodGet, "/api/surfaces/reference", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDownloadExport(t *testing.T) {
	w := serve(newTestHandler(&fakeStudio{}), httptest.NewRequest(http.MethodGet, "/download_excel", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("hidden export: status = %d", w.Code)
	}

	studio := &fakeStudio{exportURL: "http://backend:5000/download_excel"}
	w = serve(newTestHandler(studio), httptest.NewRequest(http.MethodGet, "/download_excel", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != studio.exportURL {
		t.Errorf("location = %q", loc)
	}
}

func TestMetrics(t *testing.T) {
	w := serve(newTestHandler(&fakeStudio{}), httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "total_events") {
		t.Fatalf("metrics: %d %s", w.Code, w.Body.String())
	}
}

func TestRequestSizeLimit(t *testing.T) {
	cfg := &config.Config{RequestTimeout: time.Second, MaxRequestBodySize: 64}
	h := NewHandler(&fakeStudio{}, staticMetrics{}, cfg)

	w := serve(h, multipartUpload(t, "ref.png", "a.png", "b.png", "c.png"))
	if w.Code == http.StatusOK {
		t.Fatal("oversized upload should be rejected")
	}
}

func TestLabels(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"no reference", ReferenceLabel(nil), "No file chosen"},
		{"reference", ReferenceLabel([]string{"ref.tif"}), "ref.tif"},
		{"no samples", SamplesLabel(nil), "No files chosen"},
		{"one sample", SamplesLabel([]string{"a.png"}), "1 file(s) chosen: a.png"},
		{"many samples", SamplesLabel([]string{"a.png", "b.png", "c.png"}), "3 file(s) chosen: a.png, b.png, c.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
