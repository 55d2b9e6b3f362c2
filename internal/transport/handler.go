package transport

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/line-profile-studio/internal/backend"
	"github.com/anime-shed/line-profile-studio/internal/config"
	apperrors "github.com/anime-shed/line-profile-studio/internal/errors"
	"github.com/anime-shed/line-profile-studio/internal/logger"
	"github.com/anime-shed/line-profile-studio/pkg/geometry"
	"github.com/anime-shed/line-profile-studio/pkg/models"
)

//go:embed page/index.html
var page embed.FS

// Studio is the session surface the HTTP layer drives
type Studio interface {
	Upload(ctx context.Context, req backend.UploadRequest) (models.SessionView, error)
	Click(ctx context.Context, ev geometry.DisplayEvent, bounds geometry.Rect) (models.SessionView, error)
	SelectPoint(ctx context.Context, p geometry.Point) (models.SessionView, error)
	ShowSlide(index int) models.NavigationView
	PreviousSlide() models.NavigationView
	NextSlide() models.NavigationView
	View() models.SessionView
	ExportURL() (string, error)
	RenderReference(w io.Writer, width int) error
	RenderSample(index int, w io.Writer, width int) error
}

// MetricsSource exposes observer counters
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

func NewHandler(studio Studio, metrics MetricsSource, cfg *config.Config) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/", servePage)
	r.GET("/health", healthCheck)
	r.GET("/download_excel", downloadExport(studio))

	api := r.Group("/api")
	api.GET("/state", func(c *gin.Context) { c.JSON(http.StatusOK, studio.View()) })
	api.POST("/upload", uploadImages(studio, cfg))
	api.POST("/click", clickReference(studio))
	api.POST("/points", selectPoint(studio))
	api.POST("/slides/:target", navigate(studio))
	api.GET("/surfaces/reference", renderReference(studio))
	api.GET("/surfaces/samples/:index", renderSample(studio))
	api.GET("/metrics", func(c *gin.Context) { c.JSON(http.StatusOK, metrics.GetMetrics()) })

	return r
}

func servePage(c *gin.Context) {
	html, err := page.ReadFile("page/index.html")
	if err != nil {
		respondError(c, http.StatusInternalServerError, "page unavailable", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func uploadImages(studio Studio, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		form, err := c.MultipartForm()
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid upload form", err)
			return
		}

		references := form.File["reference"]
		samples := form.File["samples"]
		referenceNames := fileNames(references)
		sampleNames := fileNames(samples)

		logger.WithFields(logrus.Fields{
			"reference": referenceNames,
			"samples":   len(samples),
			"ip":        c.ClientIP(),
		}).Info("Processing upload")

		req, closeAll, err := buildUploadRequest(references, samples)
		defer closeAll()
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid upload form", err)
			return
		}

		view, err := studio.Upload(ctx, req)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "upload failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"epoch":              view.Epoch,
			"samples":            len(view.Samples),
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Upload completed")

		c.JSON(http.StatusOK, models.UploadView{
			ReferenceLabel: ReferenceLabel(referenceNames),
			SamplesLabel:   SamplesLabel(sampleNames),
			Session:        view,
		})
	}
}

func buildUploadRequest(references, samples []*multipart.FileHeader) (backend.UploadRequest, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	open := func(h *multipart.FileHeader) (backend.File, error) {
		f, err := h.Open()
		if err != nil {
			return backend.File{}, apperrors.NewValidationError("cannot read "+h.Filename, err)
		}
		opened = append(opened, f)
		return backend.File{Name: h.Filename, Content: f}, nil
	}

	var req backend.UploadRequest
	if len(references) > 0 {
		ref, err := open(references[0])
		if err != nil {
			return req, closeAll, err
		}
		req.Reference = ref
	}
	for _, h := range samples {
		s, err := open(h)
		if err != nil {
			return req, closeAll, err
		}
		req.Samples = append(req.Samples, s)
	}
	return req, closeAll, req.Validate()
}

func fileNames(headers []*multipart.FileHeader) []string {
	names := make([]string, 0, len(headers))
	for _, h := range headers {
		names = append(names, h.Filename)
	}
	return names
}

func clickReference(studio Studio) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ClickRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		view, err := studio.Click(c.Request.Context(), geometry.DisplayEvent{ClientX: req.ClientX, ClientY: req.ClientY}, req.Bounds)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "click rejected", err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func selectPoint(studio Studio) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.PointRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		view, err := studio.SelectPoint(c.Request.Context(), geometry.Point{X: *req.X, Y: *req.Y})
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "point rejected", err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// navigate handles previous, next and absolute slide requests. Rejected
// requests are not errors; they return the unchanged session.
func navigate(studio Studio) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := c.Param("target")

		var nav models.NavigationView
		switch target {
		case "previous":
			nav = studio.PreviousSlide()
		case "next":
			nav = studio.NextSlide()
		default:
			index, err := strconv.Atoi(target)
			if err != nil {
				respondError(c, http.StatusBadRequest, "invalid slide", apperrors.NewValidationError("slide must be previous, next or an index", err))
				return
			}
			nav = studio.ShowSlide(index)
		}
		c.JSON(http.StatusOK, nav)
	}
}

func renderReference(studio Studio) gin.HandlerFunc {
	return func(c *gin.Context) {
		writePNG(c, func(w io.Writer, width int) error {
			return studio.RenderReference(w, width)
		})
	}
}

func renderSample(studio Studio) gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid sample index", err)
			return
		}
		writePNG(c, func(w io.Writer, width int) error {
			return studio.RenderSample(index, w, width)
		})
	}
}

func writePNG(c *gin.Context, render func(w io.Writer, width int) error) {
	width := 0
	if raw := c.Query("width"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil || w < 0 {
			respondError(c, http.StatusBadRequest, "invalid width", fmt.Errorf("width %q", raw))
			return
		}
		width = w
	}

	var buf bytes.Buffer
	if err := render(&buf, width); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "surface unavailable", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func downloadExport(studio Studio) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, err := studio.ExportURL()
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "export unavailable", err)
			return
		}
		c.Redirect(http.StatusFound, target)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
