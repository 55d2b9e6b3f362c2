// Package session owns the studio's single logical session: the uploaded image
// set, the line selection, the gallery and the analysis results. Every
// asynchronous result carries the epoch it was started under and is dropped
// once a newer upload has replaced the session.
package session

import (
	"context"
	"fmt"
	"image/draw"
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/line-profile-studio/internal/analysis"
	"github.com/anime-shed/line-profile-studio/internal/backend"
	"github.com/anime-shed/line-profile-studio/internal/canvas"
	"github.com/anime-shed/line-profile-studio/internal/display"
	apperrors "github.com/anime-shed/line-profile-studio/internal/errors"
	"github.com/anime-shed/line-profile-studio/internal/gallery"
	"github.com/anime-shed/line-profile-studio/internal/logger"
	"github.com/anime-shed/line-profile-studio/internal/observer"
	"github.com/anime-shed/line-profile-studio/internal/repository"
	"github.com/anime-shed/line-profile-studio/internal/selection"
	"github.com/anime-shed/line-profile-studio/internal/strategy"
	"github.com/anime-shed/line-profile-studio/internal/worker"
	"github.com/anime-shed/line-profile-studio/pkg/geometry"
	"github.com/anime-shed/line-profile-studio/pkg/models"
)

// Options wires a Controller
type Options struct {
	Client          backend.Client
	Assets          repository.AssetRepository
	Mirror          strategy.MirrorStrategy
	Events          observer.Subject
	Tokens          display.TokenSource
	AnalysisTimeout time.Duration
	DecodeWorkers   int
}

// Controller is safe for concurrent use. Mutations are serialised on mu;
// analysis runs are serialised on a single-worker queue so at most one
// backend analysis request is in flight across all runs.
type Controller struct {
	mu        sync.Mutex
	epoch     uint64
	gallery   *gallery.Gallery
	selection selection.State
	panel     *display.Panel
	analyzing int
	lastError string

	client       backend.Client
	assets       repository.AssetRepository
	mirror       *strategy.MirrorContext
	orchestrator *analysis.Orchestrator
	events       observer.Subject

	analysisQueue *worker.Pool
	decodes       *worker.Pool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a controller with an empty session and starts its
// background workers
func NewController(opts Options) *Controller {
	if opts.Events == nil {
		opts.Events = observer.Discard{}
	}
	if opts.Tokens == nil {
		opts.Tokens = display.NewClockTokens()
	}
	if opts.Mirror == nil {
		opts.Mirror = strategy.NewPixelAlignedStrategy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		gallery:       gallery.New(opts.Tokens),
		panel:         display.NewPanel(opts.Tokens),
		client:        opts.Client,
		assets:        opts.Assets,
		mirror:        strategy.NewMirrorContext(opts.Mirror),
		orchestrator:  analysis.NewOrchestrator(opts.Client, opts.AnalysisTimeout, opts.Events),
		events:        opts.Events,
		analysisQueue: worker.NewPool(1),
		decodes:       worker.NewPool(opts.DecodeWorkers),
		ctx:           ctx,
		cancel:        cancel,
	}
	c.analysisQueue.Start()
	c.decodes.Start()
	return c
}

// Upload sends the image set to the backend and, on success, replaces the
// whole session. On failure the previous session is left untouched.
func (c *Controller) Upload(ctx context.Context, req backend.UploadRequest) (models.SessionView, error) {
	start := time.Now()
	c.events.NotifyObservers(ctx, observer.SessionEvent{
		EventType:   observer.UploadStarted,
		Epoch:       c.currentEpoch(),
		SampleIndex: observer.NoSample,
		Metadata:    map[string]interface{}{"samples": len(req.Samples)},
	})

	resp, err := c.client.Upload(ctx, req)
	if err == nil {
		err = c.validateUpload(resp)
	}
	if err != nil {
		c.events.NotifyObservers(ctx, observer.SessionEvent{
			EventType:    observer.UploadFailed,
			Epoch:        c.currentEpoch(),
			SampleIndex:  observer.NoSample,
			Duration:     time.Since(start),
			ErrorMessage: err.Error(),
		})
		return models.SessionView{}, err
	}

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.panel.Reset()
	c.selection = c.selection.Reset()
	c.gallery.ReplaceAll(resp.Reference, resp.Samples)
	c.lastError = ""

	reference := c.gallery.Reference()
	samples := c.gallery.Samples()
	c.mu.Unlock()

	c.enqueueDecode(epoch, reference, resp.Reference, observer.NoSample)
	for _, s := range samples {
		c.enqueueDecode(epoch, s.Surface, s.AssetURL, s.Index)
	}

	c.events.NotifyObservers(ctx, observer.SessionEvent{
		EventType:   observer.UploadCompleted,
		Epoch:       epoch,
		SampleIndex: observer.NoSample,
		AssetURL:    resp.Reference,
		Duration:    time.Since(start),
		Success:     true,
		Metadata:    map[string]interface{}{"samples": len(resp.Samples)},
	})
	return c.View(), nil
}

func (c *Controller) validateUpload(resp *models.UploadResponse) error {
	if resp == nil {
		return apperrors.NewMalformedResponseError("empty upload response", nil)
	}
	if err := c.assets.ValidateAssetURL(resp.Reference); err != nil {
		return apperrors.NewMalformedResponseError("upload response has no usable reference", err)
	}
	if len(resp.Samples) == 0 {
		return apperrors.NewMalformedResponseError("upload response lists no samples", nil)
	}
	for i, s := range resp.Samples {
		if err := c.assets.ValidateAssetURL(s); err != nil {
			return apperrors.NewMalformedResponseError(fmt.Sprintf("upload response sample %d is unusable", i), err)
		}
	}
	return nil
}

func (c *Controller) enqueueDecode(epoch uint64, surface *canvas.Surface, assetURL string, index int) {
	c.decodes.Submit(func() {
		c.decode(epoch, surface, assetURL, index)
	})
}

// decode fetches one asset and sizes its surface. Completions arrive in any
// order; each only touches its own surface.
func (c *Controller) decode(epoch uint64, surface *canvas.Surface, assetURL string, index int) {
	start := time.Now()
	img, err := c.assets.FetchImage(c.ctx, assetURL)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		logger.WithFields(logrus.Fields{
			"epoch":   epoch,
			"surface": surface.Name(),
		}).Debug("Discarding decode for replaced session")
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.events.NotifyObservers(c.ctx, observer.SessionEvent{
			EventType:    observer.AssetDecodeFailed,
			Epoch:        epoch,
			SampleIndex:  index,
			AssetURL:     assetURL,
			Duration:     time.Since(start),
			ErrorMessage: err.Error(),
		})
		return
	}

	surface.Load(img)
	size := surface.Size()
	mismatches := c.dimensionMismatchesLocked(surface)
	c.mu.Unlock()

	c.events.NotifyObservers(c.ctx, observer.SessionEvent{
		EventType:   observer.AssetDecoded,
		Epoch:       epoch,
		SampleIndex: index,
		AssetURL:    assetURL,
		Duration:    time.Since(start),
		Success:     true,
		Metadata:    map[string]interface{}{"width": size.Width, "height": size.Height},
	})
	for _, m := range mismatches {
		m.Epoch = epoch
		c.events.NotifyObservers(c.ctx, m)
	}
}

// dimensionMismatchesLocked compares a freshly loaded surface against the
// surfaces it is mirrored to or from
func (c *Controller) dimensionMismatchesLocked(loaded *canvas.Surface) []observer.SessionEvent {
	reference := c.gallery.Reference()
	if !reference.Loaded() {
		return nil
	}
	refSize := reference.Size()

	var out []observer.SessionEvent
	for _, s := range c.gallery.Samples() {
		if loaded != reference && loaded != s.Surface {
			continue
		}
		if !s.Surface.Loaded() {
			continue
		}
		if size := s.Surface.Size(); size != refSize {
			out = append(out, observer.SessionEvent{
				EventType:   observer.DimensionMismatch,
				SampleIndex: s.Index,
				AssetURL:    s.AssetURL,
				Metadata: map[string]interface{}{
					"reference": fmt.Sprintf("%dx%d", refSize.Width, refSize.Height),
					"sample":    fmt.Sprintf("%dx%d", size.Width, size.Height),
					"mirror":    c.mirror.GetCurrentStrategy(),
				},
			})
		}
	}
	return out
}

// Click maps a pointer event on the rendered reference surface into image
// pixels and feeds it to the selection
func (c *Controller) Click(ctx context.Context, ev geometry.DisplayEvent, bounds geometry.Rect) (models.SessionView, error) {
	c.mu.Lock()
	reference := c.gallery.Reference()
	if !reference.Loaded() {
		c.mu.Unlock()
		return models.SessionView{}, apperrors.NewValidationError("reference image is not loaded yet", nil)
	}
	p, err := geometry.ToImageCoordinates(ev, bounds, reference.Size())
	if err != nil {
		c.mu.Unlock()
		return models.SessionView{}, apperrors.NewValidationError("cannot map click onto reference", err)
	}
	view, run, err := c.selectLocked(p)
	c.mu.Unlock()
	return c.dispatch(view, run, err)
}

// SelectPoint feeds a point already in image pixels to the selection
func (c *Controller) SelectPoint(ctx context.Context, p geometry.Point) (models.SessionView, error) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return models.SessionView{}, apperrors.NewValidationError("point coordinates must be finite", nil)
	}

	c.mu.Lock()
	view, run, err := c.selectLocked(p)
	c.mu.Unlock()
	return c.dispatch(view, run, err)
}

// selectLocked applies one selection click and draws its marks. A completed
// line is returned as a run for the caller to enqueue once mu is released.
func (c *Controller) selectLocked(p geometry.Point) (models.SessionView, *analysis.Run, error) {
	if c.epoch == 0 {
		return models.SessionView{}, nil, apperrors.NewValidationError("upload an image set before selecting a line", nil)
	}

	next, effect := c.selection.Click(p)
	c.selection = next

	reference := c.gallery.Reference()
	refSize := reference.Size()

	switch effect.Kind {
	case selection.StartMarked:
		reference.Paint(func(dst draw.Image) {
			canvas.DrawPoint(dst, effect.Point, canvas.StartColor, 0)
		})
		for _, s := range c.gallery.Samples() {
			mp := c.mirror.MirrorPoint(effect.Point, refSize, s.Surface.Size())
			s.Surface.Paint(func(dst draw.Image) {
				canvas.DrawPoint(dst, mp, canvas.StartColor, 0)
			})
		}

	case selection.LineCompleted:
		line := effect.Line
		reference.Paint(func(dst draw.Image) {
			canvas.DrawLine(dst, line.A, line.B, canvas.LineColor)
			canvas.DrawPoint(dst, line.B, canvas.EndColor, 0)
		})
		for _, s := range c.gallery.Samples() {
			ml := c.mirror.MirrorLine(line, refSize, s.Surface.Size())
			s.Surface.Paint(func(dst draw.Image) {
				canvas.DrawLine(dst, ml.A, ml.B, canvas.LineColor)
				canvas.DrawPoint(dst, ml.B, canvas.EndColor, 0)
			})
		}

		if line.Degenerate() {
			logger.WithField("line", line.A.String()).Warn("Zero-length line selected")
		}
		c.analyzing++
		c.lastError = ""
		run := &analysis.Run{
			Epoch:   c.epoch,
			Line:    line,
			Samples: c.gallery.Indices(),
		}
		return c.viewLocked(), run, nil
	}

	return c.viewLocked(), nil, nil
}

// dispatch queues a completed line. The queue is only touched without mu
// held, since a running analysis needs mu to apply its results.
func (c *Controller) dispatch(view models.SessionView, run *analysis.Run, err error) (models.SessionView, error) {
	if err != nil || run == nil {
		return view, err
	}
	r := *run
	if !c.analysisQueue.Submit(func() { c.runAnalysis(r) }) {
		c.mu.Lock()
		c.analyzing--
		c.mu.Unlock()
		return models.SessionView{}, apperrors.NewInternalError("analysis queue is closed", nil)
	}
	return view, nil
}

func (c *Controller) runAnalysis(run analysis.Run) {
	err := c.orchestrator.Execute(c.ctx, run, c)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyzing--
	if err == nil {
		return
	}

	entry := logger.WithFields(logrus.Fields{
		"epoch":   run.Epoch,
		"samples": len(run.Samples),
	}).WithError(err)
	if apperrors.IsType(err, apperrors.ErrorTypeStaleSession) {
		entry.Info("Analysis run outlived its session")
		return
	}
	entry.Warn("Analysis run aborted")
	if run.Epoch == c.epoch {
		c.lastError = err.Error()
	}
}

// Current reports whether epoch is still the live session
func (c *Controller) Current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return epoch == c.epoch
}

// Apply routes one analysis response into the display slots
func (c *Controller) Apply(epoch uint64, sampleIndex int, result *models.AnalyzeLineResponse) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return false
	}

	if result.ReferenceProfile != "" {
		c.panel.ReferenceProfile.Set(c.resolve(result.ReferenceProfile))
	}
	if result.SampleProfile != "" {
		if entry, ok := c.gallery.Sample(sampleIndex); ok {
			entry.Profile.Set(c.resolve(result.SampleProfile))
		} else {
			logger.WithField("sample_index", sampleIndex).Debug("No profile display for sample")
		}
	}
	if result.AbsorptionProfile != "" {
		c.panel.AbsorptionProfile.Set(c.resolve(result.AbsorptionProfile))
	}
	return true
}

// Finish reveals the export control after a full pass
func (c *Controller) Finish(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return false
	}
	c.panel.ShowExport()
	return true
}

func (c *Controller) resolve(assetURL string) string {
	resolved, err := c.assets.ResolveURL(assetURL)
	if err != nil {
		logger.WithError(err).WithField("asset_url", assetURL).Warn("Displaying unresolved asset URL")
		return assetURL
	}
	return resolved
}

// ShowSlide makes index the visible slide. Accepted is false when index is
// out of range; the session is unchanged then.
func (c *Controller) ShowSlide(index int) models.NavigationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.gallery.ShowSlide(index)
	return models.NavigationView{Accepted: ok, Session: c.viewLocked()}
}

// PreviousSlide moves one slide back
func (c *Controller) PreviousSlide() models.NavigationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.gallery.Previous()
	return models.NavigationView{Accepted: ok, Session: c.viewLocked()}
}

// NextSlide moves one slide forward
func (c *Controller) NextSlide() models.NavigationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.gallery.Next()
	return models.NavigationView{Accepted: ok, Session: c.viewLocked()}
}

// View returns the full page state
func (c *Controller) View() models.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() models.SessionView {
	v := models.SessionView{
		Epoch:                   c.epoch,
		Samples:                 []models.SampleView{},
		Navigation:              c.gallery.Navigation(),
		Selection:               models.SelectionView{Phase: c.selection.Phase().String()},
		ReferenceProfileSource:  c.panel.ReferenceProfile.Source(),
		AbsorptionProfileSource: c.panel.AbsorptionProfile.Source(),
		ExportVisible:           c.panel.ExportVisible(),
		Analyzing:               c.analyzing > 0,
		LastError:               c.lastError,
	}
	if p, ok := c.selection.PointA(); ok {
		v.Selection.PointA = &p
	}
	if v.ExportVisible {
		v.ExportURL = c.client.DownloadURL()
	}

	if c.epoch > 0 {
		v.Reference = c.surfaceView(c.gallery.Reference(), c.gallery.ReferenceURL())
	}
	for _, s := range c.gallery.Samples() {
		v.Samples = append(v.Samples, models.SampleView{
			Index:         s.Index,
			Surface:       c.surfaceView(s.Surface, s.AssetURL),
			Active:        c.gallery.IsActive(s.Index),
			ProfileSource: s.Profile.Source(),
		})
	}
	return v
}

func (c *Controller) surfaceView(s *canvas.Surface, assetURL string) models.SurfaceView {
	return models.SurfaceView{
		AssetURL: c.resolve(assetURL),
		Size:     s.Size(),
		Loaded:   s.Loaded(),
	}
}

// ExportURL returns the backend's export location once a pass has completed
func (c *Controller) ExportURL() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.panel.ExportVisible() {
		return "", apperrors.NewNotFoundError("export is available after a completed analysis pass", nil)
	}
	return c.client.DownloadURL(), nil
}

// RenderReference writes the annotated reference surface as PNG
func (c *Controller) RenderReference(w io.Writer, width int) error {
	c.mu.Lock()
	surface := c.gallery.Reference()
	c.mu.Unlock()
	return render(surface, w, width)
}

// RenderSample writes an annotated sample surface as PNG
func (c *Controller) RenderSample(index int, w io.Writer, width int) error {
	c.mu.Lock()
	entry, ok := c.gallery.Sample(index)
	c.mu.Unlock()
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("no sample %d in this session", index), nil)
	}
	return render(entry.Surface, w, width)
}

func render(s *canvas.Surface, w io.Writer, width int) error {
	if !s.Loaded() {
		return apperrors.NewNotFoundError(s.Name()+" has not been decoded", nil)
	}
	if err := s.EncodePNG(w, width); err != nil {
		return apperrors.NewInternalError("failed to encode "+s.Name(), err)
	}
	return nil
}

// WaitDecodes blocks until every queued asset decode has finished
func (c *Controller) WaitDecodes() {
	c.decodes.Wait()
}

// WaitAnalysis blocks until every queued analysis run has finished
func (c *Controller) WaitAnalysis() {
	c.analysisQueue.Wait()
}

// Wait blocks until all background work has finished
func (c *Controller) Wait() {
	c.WaitDecodes()
	c.WaitAnalysis()
}

// Stats reports the background queues' counters
func (c *Controller) Stats() map[string]worker.Stats {
	return map[string]worker.Stats{
		"analysis": c.analysisQueue.GetStats(),
		"decode":   c.decodes.GetStats(),
	}
}

// Close cancels in-flight work and stops the workers
func (c *Controller) Close() {
	c.cancel()
	c.analysisQueue.Close()
	c.decodes.Close()
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}
