package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anime-shed/line-profile-studio/internal/backend"
	"github.com/anime-shed/line-profile-studio/internal/config"
	"github.com/anime-shed/line-profile-studio/internal/container"
	"github.com/anime-shed/line-profile-studio/internal/logger"
	"github.com/anime-shed/line-profile-studio/internal/session"
	"github.com/anime-shed/line-profile-studio/pkg/geometry"
	"github.com/anime-shed/line-profile-studio/pkg/models"
)

type analyzeOptions struct {
	backendURL string
	reference  string
	samples    []string
	from       string
	to         string
	mirror     string
	output     string
	renderDir  string
	width      int
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Upload images and analyse one line across every sample",
		Example: `  # Analyse a horizontal line through the middle of a 640x480 reference
  profilectl analyze --reference ref.png --samples s1.png,s2.png --from 0,240 --to 639,240

  # Write the annotated surfaces next to the JSON report
  profilectl analyze --reference ref.png --samples s1.png --from 10,10 --to 90,90 \
    --output json --render-dir ./out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.backendURL, "backend", "", "Backend base URL (defaults to BACKEND_URL)")
	cmd.Flags().StringVar(&opts.reference, "reference", "", "Reference image file (required)")
	cmd.Flags().StringSliceVar(&opts.samples, "samples", nil, "Sample image files, in order (required)")
	cmd.Flags().StringVar(&opts.from, "from", "", "Line start in reference pixels as x,y (required)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Line end in reference pixels as x,y (required)")
	cmd.Flags().StringVar(&opts.mirror, "mirror", "", "Mirror mode: pixel or proportional (defaults to MIRROR_MODE)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "yaml", "Report format: yaml or json")
	cmd.Flags().StringVar(&opts.renderDir, "render-dir", "", "Directory to write the annotated surfaces as PNG")
	cmd.Flags().IntVar(&opts.width, "width", 0, "Render width for --render-dir (0 keeps native size)")

	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("samples")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runAnalyze(ctx context.Context, out io.Writer, opts analyzeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.output != "yaml" && opts.output != "json" {
		return fmt.Errorf("unsupported output format %q", opts.output)
	}
	from, err := parsePoint(opts.from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parsePoint(opts.to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.backendURL != "" {
		cfg.BackendURL = strings.TrimRight(opts.backendURL, "/")
	}
	if opts.mirror != "" {
		cfg.MirrorMode = opts.mirror
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Logger.SetLevel(cfg.LogLevel)

	c, err := container.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	ctrl := c.Controller()

	req, closeAll, err := openUpload(opts.reference, opts.samples)
	defer closeAll()
	if err != nil {
		return err
	}

	if _, err := ctrl.Upload(ctx, req); err != nil {
		return err
	}
	ctrl.WaitDecodes()

	if !ctrl.View().Reference.Loaded {
		return fmt.Errorf("reference image could not be decoded")
	}

	for _, p := range []geometry.Point{from, to} {
		if _, err := ctrl.SelectPoint(ctx, p); err != nil {
			return err
		}
	}
	ctrl.WaitAnalysis()

	view := ctrl.View()
	logger.WithFields(logrus.Fields{
		"epoch":   view.Epoch,
		"samples": len(view.Samples),
		"export":  view.ExportVisible,
	}).Info("Analysis finished")

	if opts.renderDir != "" {
		if err := renderSurfaces(ctrl, view, opts.renderDir, opts.width); err != nil {
			return err
		}
	}

	if err := writeReport(out, opts.output, view); err != nil {
		return err
	}
	if view.LastError != "" {
		return fmt.Errorf("analysis failed: %s", view.LastError)
	}
	return nil
}

func openUpload(reference string, samples []string) (backend.UploadRequest, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	open := func(path string) (backend.File, error) {
		f, err := os.Open(path)
		if err != nil {
			return backend.File{}, err
		}
		opened = append(opened, f)
		return backend.File{Name: filepath.Base(path), Content: f}, nil
	}

	var req backend.UploadRequest
	ref, err := open(reference)
	if err != nil {
		return req, closeAll, err
	}
	req.Reference = ref
	for _, path := range samples {
		s, err := open(path)
		if err != nil {
			return req, closeAll, err
		}
		req.Samples = append(req.Samples, s)
	}
	return req, closeAll, req.Validate()
}

// parsePoint reads "x,y" in image pixels
func parsePoint(raw string) (geometry.Point, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return geometry.Point{}, fmt.Errorf("point %q must be x,y", raw)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("point %q: %w", raw, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("point %q: %w", raw, err)
	}
	return geometry.Point{X: x, Y: y}, nil
}

func renderSurfaces(ctrl *session.Controller, view models.SessionView, dir string, width int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	write := func(name string, render func(io.Writer, int) error) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := render(f, width); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	if err := write("reference.png", ctrl.RenderReference); err != nil {
		return err
	}
	for _, s := range view.Samples {
		if !s.Surface.Loaded {
			logger.WithField("sample_index", s.Index).Warn("Skipping undecoded sample")
			continue
		}
		index := s.Index
		err := write(fmt.Sprintf("sample_%d.png", index), func(w io.Writer, width int) error {
			return ctrl.RenderSample(index, w, width)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeReport(out io.Writer, format string, view models.SessionView) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
