package canvas

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"sync"

	"github.com/anime-shed/line-profile-studio/pkg/geometry"

	xdraw "golang.org/x/image/draw"
)

// Surface is an RGBA render target that takes the native size of the image
// loaded into it. Until an image is loaded it has no pixels and drawing on it
// is a no-op.
type Surface struct {
	mu     sync.RWMutex
	name   string
	img    *image.RGBA
	loaded bool
}

// NewSurface creates an empty surface.
func NewSurface(name string) *Surface {
	return &Surface{
		name: name,
		img:  image.NewRGBA(image.Rect(0, 0, 0, 0)),
	}
}

// Name returns the surface identifier.
func (s *Surface) Name() string {
	return s.name
}

// Load resizes the surface to the native size of src and paints src onto it.
// Like resizing a canvas element, this wipes any marks drawn earlier.
func (s *Surface) Load(src image.Image) {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)

	s.mu.Lock()
	s.img = dst
	s.loaded = true
	s.mu.Unlock()
}

// Loaded reports whether an image has been loaded.
func (s *Surface) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Size returns the surface's current pixel size.
func (s *Surface) Size() geometry.Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.img.Bounds()
	return geometry.Size{Width: b.Dx(), Height: b.Dy()}
}

// Paint runs fn with exclusive access to the pixel buffer.
func (s *Surface) Paint(fn func(dst draw.Image)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.img)
}

// Snapshot returns a copy of the current pixels.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

// EncodePNG writes the surface as PNG. When width is positive and smaller than
// the native width the image is downscaled, keeping its aspect ratio.
func (s *Surface) EncodePNG(w io.Writer, width int) error {
	snap := s.Snapshot()
	var out image.Image = snap

	b := snap.Bounds()
	if width > 0 && width < b.Dx() {
		height := b.Dy() * width / b.Dx()
		if height < 1 {
			height = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), snap, b, xdraw.Src, nil)
		out = scaled
	}

	if err := png.Encode(w, out); err != nil {
		return fmt.Errorf("encode surface %s: %w", s.name, err)
	}
	return nil
}
