// Package gallery owns the ordered sample surfaces of a session and the slide
// navigation over them.
package gallery

import (
	"fmt"

	"github.com/anime-shed/line-profile-studio/internal/canvas"
	"github.com/anime-shed/line-profile-studio/internal/display"
)

// SampleEntry is one uploaded sample. Index is the backend's sample index and
// is used as a correlation key for analysis results.
type SampleEntry struct {
	Index    int
	AssetURL string
	Surface  *canvas.Surface
	Profile  *display.Slot
}

// Navigation is the rendered state of the slide controls.
type Navigation struct {
	ActiveIndex  int    `json:"activeIndex" yaml:"activeIndex"`
	Count        int    `json:"count" yaml:"count"`
	Indicator    string `json:"indicator" yaml:"indicator"`
	PrevDisabled bool   `json:"prevDisabled" yaml:"prevDisabled"`
	NextDisabled bool   `json:"nextDisabled" yaml:"nextDisabled"`
}

// Gallery is not safe for concurrent use; the session controller serialises access.
type Gallery struct {
	tokens       display.TokenSource
	referenceURL string
	reference    *canvas.Surface
	samples      []*SampleEntry
	active       int
}

// New creates an empty gallery.
func New(tokens display.TokenSource) *Gallery {
	return &Gallery{
		tokens:    tokens,
		reference: canvas.NewSurface("reference"),
	}
}

// ReplaceAll discards every existing surface and profile slot and builds a
// fresh set, one per sample in the given order. The active slide resets to 0.
func (g *Gallery) ReplaceAll(referenceURL string, sampleURLs []string) {
	g.referenceURL = referenceURL
	g.reference = canvas.NewSurface("reference")

	samples := make([]*SampleEntry, len(sampleURLs))
	for i, u := range sampleURLs {
		samples[i] = &SampleEntry{
			Index:    i,
			AssetURL: u,
			Surface:  canvas.NewSurface(fmt.Sprintf("sample_%d", i)),
			Profile:  display.NewSlot(fmt.Sprintf("sample_profile_%d", i), g.tokens),
		}
	}
	g.samples = samples
	g.active = 0
}

// Reference returns the reference surface.
func (g *Gallery) Reference() *canvas.Surface {
	return g.reference
}

// ReferenceURL returns the reference asset URL.
func (g *Gallery) ReferenceURL() string {
	return g.referenceURL
}

// Len returns the number of samples.
func (g *Gallery) Len() int {
	return len(g.samples)
}

// Samples returns the entries in index order.
func (g *Gallery) Samples() []*SampleEntry {
	out := make([]*SampleEntry, len(g.samples))
	copy(out, g.samples)
	return out
}

// Indices returns the backend sample indices in order.
func (g *Gallery) Indices() []int {
	out := make([]int, len(g.samples))
	for i, s := range g.samples {
		out[i] = s.Index
	}
	return out
}

// Sample looks up an entry by backend index.
func (g *Gallery) Sample(index int) (*SampleEntry, bool) {
	if index < 0 || index >= len(g.samples) {
		return nil, false
	}
	return g.samples[index], true
}

// ActiveIndex returns the visible slide, or false when the gallery is empty.
func (g *Gallery) ActiveIndex() (int, bool) {
	if len(g.samples) == 0 {
		return 0, false
	}
	return g.active, true
}

// IsActive reports whether index is the visible slide.
func (g *Gallery) IsActive(index int) bool {
	active, ok := g.ActiveIndex()
	return ok && active == index
}

// ShowSlide makes index the only visible slide. Out-of-range requests are
// ignored and reported as false.
func (g *Gallery) ShowSlide(index int) bool {
	if index < 0 || index >= len(g.samples) {
		return false
	}
	g.active = index
	return true
}

// Previous moves one slide back; it is a no-op on the first slide.
func (g *Gallery) Previous() bool {
	return g.ShowSlide(g.active - 1)
}

// Next moves one slide forward; it is a no-op on the last slide.
func (g *Gallery) Next() bool {
	return g.ShowSlide(g.active + 1)
}

// Navigation renders the slide controls.
func (g *Gallery) Navigation() Navigation {
	n := len(g.samples)
	if n == 0 {
		return Navigation{Indicator: "0 / 0", PrevDisabled: true, NextDisabled: true}
	}
	return Navigation{
		ActiveIndex:  g.active,
		Count:        n,
		Indicator:    fmt.Sprintf("%d / %d", g.active+1, n),
		PrevDisabled: g.active == 0,
		NextDisabled: g.active == n-1,
	}
}
