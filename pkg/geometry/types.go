// Package geometry holds the image-space types shared by the selection,
// rendering and analysis layers.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptyBounds is returned when a surface has no rendered area to map from.
var ErrEmptyBounds = errors.New("surface has empty rendered bounds")

// Point is a position in image pixels, never in display pixels.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// String formats the point for logs.
func (p Point) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", p.X, p.Y)
}

// Normalize converts the point to fractions of size. A zero dimension maps to 0.
func (p Point) Normalize(size Size) Point {
	var n Point
	if size.Width > 0 {
		n.X = p.X / float64(size.Width)
	}
	if size.Height > 0 {
		n.Y = p.Y / float64(size.Height)
	}
	return n
}

// Denormalize converts a fractional point back into pixels of size.
func (p Point) Denormalize(size Size) Point {
	return Point{
		X: p.X * float64(size.Width),
		Y: p.Y * float64(size.Height),
	}
}

// Size is the native pixel size of an image or surface.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Empty reports whether either dimension is zero or negative.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Rect is the rendered (layout) box of a surface in display pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DisplayEvent is a pointer position in display pixels.
type DisplayEvent struct {
	ClientX float64 `json:"clientX"`
	ClientY float64 `json:"clientY"`
}

// Line is an ordered pair of image-space points.
type Line struct {
	A Point `json:"pointA" yaml:"pointA"`
	B Point `json:"pointB" yaml:"pointB"`
}

// Length returns the euclidean length of the line in pixels.
func (l Line) Length() float64 {
	return math.Hypot(l.B.X-l.A.X, l.B.Y-l.A.Y)
}

// Degenerate reports whether both endpoints coincide.
func (l Line) Degenerate() bool {
	return l.A == l.B
}

// ToImageCoordinates maps a display-space pointer event onto the native pixel
// grid of a surface rendered inside bounds. This is the only place where
// layout scaling is undone.
func ToImageCoordinates(ev DisplayEvent, bounds Rect, native Size) (Point, error) {
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return Point{}, ErrEmptyBounds
	}
	scaleX := float64(native.Width) / bounds.Width
	scaleY := float64(native.Height) / bounds.Height
	return Point{
		X: (ev.ClientX - bounds.Left) * scaleX,
		Y: (ev.ClientY - bounds.Top) * scaleY,
	}, nil
}
