// Package canvas provides render surfaces and the drawing primitives used to
// annotate them with selection markers.
package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/anime-shed/line-profile-studio/pkg/geometry"
)

const (
	// DefaultPointRadius is the marker radius used when callers pass radius <= 0.
	DefaultPointRadius = 3
	// LineWidth is the stroke width of connecting lines.
	LineWidth = 2
	// outlineWidth is the white ring drawn around every marker.
	outlineWidth = 1
)

var (
	// StartColor marks the first point of a selection.
	StartColor = color.RGBA{R: 0, G: 128, B: 0, A: 255}
	// EndColor marks the second point of a selection.
	EndColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	// LineColor strokes the segment between the two points.
	LineColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}

	outlineColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// DrawPoint draws a filled marker with a thin white outline centred on p.
// Existing pixels outside the marker are left untouched.
func DrawPoint(dst draw.Image, p geometry.Point, col color.Color, radius int) {
	if radius <= 0 {
		radius = DefaultPointRadius
	}
	cx := int(math.Round(p.X))
	cy := int(math.Round(p.Y))
	outer := radius + outlineWidth
	r2 := radius * radius
	o2 := outer * outer

	for dy := -outer; dy <= outer; dy++ {
		for dx := -outer; dx <= outer; dx++ {
			d2 := dx*dx + dy*dy
			switch {
			case d2 <= r2:
				setPixel(dst, cx+dx, cy+dy, col)
			case d2 <= o2:
				setPixel(dst, cx+dx, cy+dy, outlineColor)
			}
		}
	}
}

// DrawLine strokes a LineWidth-wide segment from a to b.
func DrawLine(dst draw.Image, a, b geometry.Point, col color.Color) {
	x0, y0 := int(math.Round(a.X)), int(math.Round(a.Y))
	x1, y1 := int(math.Round(b.X)), int(math.Round(b.Y))

	dx := abs(x1 - x0)
	dy := abs(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy
	for {
		setThickPixel(dst, x0, y0, LineWidth, col)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func setThickPixel(dst draw.Image, x, y, thick int, col color.Color) {
	start := -(thick - 1) / 2
	for oy := 0; oy < thick; oy++ {
		for ox := 0; ox < thick; ox++ {
			setPixel(dst, x+start+ox, y+start+oy, col)
		}
	}
}

func setPixel(dst draw.Image, x, y int, col color.Color) {
	if image.Pt(x, y).In(dst.Bounds()) {
		dst.Set(x, y, col)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
