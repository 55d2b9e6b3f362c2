package strategy

import (
	"testing"

	"github.com/anime-shed/line-profile-studio/pkg/geometry"
)

func TestPixelAlignedStrategy(t *testing.T) {
	s := NewPixelAlignedStrategy()
	p := geometry.Point{X: 150, Y: 75}
	got := s.Mirror(p, geometry.Size{Width: 300, Height: 150}, geometry.Size{Width: 600, Height: 300})
	if got != p {
		t.Errorf("Expected %v, got %v", p, got)
	}
	if s.GetStrategyName() != "pixel" {
		t.Errorf("unexpected name %q", s.GetStrategyName())
	}
}

func TestProportionalStrategy(t *testing.T) {
	s := NewProportionalStrategy()

	tests := []struct {
		name      string
		p         geometry.Point
		reference geometry.Size
		sample    geometry.Size
		want      geometry.Point
	}{
		{"same size", geometry.Point{X: 10, Y: 20}, geometry.Size{Width: 100, Height: 100}, geometry.Size{Width: 100, Height: 100}, geometry.Point{X: 10, Y: 20}},
		{"double size", geometry.Point{X: 150, Y: 75}, geometry.Size{Width: 300, Height: 150}, geometry.Size{Width: 600, Height: 300}, geometry.Point{X: 300, Y: 150}},
		{"empty sample", geometry.Point{X: 5, Y: 5}, geometry.Size{Width: 10, Height: 10}, geometry.Size{}, geometry.Point{X: 5, Y: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Mirror(tt.p, tt.reference, tt.sample); got != tt.want {
				t.Errorf("Mirror = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMirrorContext(t *testing.T) {
	ctx := NewMirrorContext(NewProportionalStrategy())
	line := geometry.Line{A: geometry.Point{X: 0, Y: 0}, B: geometry.Point{X: 50, Y: 25}}
	got := ctx.MirrorLine(line, geometry.Size{Width: 100, Height: 50}, geometry.Size{Width: 200, Height: 100})
	want := geometry.Line{A: geometry.Point{X: 0, Y: 0}, B: geometry.Point{X: 100, Y: 50}}
	if got != want {
		t.Errorf("MirrorLine = %+v, want %+v", got, want)
	}
	if ctx.GetCurrentStrategy() != "proportional" {
		t.Errorf("unexpected strategy %q", ctx.GetCurrentStrategy())
	}
}
