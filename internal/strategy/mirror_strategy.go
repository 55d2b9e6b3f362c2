package strategy

import "github.com/anime-shed/line-profile-studio/pkg/geometry"

// MirrorStrategy decides where a point selected on the reference is drawn on
// a sample surface
type MirrorStrategy interface {
	Mirror(p geometry.Point, reference, sample geometry.Size) geometry.Point
	GetStrategyName() string
}

// PixelAlignedStrategy draws at the same image-pixel coordinates. The backend
// samples every image at the pixel coordinates it is sent, so this is what
// the analysed line actually covers.
type PixelAlignedStrategy struct{}

// NewPixelAlignedStrategy creates the default mirror strategy
func NewPixelAlignedStrategy() MirrorStrategy {
	return PixelAlignedStrategy{}
}

// Mirror returns p unchanged
func (PixelAlignedStrategy) Mirror(p geometry.Point, reference, sample geometry.Size) geometry.Point {
	return p
}

// GetStrategyName returns the strategy name
func (PixelAlignedStrategy) GetStrategyName() string {
	return "pixel"
}

// ProportionalStrategy keeps the point at the same relative position, which
// only differs from pixel alignment when sizes disagree
type ProportionalStrategy struct{}

// NewProportionalStrategy creates the proportional mirror strategy
func NewProportionalStrategy() MirrorStrategy {
	return ProportionalStrategy{}
}

// Mirror rescales p from the reference size to the sample size. An empty
// size on either side falls back to p.
func (ProportionalStrategy) Mirror(p geometry.Point, reference, sample geometry.Size) geometry.Point {
	if reference.Empty() || sample.Empty() {
		return p
	}
	return p.Normalize(reference).Denormalize(sample)
}

// GetStrategyName returns the strategy name
func (ProportionalStrategy) GetStrategyName() string {
	return "proportional"
}

// MirrorContext holds the active mirror strategy
type MirrorContext struct {
	strategy MirrorStrategy
}

// NewMirrorContext creates a new mirror context
func NewMirrorContext(strategy MirrorStrategy) *MirrorContext {
	return &MirrorContext{strategy: strategy}
}

// MirrorLine applies the strategy to both ends of l
func (c *MirrorContext) MirrorLine(l geometry.Line, reference, sample geometry.Size) geometry.Line {
	return geometry.Line{
		A: c.strategy.Mirror(l.A, reference, sample),
		B: c.strategy.Mirror(l.B, reference, sample),
	}
}

// MirrorPoint applies the strategy to p
func (c *MirrorContext) MirrorPoint(p geometry.Point, reference, sample geometry.Size) geometry.Point {
	return c.strategy.Mirror(p, reference, sample)
}

// GetCurrentStrategy returns the current strategy name
func (c *MirrorContext) GetCurrentStrategy() string {
	return c.strategy.GetStrategyName()
}
