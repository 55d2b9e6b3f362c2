// Package selection implements the two-click line selection lifecycle as a
// pure value type. Rendering and dispatch are left to the caller, driven by
// the Effect returned from each transition.
package selection

import "github.com/anime-shed/line-profile-studio/pkg/geometry"

// Phase is the externally visible selection state.
type Phase int

const (
	// Empty means no point has been captured.
	Empty Phase = iota
	// ArmedA means the first point is captured and the next click completes the line.
	ArmedA
)

// String returns the phase name used in views and logs.
func (p Phase) String() string {
	switch p {
	case Empty:
		return "empty"
	case ArmedA:
		return "armed_a"
	default:
		return "unknown"
	}
}

// EffectKind tells the caller what a transition requires.
type EffectKind int

const (
	// StartMarked asks for the start marker to be drawn at Effect.Point.
	StartMarked EffectKind = iota + 1
	// LineCompleted asks for the end marker and connecting line to be drawn
	// and for Effect.Line to be dispatched for analysis.
	LineCompleted
)

// Effect describes the work produced by a single click.
type Effect struct {
	Kind  EffectKind
	Point geometry.Point
	Line  geometry.Line
}

// State is the selection state. The zero value is Empty.
type State struct {
	phase  Phase
	pointA geometry.Point
}

// Phase returns the current phase.
func (s State) Phase() Phase {
	return s.phase
}

// PointA returns the captured first point while armed.
func (s State) PointA() (geometry.Point, bool) {
	if s.phase != ArmedA {
		return geometry.Point{}, false
	}
	return s.pointA, true
}

// Click feeds one captured image-space point into the machine. A click while
// armed always completes the pair; there is no completed resting state, the
// returned State is Empty again.
func (s State) Click(p geometry.Point) (State, Effect) {
	if s.phase == ArmedA {
		return State{}, Effect{
			Kind:  LineCompleted,
			Point: p,
			Line:  geometry.Line{A: s.pointA, B: p},
		}
	}
	return State{phase: ArmedA, pointA: p}, Effect{Kind: StartMarked, Point: p}
}

// Reset returns the Empty state.
func (s State) Reset() State {
	return State{}
}
