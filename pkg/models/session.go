package models

import (
	"github.com/anime-shed/line-profile-studio/internal/gallery"
	"github.com/anime-shed/line-profile-studio/pkg/geometry"
)

// SurfaceView describes a render surface to the page
type SurfaceView struct {
	AssetURL string        `json:"assetUrl" yaml:"assetUrl"`
	Size     geometry.Size `json:"size" yaml:"size"`
	Loaded   bool          `json:"loaded" yaml:"loaded"`
}

// SampleView is one slide of the gallery
type SampleView struct {
	Index         int         `json:"index" yaml:"index"`
	Surface       SurfaceView `json:"surface" yaml:"surface"`
	Active        bool        `json:"active" yaml:"active"`
	ProfileSource string      `json:"profileSource,omitempty" yaml:"profileSource,omitempty"`
}

// SelectionView is the selection state machine as shown to the page
type SelectionView struct {
	Phase  string          `json:"phase" yaml:"phase"`
	PointA *geometry.Point `json:"pointA,omitempty" yaml:"pointA,omitempty"`
}

// SessionView is the full page state
type SessionView struct {
	Epoch                   uint64             `json:"epoch" yaml:"epoch"`
	Reference               SurfaceView        `json:"reference" yaml:"reference"`
	Samples                 []SampleView       `json:"samples" yaml:"samples"`
	Navigation              gallery.Navigation `json:"navigation" yaml:"navigation"`
	Selection               SelectionView      `json:"selection" yaml:"selection"`
	ReferenceProfileSource  string             `json:"referenceProfileSource,omitempty" yaml:"referenceProfileSource,omitempty"`
	AbsorptionProfileSource string             `json:"absorptionProfileSource,omitempty" yaml:"absorptionProfileSource,omitempty"`
	ExportVisible           bool               `json:"exportVisible" yaml:"exportVisible"`
	ExportURL               string             `json:"exportUrl,omitempty" yaml:"exportUrl,omitempty"`
	Analyzing               bool               `json:"analyzing" yaml:"analyzing"`
	LastError               string             `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// UploadView is returned by the studio's upload endpoint
type UploadView struct {
	ReferenceLabel string      `json:"referenceLabel"`
	SamplesLabel   string      `json:"samplesLabel"`
	Session        SessionView `json:"session"`
}

// NavigationView is returned by slide endpoints; Accepted is false when the
// requested slide was out of range and nothing changed
type NavigationView struct {
	Accepted bool        `json:"accepted"`
	Session  SessionView `json:"session"`
}
