package models

import "github.com/anime-shed/line-profile-studio/pkg/geometry"

// UploadResponse is the backend's reply to POST /upload. The order of
// Samples defines the sample index used for the rest of the session.
type UploadResponse struct {
	Reference string   `json:"reference"`
	Samples   []string `json:"samples"`
}

// AnalyzeLineRequest is sent to POST /analyze_line once per sample
type AnalyzeLineRequest struct {
	PointA      geometry.Point `json:"pointA"`
	PointB      geometry.Point `json:"pointB"`
	SampleIndex int            `json:"sampleIndex"`
}

// AnalyzeLineResponse carries optional profile asset URLs; an absent field
// leaves the matching display unchanged
type AnalyzeLineResponse struct {
	ReferenceProfile  string `json:"reference_profile,omitempty"`
	SampleProfile     string `json:"sample_profile,omitempty"`
	AbsorptionProfile string `json:"absorption_profile,omitempty"`
}

// BackendError is the error body the backend returns with non-2xx statuses
type BackendError struct {
	Error string `json:"error"`
}

// ErrorResponse represents an error response from the studio API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ClickRequest is a pointer click on the reference surface in display pixels
type ClickRequest struct {
	ClientX float64       `json:"clientX"`
	ClientY float64       `json:"clientY"`
	Bounds  geometry.Rect `json:"bounds"`
}

// PointRequest selects a point directly in image pixels
type PointRequest struct {
	X *float64 `json:"x" binding:"required"`
	Y *float64 `json:"y" binding:"required"`
}
