package display

import "sync"

// Panel groups the displays shared by all samples: the reference profile, the
// combined absorption profile, and the export control.
type Panel struct {
	ReferenceProfile  *Slot
	AbsorptionProfile *Slot

	mu            sync.RWMutex
	exportVisible bool
}

// NewPanel creates a panel with empty slots and a hidden export control.
func NewPanel(tokens TokenSource) *Panel {
	return &Panel{
		ReferenceProfile:  NewSlot("reference_profile", tokens),
		AbsorptionProfile: NewSlot("absorption_profile", tokens),
	}
}

// ShowExport reveals the export control.
func (p *Panel) ShowExport() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exportVisible = true
}

// ExportVisible reports whether the export control is shown.
func (p *Panel) ExportVisible() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exportVisible
}

// Reset hides the export control and clears both shared slots.
func (p *Panel) Reset() {
	p.mu.Lock()
	p.exportVisible = false
	p.mu.Unlock()

	p.ReferenceProfile.Clear()
	p.AbsorptionProfile.Clear()
}
