package overlay

import (
	"image"
	"sync"
	"time"

	"github.com/mjpegsw/mjpegsw/internal/logger"
)

// Manager renders an ordered set of widgets onto frames
type Manager struct {
	widgets []Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates an enabled overlay manager
func NewManager(widgets ...Widget) *Manager {
	return &Manager{
		widgets: widgets,
		enabled: true,
	}
}

// Add appends a widget; widgets render in the order they were added
func (m *Manager) Add(widget Widget) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().Str("widget", widget.Name()).Msg("Added widget")
}

// Len returns the number of widgets
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.widgets)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws every widget onto img. A failing widget is logged and skipped.
func (m *Manager) Render(img *image.RGBA, at time.Time) {
	m.mu.RLock()
	if !m.enabled {
		m.mu.RUnlock()
		return
	}
	widgets := make([]Widget, len(m.widgets))
	copy(widgets, m.widgets)
	m.mu.RUnlock()

	for _, widget := range widgets {
		if err := widget.Render(img, at); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("widget", widget.Name()).Msg("Failed to render widget")
		}
	}
}
