package brightness

import "sync"

// Mock is a recording Controller for tests.
type Mock struct {
	mu      sync.Mutex
	level   float64
	granted bool
	denied  bool

	// SetCalls records every level passed to SetSystemBrightness.
	SetCalls []float64
	// PermissionRequests counts RequestPermission calls.
	PermissionRequests int
}

// NewMock returns a Mock at the given brightness with permission already
// granted.
func NewMock(level float64) *Mock {
	return &Mock{level: level, granted: true}
}

// NewMockDenied returns a Mock whose permission requests are refused.
func NewMockDenied(level float64) *Mock {
	return &Mock{level: level, denied: true}
}

// HasPermission reports the scripted grant state.
func (m *Mock) HasPermission() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted
}

// RequestPermission grants unless scripted to deny.
func (m *Mock) RequestPermission() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PermissionRequests++
	if m.denied {
		return ErrPermissionDenied
	}
	m.granted = true
	return nil
}

// SystemBrightness returns the current mock level.
func (m *Mock) SystemBrightness() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level, nil
}

// SetSystemBrightness records and applies the level.
func (m *Mock) SetSystemBrightness(level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.granted {
		return ErrPermissionDenied
	}
	m.level = level
	m.SetCalls = append(m.SetCalls, level)
	return nil
}

// Level returns the current level without touching call records.
func (m *Mock) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}
