package location

import (
	"context"
	"sync"
)

// Mock is a scriptable Provider for tests.
type Mock struct {
	mu          sync.Mutex
	denied      bool
	cached      Sample
	hasCached   bool
	fresh       Sample
	freshErr    error
	subscribers map[string]func(Sample)

	PermissionRequests int
	SubscribeCount     int
	UnsubscribeCount   int
}

// NewMock returns a Mock that grants permission and has no fix.
func NewMock() *Mock {
	return &Mock{subscribers: make(map[string]func(Sample))}
}

// DenyPermission makes subsequent permission requests fail.
func (m *Mock) DenyPermission() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied = true
}

// SetCached sets the cached last-known fix.
func (m *Mock) SetCached(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = s
	m.hasCached = true
}

// SetFresh sets the result of CurrentPosition.
func (m *Mock) SetFresh(s Sample, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fresh = s
	m.freshErr = err
}

// RequestPermission honours the scripted denial flag.
func (m *Mock) RequestPermission(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PermissionRequests++
	if m.denied {
		return ErrPermissionDenied
	}
	return nil
}

// LastKnownPosition returns the scripted cached fix.
func (m *Mock) LastKnownPosition() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cached, m.hasCached
}

// CurrentPosition returns the scripted fresh fix or error.
func (m *Mock) CurrentPosition(ctx context.Context) (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.freshErr != nil {
		return Sample{}, m.freshErr
	}
	return m.fresh, nil
}

// Subscribe registers fn and counts churn so tests can assert teardown.
func (m *Mock) Subscribe(fn func(Sample)) (unsubscribe func()) {
	id := randomID()
	m.mu.Lock()
	m.subscribers[id] = fn
	m.SubscribeCount++
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			m.UnsubscribeCount++
		}
	}
}

// Emit delivers a sample to all current subscribers.
func (m *Mock) Emit(s Sample) {
	m.mu.Lock()
	subs := make([]func(Sample), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// ActiveSubscribers reports how many subscriptions remain.
func (m *Mock) ActiveSubscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}
