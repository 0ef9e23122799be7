package store

import "sync"

// Memory is a map-backed Store for tests and the navsim tool. It can be
// scripted to fail so persistence-failure paths are testable.
type Memory struct {
	mu     sync.Mutex
	values map[string]string

	// FailWrites makes Set and Remove return FailErr when set.
	FailWrites bool
	// FailReads makes Get return FailErr when set.
	FailReads bool
	// FailErr is the error returned by scripted failures.
	FailErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the stored value, or the scripted read failure.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads {
		return "", false, m.FailErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key, or returns the scripted write failure.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return m.FailErr
	}
	m.values[key] = value
	return nil
}

// Remove deletes key.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return m.FailErr
	}
	delete(m.values, key)
	return nil
}

// Len reports how many keys are stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}
