// Package store provides the namespaced key-value persistence capability
// used for navigation settings: a sqlite-backed implementation for the
// daemon and an in-memory one for tests.
package store

// Store is a minimal string key-value interface. Get reports a miss with
// ok=false rather than an error so callers can fall back to defaults
// without inspecting error types.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}
