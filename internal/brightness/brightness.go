// Package brightness defines the screen-brightness capability the
// display power policy actuates, with a Linux sysfs backlight
// implementation and a recording mock for tests.
package brightness

import "errors"

// ErrPermissionDenied is returned when the host refuses brightness
// control.
var ErrPermissionDenied = errors.New("brightness permission denied")

// Controller is the brightness capability. Levels are normalised to
// [0, 1].
type Controller interface {
	// HasPermission reports whether brightness writes are currently
	// allowed, without prompting.
	HasPermission() bool

	// RequestPermission prompts the host for write access. It returns
	// ErrPermissionDenied if refused.
	RequestPermission() error

	// SystemBrightness returns the current brightness in [0, 1].
	SystemBrightness() (float64, error)

	// SetSystemBrightness sets the brightness to level in [0, 1].
	SetSystemBrightness(level float64) error
}
