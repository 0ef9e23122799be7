package brightness

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Sysfs controls a Linux backlight device through
// /sys/class/backlight/<device>/.
type Sysfs struct {
	dir string
	max int
}

// OpenSysfs binds to the backlight device at dir (for example
// /sys/class/backlight/intel_backlight). A missing device means the
// capability is absent entirely, which is a packaging defect: the error
// is loud, not swallowed.
func OpenSysfs(dir string) (*Sysfs, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("brightness capability unavailable at %s: %w", dir, err)
	}
	max, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || max <= 0 {
		return nil, fmt.Errorf("bad max_brightness in %s: %q", dir, raw)
	}
	return &Sysfs{dir: dir, max: max}, nil
}

// HasPermission reports whether the brightness file is writable by this
// process.
func (s *Sysfs) HasPermission() bool {
	return unix.Access(filepath.Join(s.dir, "brightness"), unix.W_OK) == nil
}

// RequestPermission verifies write access. File permissions cannot be
// prompted for at runtime; a denial is reported for the caller's
// settings surface to explain.
func (s *Sysfs) RequestPermission() error {
	if !s.HasPermission() {
		return ErrPermissionDenied
	}
	return nil
}

// SystemBrightness reads the current level, normalised to [0, 1].
func (s *Sysfs) SystemBrightness() (float64, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, "brightness"))
	if err != nil {
		return 0, fmt.Errorf("failed to read brightness: %w", err)
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("bad brightness value %q: %w", raw, err)
	}
	return float64(value) / float64(s.max), nil
}

// SetSystemBrightness writes a normalised level back to the device.
func (s *Sysfs) SetSystemBrightness(level float64) error {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	value := int(level*float64(s.max) + 0.5)
	err := os.WriteFile(filepath.Join(s.dir, "brightness"), []byte(strconv.Itoa(value)), 0o644)
	if err != nil {
		if os.IsPermission(err) {
			return ErrPermissionDenied
		}
		return fmt.Errorf("failed to set brightness: %w", err)
	}
	return nil
}
