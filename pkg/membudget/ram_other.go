//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly

package membudget

// systemMemory is unknown here; callers fall back to DefaultBytes.
func systemMemory() (uint64, bool) { return 0, false }
