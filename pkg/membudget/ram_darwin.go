//go:build darwin

package membudget

import "golang.org/x/sys/unix"

func systemMemory() (uint64, bool) {
	mem, err := unix.SysctlUint64("hw.memsize")
	return mem, err == nil
}
