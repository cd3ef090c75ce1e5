//go:build unix

package cdf

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type mmapRegion struct {
	data []byte
}

// mapFile maps the whole file read-only. The mapping survives the file
// being closed or renamed over.
func mapFile(f *os.File, size int64) (*mmapRegion, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &mmapRegion{data: data}, nil
}

func (m *mmapRegion) Bytes() []byte { return m.data }

func (m *mmapRegion) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
