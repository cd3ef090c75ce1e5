//go:build !unix

package cdf

import (
	"errors"
	"os"
)

// mapFile is unavailable off unix; callers fall back to buffered reads.
func mapFile(_ *os.File, _ int64) (*memRegion, error) {
	return nil, errors.New("mmap not supported on this platform")
}
