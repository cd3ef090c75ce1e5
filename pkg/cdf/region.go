package cdf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// region is the read-only byte range a file was opened from: a memory
// mapping or an in-memory buffer. Slices handed out by Bytes stay valid
// until Close.
type region interface {
	Bytes() []byte
	Close() error
}

type memRegion struct {
	data []byte
}

func (m *memRegion) Bytes() []byte { return m.data }
func (m *memRegion) Close() error  { return nil }

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// IsZstd reports whether data starts with a zstd frame.
func IsZstd(data []byte) bool { return bytes.HasPrefix(data, zstdMagic) }

// readRegion buffers r into memory, transparently decompressing zstd input.
func readRegion(r io.Reader) (*memRegion, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peek input: %w", err)
	}
	if IsZstd(head) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		data, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return &memRegion{data: data}, nil
	}
	data, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return &memRegion{data: data}, nil
}

// openRegion maps path when allowed and possible, falling back to reading
// it into memory (pipes, empty files, compressed input, failed mappings).
func openRegion(path string, useMmap bool) (region, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("stat file: %w", err)
	}

	if useMmap && info.Mode().IsRegular() && info.Size() > 0 {
		var head [4]byte
		if _, err := f.ReadAt(head[:], 0); err == nil && !IsZstd(head[:]) {
			if m, err := mapFile(f, info.Size()); err == nil {
				return m, true, nil
			}
		}
	}

	m, err := readRegion(f)
	if err != nil {
		return nil, false, err
	}
	return m, false, nil
}
