// Package membudget bounds the memory held by inputs that cannot be mapped.
//
// Standard input and s3:// objects are staged in memory before the header
// is decoded. When a command opens several of them concurrently a shared
// Budget keeps their combined size under a limit derived from system RAM.
package membudget

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// DefaultBytes is the budget used when system RAM cannot be detected.
const DefaultBytes uint64 = 4 << 30

// ErrExhausted indicates a reservation larger than the remaining budget.
var ErrExhausted = errors.New("memory budget exhausted")

// Source records how a budget's total was chosen.
type Source string

const (
	// SourceAuto is half of the detected system RAM.
	SourceAuto Source = "auto-50pct"
	// SourceDefault is DefaultBytes, used when detection failed.
	SourceDefault Source = "default"
	// SourceConfig is a size given by flag, environment or config file.
	SourceConfig Source = "config"
)

// Budget tracks reserved bytes against a fixed total.
//
// Thread Safety: all methods are safe for concurrent use.
type Budget struct {
	total  uint64
	inUse  atomic.Uint64
	source Source
}

// New returns a budget of total bytes.
func New(total uint64, source Source) *Budget {
	return &Budget{total: total, source: source}
}

// FromSystem returns a budget of half the system RAM, or DefaultBytes when
// RAM cannot be detected.
func FromSystem() *Budget {
	ram, ok := systemMemory()
	if !ok || ram == 0 {
		return New(DefaultBytes, SourceDefault)
	}
	return New(ram/2, SourceAuto)
}

// Total returns the budget size in bytes.
func (b *Budget) Total() uint64 { return b.total }

// InUse returns the reserved bytes.
func (b *Budget) InUse() uint64 { return b.inUse.Load() }

// Available returns the bytes that can still be reserved.
func (b *Budget) Available() uint64 {
	inUse := b.inUse.Load()
	if inUse >= b.total {
		return 0
	}
	return b.total - inUse
}

// Source returns how the total was chosen.
func (b *Budget) Source() Source { return b.source }

// TryReserve reserves n bytes if they fit and reports whether it did.
func (b *Budget) TryReserve(n uint64) bool {
	for {
		cur := b.inUse.Load()
		if cur+n > b.total || cur+n < cur {
			return false
		}
		if b.inUse.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

// Reserve is TryReserve returning ErrExhausted on failure.
func (b *Budget) Reserve(n uint64) error {
	if !b.TryReserve(n) {
		return fmt.Errorf("%w: %d bytes requested, %d of %d available", ErrExhausted, n, b.Available(), b.total)
	}
	return nil
}

// Release returns n bytes. Releasing more than is reserved leaves zero.
func (b *Budget) Release(n uint64) {
	for {
		cur := b.inUse.Load()
		next := uint64(0)
		if n < cur {
			next = cur - n
		}
		if b.inUse.CompareAndSwap(cur, next) {
			return
		}
	}
}

var sizeUnits = map[string]uint64{
	"":    1,
	"B":   1,
	"KB":  1000,
	"MB":  1000 * 1000,
	"GB":  1000 * 1000 * 1000,
	"TB":  1000 * 1000 * 1000 * 1000,
	"K":   1 << 10,
	"KIB": 1 << 10,
	"M":   1 << 20,
	"MIB": 1 << 20,
	"G":   1 << 30,
	"GIB": 1 << 30,
	"T":   1 << 40,
	"TIB": 1 << 40,
}

// ParseSize parses a size such as "512MiB", "4GB" or "1048576". Suffixes
// are case-insensitive; K, M, G and T are binary.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	end := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if end < 0 {
		end = len(s)
	}
	num, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	unit, ok := sizeUnits[strings.ToUpper(strings.TrimSpace(s[end:]))]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q", s, s[end:])
	}
	return uint64(num * float64(unit)), nil
}
