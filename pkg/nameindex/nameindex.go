// Package nameindex provides an immutable name -> position index backed by
// a minimal perfect hash function.
//
// An Index is built once from a fixed list of names (variable names read
// from a file header) and answers lookups without a map. Names are hashed to
// uint64 keys with FNV-1a and placed with bbhash; every hit is verified
// against the stored name, so unknown names never alias a real entry.
package nameindex

import (
	"fmt"
	"hash/fnv"

	"github.com/relab/bbhash"
)

// Index maps each distinct name to its position in the build list.
//
// Thread Safety: Index is immutable after Build and safe for concurrent
// lookups.
type Index struct {
	mph   *bbhash.BBHash2
	slots []int // mph position -> list position
	names []string
}

// Build indexes names. When a name repeats, lookups return its first
// position.
func Build(names []string) (*Index, error) {
	idx := &Index{names: append([]string(nil), names...)}

	seen := make(map[uint64]string, len(names))
	keys := make([]uint64, 0, len(names))
	first := make([]int, 0, len(names))
	for i, name := range names {
		h := hashString(name)
		if prev, ok := seen[h]; ok {
			if prev == name {
				continue
			}
			return nil, fmt.Errorf("build name index: hash collision between %q and %q", prev, name)
		}
		seen[h] = name
		keys = append(keys, h)
		first = append(first, i)
	}
	if len(keys) == 0 {
		return idx, nil
	}

	mph, err := bbhash.New(keys, bbhash.Gamma(2.0))
	if err != nil {
		return nil, fmt.Errorf("build name index: %w", err)
	}
	idx.mph = mph
	idx.slots = make([]int, len(keys))
	for i, k := range keys {
		idx.slots[mph.Find(k)-1] = first[i]
	}
	return idx, nil
}

// Lookup returns the position of name in the build list.
func (x *Index) Lookup(name string) (int, bool) {
	if x.mph == nil {
		return 0, false
	}
	h := x.mph.Find(hashString(name))
	if h == 0 || h > uint64(len(x.slots)) {
		return 0, false
	}
	pos := x.slots[h-1]
	if x.names[pos] != name {
		return 0, false
	}
	return pos, true
}

// Len returns the number of names the index was built from, duplicates
// included.
func (x *Index) Len() int { return len(x.names) }

// Names returns the build list.
func (x *Index) Names() []string { return append([]string(nil), x.names...) }

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
