// Package idindex maps public object ids to dense 0-based slots.
//
// ExodusII addresses element blocks, node sets and side sets by arbitrary
// user ids, while every per-object variable and dimension in the file is
// numbered by position. A Registry keeps that mapping per object class.
package idindex

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrDuplicateID indicates an id already registered in its class.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrNotFound indicates an id that was never registered.
	ErrNotFound = errors.New("id not found")
)

// Class is an object class with its own id space.
type Class int

const (
	ElemBlock Class = iota
	NodeSet
	SideSet
	numClasses
)

func (c Class) String() string {
	switch c {
	case ElemBlock:
		return "element block"
	case NodeSet:
		return "node set"
	case SideSet:
		return "side set"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

type table struct {
	slots map[int]int
	ids   []int // slot -> id
}

// Registry holds the id -> slot maps of one file.
type Registry struct {
	tables [numClasses]table
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.tables {
		r.tables[i].slots = make(map[int]int)
	}
	return r
}

func (r *Registry) table(c Class) (*table, error) {
	if c < 0 || c >= numClasses {
		return nil, fmt.Errorf("unknown %s", c)
	}
	return &r.tables[c], nil
}

// Register records id at slot. A second registration of the same id fails
// with ErrDuplicateID and leaves the first in place.
func (r *Registry) Register(c Class, id, slot int) error {
	t, err := r.table(c)
	if err != nil {
		return err
	}
	if prev, ok := t.slots[id]; ok {
		return fmt.Errorf("%s %d: %w (slot %d)", c, id, ErrDuplicateID, prev)
	}
	if slot < 0 {
		return fmt.Errorf("%s %d: negative slot %d", c, id, slot)
	}
	t.slots[id] = slot
	for len(t.ids) <= slot {
		t.ids = append(t.ids, 0)
	}
	t.ids[slot] = id
	return nil
}

// Add registers id at the next free slot and returns that slot.
func (r *Registry) Add(c Class, id int) (int, error) {
	t, err := r.table(c)
	if err != nil {
		return 0, err
	}
	slot := len(t.slots)
	if err := r.Register(c, id, slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// Lookup returns the slot of id.
func (r *Registry) Lookup(c Class, id int) (int, error) {
	t, err := r.table(c)
	if err != nil {
		return 0, err
	}
	slot, ok := t.slots[id]
	if !ok {
		return 0, fmt.Errorf("%s %d: %w", c, id, ErrNotFound)
	}
	return slot, nil
}

// Count returns the number of registered ids in class c.
func (r *Registry) Count(c Class) int {
	t, err := r.table(c)
	if err != nil {
		return 0
	}
	return len(t.slots)
}

// IDs returns the registered ids in slot order.
func (r *Registry) IDs(c Class) []int {
	t, err := r.table(c)
	if err != nil {
		return nil
	}
	return slices.Clone(t.ids)
}
