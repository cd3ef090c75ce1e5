package cdf

import (
	"fmt"
	"strings"
	"sync"
)

// Type is one of the six classic data types. The numeric value is the
// on-disk type tag.
type Type int32

const (
	Byte   Type = 1
	Char   Type = 2
	Short  Type = 3
	Int    Type = 4
	Float  Type = 5
	Double Type = 6
)

// Kind groups types by how their bytes are interpreted.
type Kind int

const (
	KindInteger Kind = iota
	KindFloat
	KindText
)

type typeInfo struct {
	typ   Type
	name  string
	width int
	kind  Kind
}

type kindWidth struct {
	kind  Kind
	width int
}

// registry is the process-wide type table. It is built once on first use
// and never modified or torn down afterwards.
type registry struct {
	byTag       map[int32]typeInfo
	byName      map[string]Type
	byKindWidth map[kindWidth]Type
}

var (
	types     *registry
	typesOnce sync.Once
)

func typeRegistry() *registry {
	typesOnce.Do(func() {
		infos := []typeInfo{
			{Byte, "byte", 1, KindInteger},
			{Char, "char", 1, KindText},
			{Short, "short", 2, KindInteger},
			{Int, "int", 4, KindInteger},
			{Float, "float", 4, KindFloat},
			{Double, "double", 8, KindFloat},
		}
		r := &registry{
			byTag:       make(map[int32]typeInfo, len(infos)),
			byName:      make(map[string]Type, len(infos)),
			byKindWidth: make(map[kindWidth]Type, len(infos)),
		}
		for _, info := range infos {
			r.byTag[int32(info.typ)] = info
			r.byName[info.name] = info.typ
			r.byKindWidth[kindWidth{info.kind, info.width}] = info.typ
		}
		types = r
	})
	return types
}

// TypeFromTag resolves an on-disk type tag.
func TypeFromTag(tag int32) (Type, error) {
	info, ok := typeRegistry().byTag[tag]
	if !ok {
		return 0, fmt.Errorf("%w: tag %d", ErrType, tag)
	}
	return info.typ, nil
}

// LookupType resolves a type by its CDL name ("byte", "char", "short",
// "int", "float", "double"). Matching is case-insensitive.
func LookupType(name string) (Type, error) {
	t, ok := typeRegistry().byName[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrType, name)
	}
	return t, nil
}

// TypeFor resolves the type with the given kind and byte width, e.g.
// (KindFloat, 4) is Float.
func TypeFor(kind Kind, width int) (Type, error) {
	t, ok := typeRegistry().byKindWidth[kindWidth{kind, width}]
	if !ok {
		return 0, fmt.Errorf("%w: kind %d width %d", ErrType, kind, width)
	}
	return t, nil
}

// Valid reports whether t is a registered type.
func (t Type) Valid() bool {
	_, ok := typeRegistry().byTag[int32(t)]
	return ok
}

// Size returns the width of one element in bytes, or 0 for an invalid type.
func (t Type) Size() int {
	return typeRegistry().byTag[int32(t)].width
}

// Kind returns the interpretation class of the type.
func (t Type) Kind() Kind {
	return typeRegistry().byTag[int32(t)].kind
}

// Tag returns the on-disk type tag.
func (t Type) Tag() int32 {
	return int32(t)
}

func (t Type) String() string {
	if info, ok := typeRegistry().byTag[int32(t)]; ok {
		return info.name
	}
	return fmt.Sprintf("type(%d)", int32(t))
}
