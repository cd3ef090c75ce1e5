package cdf

import (
	"fmt"
	"strings"
)

// Value is a typed attribute value: a scalar or short array of one of the
// six classic types. Char values are held as strings.
type Value struct {
	typ  Type
	data any // []int8, string, []int16, []int32, []float32 or []float64
}

// Text returns a Char value.
func Text(s string) Value { return Value{typ: Char, data: s} }

// Int8s returns a Byte value.
func Int8s(v ...int8) Value { return Value{typ: Byte, data: v} }

// Int16s returns a Short value.
func Int16s(v ...int16) Value { return Value{typ: Short, data: v} }

// Int32s returns an Int value.
func Int32s(v ...int32) Value { return Value{typ: Int, data: v} }

// Float32s returns a Float value.
func Float32s(v ...float32) Value { return Value{typ: Float, data: v} }

// Float64s returns a Double value.
func Float64s(v ...float64) Value { return Value{typ: Double, data: v} }

// NewValue converts a Go slice (or string for Char) into a value of type t.
func NewValue(t Type, v any) (Value, error) {
	if !t.Valid() {
		return Value{}, fmt.Errorf("%w: %d", ErrType, int32(t))
	}
	n, err := valueLen(v)
	if err != nil {
		return Value{}, err
	}
	buf := make([]byte, n*t.Size())
	if err := encodeValues(t, buf, v); err != nil {
		return Value{}, err
	}
	return decodeValue(t, buf), nil
}

func decodeValue(t Type, raw []byte) Value {
	if t == Char {
		return Value{typ: Char, data: string(raw)}
	}
	return Value{typ: t, data: decodeValues(t, raw)}
}

// Type returns the value's data type.
func (v Value) Type() Type { return v.typ }

// Len returns the number of elements (bytes for Char).
func (v Value) Len() int {
	if v.data == nil {
		return 0
	}
	n, _ := valueLen(v.data)
	return n
}

// Data returns the underlying slice or string. It must not be modified.
func (v Value) Data() any { return v.data }

// Text returns a Char value with trailing NUL bytes removed.
func (v Value) Text() (string, bool) {
	s, ok := v.data.(string)
	if !ok {
		return "", false
	}
	return strings.TrimRight(s, "\x00"), true
}

// Float64s converts a numeric value to float64.
func (v Value) Float64s() ([]float64, error) {
	raw, err := v.encode()
	if err != nil {
		return nil, err
	}
	return decodeFloat64s(v.typ, raw)
}

// Ints converts an integer value to int.
func (v Value) Ints() ([]int, error) {
	raw, err := v.encode()
	if err != nil {
		return nil, err
	}
	return decodeInts(v.typ, raw)
}

func (v Value) String() string {
	if s, ok := v.Text(); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(v.data)
}

// encode returns the unpadded big-endian payload.
func (v Value) encode() ([]byte, error) {
	if !v.typ.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrType, int32(v.typ))
	}
	buf := make([]byte, v.Len()*v.typ.Size())
	if v.data == nil {
		return buf, nil
	}
	if err := encodeValues(v.typ, buf, v.data); err != nil {
		return nil, err
	}
	return buf, nil
}

// Attribute is a named value.
type Attribute struct {
	Name  string
	Value Value
}

// Attributes is an ordered attribute table. Setting an existing name
// replaces its value in place, keeping its position.
//
// Once the owning file's header is frozen, a change is accepted only if it
// leaves the encoded header size unchanged.
type Attributes struct {
	list  []Attribute
	owner *File
}

// Set stores v under name, overwriting any previous value.
func (a *Attributes) Set(name string, v Value) error {
	if name == "" {
		return fmt.Errorf("%w: empty attribute name", ErrIntegrity)
	}
	if _, err := v.encode(); err != nil {
		return fmt.Errorf("attribute %q: %w", name, err)
	}
	if a.owner != nil {
		if err := a.owner.checkWritable(); err != nil {
			return err
		}
	}

	for i := range a.list {
		if a.list[i].Name != name {
			continue
		}
		if a.frozen() && attrSize(a.list[i]) != attrSize(Attribute{name, v}) {
			return fmt.Errorf("%w: resizing attribute %q", ErrDefineMode, name)
		}
		a.list[i].Value = v
		return nil
	}

	if a.frozen() {
		return fmt.Errorf("%w: adding attribute %q", ErrDefineMode, name)
	}
	a.list = append(a.list, Attribute{Name: name, Value: v})
	return nil
}

// SetText is shorthand for Set(name, Text(s)).
func (a *Attributes) SetText(name, s string) error {
	return a.Set(name, Text(s))
}

// Get returns the value stored under name.
func (a *Attributes) Get(name string) (Value, bool) {
	for i := range a.list {
		if a.list[i].Name == name {
			return a.list[i].Value, true
		}
	}
	return Value{}, false
}

// Names returns attribute names in order.
func (a *Attributes) Names() []string {
	names := make([]string, len(a.list))
	for i := range a.list {
		names[i] = a.list[i].Name
	}
	return names
}

// Len returns the number of attributes.
func (a *Attributes) Len() int { return len(a.list) }

func (a *Attributes) frozen() bool {
	return a.owner != nil && a.owner.defined
}

// attrSize is the encoded size of one attribute entry.
func attrSize(at Attribute) int64 {
	return nameSize(at.Name) + 8 + pad4(int64(at.Value.Len()*at.Value.typ.Size()))
}
