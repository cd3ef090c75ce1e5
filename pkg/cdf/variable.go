package cdf

import (
	"fmt"
	"slices"
	"strings"
)

// maxVariableBytes bounds the data a variable created in memory may hold.
const maxVariableBytes = 1 << 40

// Variable is a typed n-dimensional array. Attrs holds the attributes the
// caller sets; the remaining state is owned by the engine.
type Variable struct {
	// Attrs holds the variable's attributes.
	Attrs Attributes

	name   string
	typ    Type
	dims   []*Dimension
	file   *File
	data   []byte // big-endian, records contiguous per variable
	shared bool   // data aliases the read-only region
	begin  int64
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Type returns the element type.
func (v *Variable) Type() Type { return v.typ }

// Dimensions returns the dimension names in axis order.
func (v *Variable) Dimensions() []string {
	names := make([]string, len(v.dims))
	for i, d := range v.dims {
		names[i] = d.name
	}
	return names
}

// IsRecord reports whether the leading axis is the record dimension.
func (v *Variable) IsRecord() bool {
	return len(v.dims) > 0 && v.dims[0].IsUnlimited()
}

// Shape returns the axis lengths. The record axis reports the current
// record count.
func (v *Variable) Shape() []int {
	shape := make([]int, len(v.dims))
	for i, d := range v.dims {
		if d.IsUnlimited() {
			shape[i] = v.file.numRecs
		} else {
			shape[i] = d.length
		}
	}
	return shape
}

// Len returns the total number of elements currently held.
func (v *Variable) Len() int {
	return len(v.data) / v.typ.Size()
}

// recordLen is the element count of one record (or of the whole variable
// when it has no record axis).
func (v *Variable) recordLen() int64 {
	n := int64(1)
	for _, d := range v.dims {
		if !d.IsUnlimited() {
			n *= int64(d.length)
		}
	}
	return n
}

func (v *Variable) recordBytes() int64 { return v.recordLen() * int64(v.typ.Size()) }

// boundedBytes is recordBytes computed without overflow. It reports false
// when the size exceeds limit.
func (v *Variable) boundedBytes(limit int64) (int64, bool) {
	for _, d := range v.dims {
		if !d.IsUnlimited() && d.length == 0 {
			return 0, true
		}
	}
	n := int64(v.typ.Size())
	for _, d := range v.dims {
		if d.IsUnlimited() {
			continue
		}
		if n > limit/int64(d.length) {
			return 0, false
		}
		n *= int64(d.length)
	}
	return n, n <= limit
}

func (v *Variable) fixedBytes() int64 { return v.recordBytes() }

// vsize is the padded per-variable (or per-record) size stored in the header.
func (v *Variable) vsize() int64 { return pad4(v.recordBytes()) }

func (v *Variable) readable() error {
	if err := v.file.checkOpen(); err != nil {
		return fmt.Errorf("variable %q: %w", v.name, err)
	}
	return nil
}

// own makes data private before a write.
func (v *Variable) own() error {
	if err := v.file.checkWritable(); err != nil {
		return fmt.Errorf("variable %q: %w", v.name, err)
	}
	if v.shared {
		v.data = slices.Clone(v.data)
		v.shared = false
	}
	return nil
}

// Values decodes all data into a fresh slice of the natural Go type:
// []int8, []byte, []int16, []int32, []float32 or []float64.
func (v *Variable) Values() (any, error) {
	if err := v.readable(); err != nil {
		return nil, err
	}
	return decodeValues(v.typ, v.data), nil
}

// Float64s decodes numeric data as float64.
func (v *Variable) Float64s() ([]float64, error) {
	if err := v.readable(); err != nil {
		return nil, err
	}
	out, err := decodeFloat64s(v.typ, v.data)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", v.name, err)
	}
	return out, nil
}

// Ints decodes integer data as int.
func (v *Variable) Ints() ([]int, error) {
	if err := v.readable(); err != nil {
		return nil, err
	}
	out, err := decodeInts(v.typ, v.data)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", v.name, err)
	}
	return out, nil
}

// Strings splits char data into rows along the last axis, trimming
// trailing NUL bytes from each row.
func (v *Variable) Strings() ([]string, error) {
	if err := v.readable(); err != nil {
		return nil, err
	}
	if v.typ != Char {
		return nil, fmt.Errorf("variable %q: %w: %s is not char", v.name, ErrType, v.typ)
	}
	row := len(v.data)
	if len(v.dims) > 0 {
		row = v.Shape()[len(v.dims)-1]
	}
	if row == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(v.data)/row)
	for off := 0; off+row <= len(v.data); off += row {
		out = append(out, strings.TrimRight(string(v.data[off:off+row]), "\x00"))
	}
	return out, nil
}

// Float64At decodes one element at a flat index.
func (v *Variable) Float64At(index int) (float64, error) {
	if err := v.readable(); err != nil {
		return 0, err
	}
	size := v.typ.Size()
	if index < 0 || (index+1)*size > len(v.data) {
		return 0, fmt.Errorf("variable %q: %w: element %d of %d", v.name, ErrRange, index, v.Len())
	}
	out, err := decodeFloat64s(v.typ, v.data[index*size:(index+1)*size])
	if err != nil {
		return 0, fmt.Errorf("variable %q: %w", v.name, err)
	}
	return out[0], nil
}

func (v *Variable) recordSlice(rec int) ([]byte, error) {
	if !v.IsRecord() {
		return nil, fmt.Errorf("variable %q: %w: not a record variable", v.name, ErrIntegrity)
	}
	if rec < 0 || rec >= v.file.numRecs {
		return nil, fmt.Errorf("variable %q: %w: record %d of %d", v.name, ErrRange, rec, v.file.numRecs)
	}
	size := v.recordBytes()
	return v.data[int64(rec)*size : int64(rec+1)*size], nil
}

// Record decodes one record into a fresh slice.
func (v *Variable) Record(rec int) (any, error) {
	if err := v.readable(); err != nil {
		return nil, err
	}
	raw, err := v.recordSlice(rec)
	if err != nil {
		return nil, err
	}
	return decodeValues(v.typ, raw), nil
}

// RecordFloat64s decodes one numeric record as float64.
func (v *Variable) RecordFloat64s(rec int) ([]float64, error) {
	if err := v.readable(); err != nil {
		return nil, err
	}
	raw, err := v.recordSlice(rec)
	if err != nil {
		return nil, err
	}
	out, err := decodeFloat64s(v.typ, raw)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", v.name, err)
	}
	return out, nil
}

// Put replaces all data. values must hold exactly Len() elements; for a
// record variable that is every current record.
func (v *Variable) Put(values any) error {
	if err := v.own(); err != nil {
		return err
	}
	n, err := valueLen(values)
	if err != nil {
		return fmt.Errorf("variable %q: %w", v.name, err)
	}
	if n != v.Len() {
		return fmt.Errorf("variable %q: %w: %d values for %v", v.name, ErrShape, n, v.Shape())
	}
	return v.PutAt(0, values)
}

// PutAt writes values starting at a flat element offset.
func (v *Variable) PutAt(offset int, values any) error {
	if err := v.own(); err != nil {
		return err
	}
	n, err := valueLen(values)
	if err != nil {
		return fmt.Errorf("variable %q: %w", v.name, err)
	}
	size := v.typ.Size()
	if offset < 0 || (offset+n)*size > len(v.data) {
		return fmt.Errorf("variable %q: %w: [%d, %d) of %d", v.name, ErrRange, offset, offset+n, v.Len())
	}
	if err := encodeValues(v.typ, v.data[offset*size:(offset+n)*size], values); err != nil {
		return fmt.Errorf("variable %q: %w", v.name, err)
	}
	return nil
}

// PutString writes s into row of a char variable, zero-padding the rest of
// the row. Rows run along the last axis.
func (v *Variable) PutString(row int, s string) error {
	if v.typ != Char {
		return fmt.Errorf("variable %q: %w: %s is not char", v.name, ErrType, v.typ)
	}
	if err := v.own(); err != nil {
		return err
	}
	width := len(v.data)
	if len(v.dims) > 0 {
		width = v.Shape()[len(v.dims)-1]
	}
	if len(s) > width {
		return fmt.Errorf("variable %q: %w: %d bytes for row of %d", v.name, ErrShape, len(s), width)
	}
	start := row * width
	if row < 0 || start+width > len(v.data) {
		return fmt.Errorf("variable %q: %w: row %d", v.name, ErrRange, row)
	}
	dst := v.data[start : start+width]
	n := copy(dst, s)
	clear(dst[n:])
	return nil
}

// PutRecord writes one record. Writing past the current record count grows
// every record variable, zero-filling the skipped records.
func (v *Variable) PutRecord(rec int, values any) error {
	if !v.IsRecord() {
		return fmt.Errorf("variable %q: %w: not a record variable", v.name, ErrIntegrity)
	}
	if err := v.file.checkWritable(); err != nil {
		return fmt.Errorf("variable %q: %w", v.name, err)
	}
	n, err := valueLen(values)
	if err != nil {
		return fmt.Errorf("variable %q: %w", v.name, err)
	}
	if int64(n) != v.recordLen() {
		return fmt.Errorf("variable %q: %w: %d values for record of %d", v.name, ErrShape, n, v.recordLen())
	}
	if rec < 0 {
		return fmt.Errorf("variable %q: %w: record %d", v.name, ErrRange, rec)
	}
	v.file.growRecords(rec + 1)
	if err := v.own(); err != nil {
		return err
	}
	size := v.recordBytes()
	if err := encodeValues(v.typ, v.data[int64(rec)*size:int64(rec+1)*size], values); err != nil {
		return fmt.Errorf("variable %q: %w", v.name, err)
	}
	return nil
}
