package cdf

import "fmt"

// RecordField locates one record variable's slice inside a record row.
type RecordField struct {
	Name   string
	Offset int64 // from the start of the row
	Size   int64 // unpadded bytes per record
	Width  int64 // bytes the slice occupies in the row, padding included
}

// RecordLayout describes the interleaved record region: numrecs rows of
// RecSize bytes starting at Begin, each row holding one slice per record
// variable in declaration order.
type RecordLayout struct {
	Fields  []RecordField
	RecSize int64
	Begin   int64
}

// Field returns the field for a record variable.
func (l *RecordLayout) Field(name string) (RecordField, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return RecordField{}, false
}

// buildLayout computes the packed layout for vars, which must all be record
// variables. A single record variable is stored unpadded.
func buildLayout(vars []*Variable, begin int64) *RecordLayout {
	l := &RecordLayout{Begin: begin}
	if len(vars) == 1 {
		size := vars[0].recordBytes()
		l.Fields = []RecordField{{Name: vars[0].name, Size: size, Width: size}}
		l.RecSize = size
		return l
	}
	for _, v := range vars {
		size := v.recordBytes()
		width := pad4(size)
		l.Fields = append(l.Fields, RecordField{Name: v.name, Offset: l.RecSize, Size: size, Width: width})
		l.RecSize += width
	}
	return l
}

// layoutFromHeader builds the layout of a file read from disk, taking field
// offsets from the stored begin values so that files aligned differently by
// other writers still decode.
func layoutFromHeader(vars []*Variable) (*RecordLayout, error) {
	l := buildLayout(vars, 0)
	if len(vars) == 0 {
		return l, nil
	}
	l.Begin = vars[0].begin
	for i, v := range vars {
		off := v.begin - l.Begin
		if off < 0 || off > l.RecSize-l.Fields[i].Size {
			return nil, fmt.Errorf("%w: record variable %q at offset %d outside record of %d bytes",
				ErrFormat, v.name, v.begin, l.RecSize)
		}
		l.Fields[i].Offset = off
	}
	return l, nil
}

// split copies each variable's slices out of numRecs interleaved rows.
func (l *RecordLayout) split(region []byte, numRecs int) ([][]byte, error) {
	// The last row may omit its trailing padding.
	var end int64
	for _, f := range l.Fields {
		end = max(end, f.Offset+f.Size)
	}
	if numRecs > 0 {
		avail := int64(len(region))
		if end > avail || (l.RecSize > 0 && int64(numRecs-1) > (avail-end)/l.RecSize) {
			return nil, fmt.Errorf("%w: record region holds %d bytes, too few for %d records of %d",
				ErrFormat, avail, numRecs, l.RecSize)
		}
	}
	out := make([][]byte, len(l.Fields))
	for i, f := range l.Fields {
		buf := make([]byte, int64(numRecs)*f.Size)
		for r := range int64(numRecs) {
			row := r * l.RecSize
			copy(buf[r*f.Size:(r+1)*f.Size], region[row+f.Offset:row+f.Offset+f.Size])
		}
		out[i] = buf
	}
	return out, nil
}
