package cdf

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/fileutil"
)

// Mode selects how a file is opened.
type Mode int

const (
	// ModeRead opens an existing file read-only.
	ModeRead Mode = iota
	// ModeWrite creates a new file, truncating any existing one.
	ModeWrite
	// ModeAppend opens an existing file for writing. Its header is already
	// defined: existing variables and records can be written, and records
	// appended, but no dimensions or variables can be added.
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeAppend:
		return "append"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Unlimited is the length that declares the record dimension.
const Unlimited = 0

// Dimension is a named axis length. The record dimension has length 0 and
// grows with the file's record count.
type Dimension struct {
	name   string
	length int
	id     int
}

// Name returns the dimension name.
func (d *Dimension) Name() string { return d.name }

// Len returns the declared length, 0 for the record dimension.
func (d *Dimension) Len() int { return d.length }

// IsUnlimited reports whether d is the record dimension.
func (d *Dimension) IsUnlimited() bool { return d.length == Unlimited }

// File is an open classic-format file.
//
// The header is mutable until the first Flush, after which dimensions and
// variables are fixed. Data lives in memory per variable: fixed-size
// variables of a file opened from disk are views into the mapped region and
// are copied before the first write, record variables are split out of the
// record region at open.
//
// Thread Safety: a File is not safe for concurrent mutation. A file opened
// with ModeRead may be read from multiple goroutines since every accessor
// decodes into fresh slices.
type File struct {
	// Attrs holds the global attributes.
	Attrs Attributes

	path    string
	mode    Mode
	version Version
	dims    []*Dimension
	recDim  *Dimension
	vars    []*Variable
	numRecs int
	defined bool
	closed  bool
	region  region
	layout  *RecordLayout
	opts    options
	log     zerolog.Logger
}

// Create creates a new file at path in define mode.
func Create(path string, opts ...Option) (*File, error) {
	return Open(path, ModeWrite, opts...)
}

// Open opens path with the given mode.
func Open(path string, mode Mode, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	switch mode {
	case ModeWrite:
		fh, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		if err := fh.Close(); err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		f := newFile(path, mode, o)
		f.log.Debug().Str("path", path).Msg("created file")
		return f, nil

	case ModeRead, ModeAppend:
		start := time.Now()
		reg, mapped, err := openRegion(path, o.mmap)
		if err != nil {
			return nil, err
		}
		f, err := parse(reg, path, mode, o)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		f.log.Debug().
			Str("path", path).
			Stringer("mode", mode).
			Bool("mmap", mapped).
			Int("size", len(reg.Bytes())).
			Int("vars", len(f.vars)).
			Int("numrecs", f.numRecs).
			Dur("elapsed", time.Since(start)).
			Msg("opened file")
		return f, nil
	}
	return nil, fmt.Errorf("open %s: unknown %s", path, mode)
}

// OpenBytes opens an in-memory file read-only. data must not be modified
// while the file is open.
func OpenBytes(data []byte, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return parse(&memRegion{data: data}, "", ModeRead, o)
}

// OpenReader reads r to the end and opens the result read-only.
// zstd-compressed input is decompressed first.
func OpenReader(r io.Reader, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	reg, err := readRegion(r)
	if err != nil {
		return nil, err
	}
	return parse(reg, "", ModeRead, o)
}

func newFile(path string, mode Mode, o options) *File {
	f := &File{
		path:    path,
		mode:    mode,
		version: o.version,
		opts:    o,
		log:     o.log,
	}
	f.Attrs.owner = f
	return f
}

// parse decodes the header in reg and attaches variable data.
func parse(reg region, path string, mode Mode, o options) (*File, error) {
	data := reg.Bytes()
	h, err := decodeHeader(data)
	if err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	f := newFile(path, mode, o)
	f.region = reg
	f.version = max(h.version, o.version)
	f.dims = h.dims
	f.Attrs.list = h.attrs.list
	for _, d := range f.dims {
		if d.IsUnlimited() {
			if f.recDim != nil {
				return nil, fmt.Errorf("%w: %q and %q", ErrRecordDimension, f.recDim.name, d.name)
			}
			f.recDim = d
		}
	}

	for _, rv := range h.vars {
		v := &Variable{name: rv.name, typ: rv.typ, file: f, begin: rv.begin}
		v.Attrs = Attributes{list: rv.attrs.list, owner: f}
		for _, id := range rv.dimIDs {
			if id >= len(f.dims) {
				return nil, fmt.Errorf("%w: variable %q: dimension id %d", ErrFormat, rv.name, id)
			}
			v.dims = append(v.dims, f.dims[id])
		}
		if err := checkDims(v.name, v.dims); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		f.vars = append(f.vars, v)
	}

	var fixed, rec []*Variable
	for _, v := range f.vars {
		if v.IsRecord() {
			rec = append(rec, v)
		} else {
			fixed = append(fixed, v)
		}
	}

	end := int64(len(data))
	for _, v := range fixed {
		size, ok := v.boundedBytes(end)
		if !ok {
			return nil, fmt.Errorf("%w: variable %q is larger than the %d-byte file", ErrFormat, v.name, end)
		}
		if v.begin < h.size || v.begin > end || size > end-v.begin {
			return nil, fmt.Errorf("%w: variable %q spans [%d, %d+%d) of %d bytes",
				ErrFormat, v.name, v.begin, v.begin, size, end)
		}
		v.data = data[v.begin : v.begin+size : v.begin+size]
		v.shared = true
	}

	// A record may outgrow a file that holds no records yet, but not the
	// 32-bit vsize field.
	recLimit := max(end, math.MaxUint32)
	for _, v := range rec {
		if _, ok := v.boundedBytes(recLimit); !ok {
			return nil, fmt.Errorf("%w: record variable %q exceeds %d bytes per record", ErrFormat, v.name, recLimit)
		}
	}
	layout, err := layoutFromHeader(rec)
	if err != nil {
		return nil, err
	}
	numRecs := h.numRecs
	if numRecs < 0 {
		numRecs = 0
		if layout.RecSize > 0 && end > layout.Begin {
			numRecs = (end - layout.Begin) / layout.RecSize
		}
	}
	f.numRecs = int(numRecs)
	if len(rec) > 0 && f.numRecs > 0 {
		if layout.Begin > end {
			return nil, fmt.Errorf("%w: record region starts at %d past end %d", ErrFormat, layout.Begin, len(data))
		}
		parts, err := layout.split(data[layout.Begin:], f.numRecs)
		if err != nil {
			return nil, err
		}
		for i, v := range rec {
			v.data = parts[i]
		}
	}
	f.layout = layout
	f.defined = true
	return f, nil
}

func checkDims(name string, dims []*Dimension) error {
	for i, d := range dims {
		if d.IsUnlimited() && i != 0 {
			return fmt.Errorf("%w: variable %q uses record dimension %q at axis %d",
				ErrIntegrity, name, d.name, i)
		}
	}
	return nil
}

func (f *File) checkOpen() error {
	if f.closed {
		return ErrClosed
	}
	return nil
}

func (f *File) checkWritable() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.mode == ModeRead {
		return ErrReadOnly
	}
	return nil
}

func (f *File) checkDefine() error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if f.defined {
		return ErrDefineMode
	}
	return nil
}

// CreateDimension declares a dimension. A length of Unlimited declares the
// record dimension, of which a file has at most one.
func (f *File) CreateDimension(name string, length int) (*Dimension, error) {
	if err := f.checkDefine(); err != nil {
		return nil, fmt.Errorf("create dimension %q: %w", name, err)
	}
	if name == "" || length < 0 || length > math.MaxInt32 {
		return nil, fmt.Errorf("create dimension %q: %w: length %d", name, ErrIntegrity, length)
	}
	if _, ok := f.lookupDim(name); ok {
		return nil, fmt.Errorf("create dimension %q: %w", name, ErrExists)
	}
	if length == Unlimited && f.recDim != nil {
		return nil, fmt.Errorf("create dimension %q: %w: %q", name, ErrRecordDimension, f.recDim.name)
	}

	d := &Dimension{name: name, length: length, id: len(f.dims)}
	f.dims = append(f.dims, d)
	if d.IsUnlimited() {
		f.recDim = d
	}
	f.log.Debug().Str("dim", name).Int("len", length).Msg("defined dimension")
	return d, nil
}

// CreateVariable declares a variable over previously declared dimensions.
// Its data starts zero-filled; a record variable starts with the file's
// current record count.
func (f *File) CreateVariable(name string, t Type, dims ...string) (*Variable, error) {
	if err := f.checkDefine(); err != nil {
		return nil, fmt.Errorf("create variable %q: %w", name, err)
	}
	if name == "" {
		return nil, fmt.Errorf("create variable: %w: empty name", ErrIntegrity)
	}
	t, err := TypeFromTag(t.Tag())
	if err != nil {
		return nil, fmt.Errorf("create variable %q: %w", name, err)
	}
	if _, ok := f.lookupVar(name); ok {
		return nil, fmt.Errorf("create variable %q: %w", name, ErrExists)
	}

	v := &Variable{name: name, typ: t, file: f}
	v.Attrs.owner = f
	for _, dn := range dims {
		d, ok := f.lookupDim(dn)
		if !ok {
			return nil, fmt.Errorf("create variable %q: %w: undeclared dimension %q", name, ErrIntegrity, dn)
		}
		v.dims = append(v.dims, d)
	}
	if err := checkDims(name, v.dims); err != nil {
		return nil, fmt.Errorf("create variable: %w", err)
	}

	size, ok := v.boundedBytes(maxVariableBytes)
	if ok && v.IsRecord() && f.numRecs > 0 {
		ok = size <= maxVariableBytes/int64(f.numRecs)
		size *= int64(f.numRecs)
	}
	if !ok {
		return nil, fmt.Errorf("create variable %q: %w: shape %v exceeds %d bytes",
			name, ErrIntegrity, v.Shape(), int64(maxVariableBytes))
	}
	v.data = make([]byte, size)
	f.vars = append(f.vars, v)
	f.layout = nil
	f.log.Debug().Str("var", name).Stringer("type", t).Strs("dims", dims).Msg("defined variable")
	return v, nil
}

func (f *File) lookupDim(name string) (*Dimension, bool) {
	for _, d := range f.dims {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

func (f *File) lookupVar(name string) (*Variable, bool) {
	for _, v := range f.vars {
		if v.name == name {
			return v, true
		}
	}
	return nil, false
}

// Dimension returns the named dimension.
func (f *File) Dimension(name string) (*Dimension, error) {
	d, ok := f.lookupDim(name)
	if !ok {
		return nil, fmt.Errorf("dimension %q: %w", name, ErrNotFound)
	}
	return d, nil
}

// Variable returns the named variable.
func (f *File) Variable(name string) (*Variable, error) {
	v, ok := f.lookupVar(name)
	if !ok {
		return nil, fmt.Errorf("variable %q: %w", name, ErrNotFound)
	}
	return v, nil
}

// HasVariable reports whether a variable named name exists.
func (f *File) HasVariable(name string) bool {
	_, ok := f.lookupVar(name)
	return ok
}

// Dimensions returns the dimensions in declaration order.
func (f *File) Dimensions() []*Dimension { return slices.Clone(f.dims) }

// Variables returns the variables in declaration order.
func (f *File) Variables() []*Variable { return slices.Clone(f.vars) }

// RecordDimension returns the record dimension, or nil if none is declared.
func (f *File) RecordDimension() *Dimension { return f.recDim }

// NumRecords returns the number of records currently held.
func (f *File) NumRecords() int { return f.numRecs }

// Version returns the format version the file was read with or will be
// written with.
func (f *File) Version() Version { return f.version }

// Mode returns the mode the file was opened with.
func (f *File) Mode() Mode { return f.mode }

// Path returns the file path, empty for in-memory files.
func (f *File) Path() string { return f.path }

// Defined reports whether the header is frozen.
func (f *File) Defined() bool { return f.defined }

// Layout returns the record layout. For a file read from disk it reflects
// the stored offsets; otherwise it is the layout the next Flush writes.
func (f *File) Layout() *RecordLayout {
	if f.layout == nil {
		f.layout = buildLayout(f.recordVars(), 0)
	}
	return f.layout
}

// ordered returns fixed-size variables followed by record variables, each
// group in declaration order.
func (f *File) ordered() []*Variable {
	out := make([]*Variable, 0, len(f.vars))
	for _, v := range f.vars {
		if !v.IsRecord() {
			out = append(out, v)
		}
	}
	return append(out, f.recordVars()...)
}

func (f *File) recordVars() []*Variable {
	var out []*Variable
	for _, v := range f.vars {
		if v.IsRecord() {
			out = append(out, v)
		}
	}
	return out
}

// growRecords extends every record variable to n records, zero-filling the
// new rows.
func (f *File) growRecords(n int) {
	if n <= f.numRecs {
		return
	}
	for _, v := range f.recordVars() {
		need := int64(n) * v.recordBytes()
		grown := make([]byte, need, max(need, 2*int64(cap(v.data))))
		copy(grown, v.data)
		v.data = grown
		v.shared = false
	}
	f.log.Debug().Int("from", f.numRecs).Int("to", n).Msg("grew records")
	f.numRecs = n
}

// assignOffsets fixes every variable's begin for the given version and
// returns the header size, the total file size and the layout.
func (f *File) assignOffsets(version Version) (int64, int64, *RecordLayout, error) {
	hdr, err := encodeHeader(nil, f, version)
	if err != nil {
		return 0, 0, nil, err
	}
	off := hdr
	for _, v := range f.vars {
		if !v.IsRecord() {
			v.begin = off
			off += v.vsize()
		}
	}
	layout := buildLayout(f.recordVars(), off)
	for _, fld := range layout.Fields {
		v, _ := f.lookupVar(fld.Name)
		v.begin = off + fld.Offset
	}
	return hdr, off + int64(f.numRecs)*layout.RecSize, layout, nil
}

// Flush freezes the header and writes the whole file to a sibling temp file
// that then replaces the target. An existing mapping of the old file stays
// valid.
func (f *File) Flush() error {
	if err := f.checkWritable(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	start := time.Now()
	f.defined = true

	version := f.version
	hdr, size, layout, err := f.assignOffsets(version)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if version == Version1 && f.needsV2(layout) {
		version = Version2
		if hdr, size, layout, err = f.assignOffsets(version); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		f.log.Debug().Msg("offsets exceed 31 bits, writing version 2")
	}

	err = fileutil.WriteAtomic(f.path, func(w io.Writer) error {
		bw := bufio.NewWriterSize(w, 1<<20)
		if err := f.writeTo(bw, version, hdr, layout); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		return fmt.Errorf("flush %s: %w", f.path, err)
	}
	f.version = version
	f.layout = layout

	f.log.Debug().
		Str("path", f.path).
		Int("version", int(version)).
		Int64("header_bytes", hdr).
		Int64("file_bytes", size).
		Int("numrecs", f.numRecs).
		Dur("elapsed", time.Since(start)).
		Msg("flushed file")
	return nil
}

func (f *File) needsV2(layout *RecordLayout) bool {
	for _, v := range f.vars {
		if v.begin > math.MaxInt32 {
			return true
		}
	}
	return layout.Begin > math.MaxInt32
}

// writeTo emits header, fixed-size data and the interleaved record rows.
func (f *File) writeTo(w io.Writer, version Version, hdr int64, layout *RecordLayout) error {
	n, err := encodeHeader(w, f, version)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if n != hdr {
		return fmt.Errorf("%w: header wrote %d bytes, sized %d", ErrFormat, n, hdr)
	}

	e := &encoder{w: w, n: n}
	for _, v := range f.vars {
		if v.IsRecord() {
			continue
		}
		e.zero(v.begin - e.n)
		e.padded(v.data)
	}

	rec := f.recordVars()
	for r := range int64(f.numRecs) {
		for i, v := range rec {
			fld := layout.Fields[i]
			e.write(v.data[r*fld.Size : (r+1)*fld.Size])
			e.zero(fld.Width - fld.Size)
		}
	}
	if e.err != nil {
		return fmt.Errorf("write data: %w", e.err)
	}
	return nil
}

// Close flushes a writable file and releases the mapping. Closing twice is
// a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	var err error
	if f.mode != ModeRead {
		err = f.Flush()
	}
	f.closed = true
	if f.region != nil {
		// Views into the mapping become invalid once it is released.
		for _, v := range f.vars {
			if v.shared {
				v.data = nil
			}
		}
		if cerr := f.region.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
