package cdf

import (
	"fmt"
	"io"
	"math"
)

// Version is the classic format revision, stored in the fourth magic byte.
type Version byte

const (
	// Version1 stores variable offsets as 32-bit integers.
	Version1 Version = 1
	// Version2 stores variable offsets as 64-bit integers.
	Version2 Version = 2
)

const (
	tagDimension = 0x0A
	tagVariable  = 0x0B
	tagAttribute = 0x0C

	// numRecsStreaming marks a file whose record count is derived from its size.
	numRecsStreaming = math.MaxUint32
)

var magic = [3]byte{'C', 'D', 'F'}

// nameSize is the encoded size of a length-prefixed padded name.
func nameSize(s string) int64 { return 4 + pad4(int64(len(s))) }

// encoder writes header fields, remembering the first error. With a nil
// writer it only counts bytes, which is how pass 1 sizes the header.
type encoder struct {
	w   io.Writer
	n   int64
	err error
	buf [8]byte
}

func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	if e.w != nil {
		if _, err := e.w.Write(b); err != nil {
			e.err = err
			return
		}
	}
	e.n += int64(len(b))
}

func (e *encoder) int32(v int32) {
	order.PutUint32(e.buf[:4], uint32(v))
	e.write(e.buf[:4])
}

func (e *encoder) uint32(v uint32) {
	order.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) int64(v int64) {
	order.PutUint64(e.buf[:8], uint64(v))
	e.write(e.buf[:8])
}

var zeros [4096]byte

func (e *encoder) zero(n int64) {
	for n > 0 {
		k := min(n, int64(len(zeros)))
		e.write(zeros[:k])
		n -= k
	}
}

// padded writes b followed by zero bytes up to a 4-byte boundary.
func (e *encoder) padded(b []byte) {
	e.write(b)
	e.zero(pad4(int64(len(b))) - int64(len(b)))
}

func (e *encoder) name(s string) {
	e.int32(int32(len(s)))
	e.padded([]byte(s))
}

func (e *encoder) attributes(attrs *Attributes) error {
	if attrs.Len() == 0 {
		e.int32(0)
		e.int32(0)
		return nil
	}
	e.int32(tagAttribute)
	e.int32(int32(attrs.Len()))
	for _, at := range attrs.list {
		raw, err := at.Value.encode()
		if err != nil {
			return fmt.Errorf("attribute %q: %w", at.Name, err)
		}
		e.name(at.Name)
		e.int32(at.Value.typ.Tag())
		e.int32(int32(at.Value.Len()))
		e.padded(raw)
	}
	return nil
}

// encodeHeader writes the header of f with the given version. Variables are
// written in f.ordered() order, which puts fixed-size variables first.
func encodeHeader(w io.Writer, f *File, version Version) (int64, error) {
	e := &encoder{w: w}
	e.write(magic[:])
	e.write([]byte{byte(version)})
	e.int32(int32(f.numRecs))

	if len(f.dims) == 0 {
		e.int32(0)
		e.int32(0)
	} else {
		e.int32(tagDimension)
		e.int32(int32(len(f.dims)))
		for _, d := range f.dims {
			e.name(d.name)
			e.int32(int32(d.length))
		}
	}

	if err := e.attributes(&f.Attrs); err != nil {
		return e.n, fmt.Errorf("global %w", err)
	}

	vars := f.ordered()
	if len(vars) == 0 {
		e.int32(0)
		e.int32(0)
	} else {
		e.int32(tagVariable)
		e.int32(int32(len(vars)))
		for _, v := range vars {
			e.name(v.name)
			e.int32(int32(len(v.dims)))
			for _, d := range v.dims {
				e.int32(int32(d.id))
			}
			if err := e.attributes(&v.Attrs); err != nil {
				return e.n, fmt.Errorf("variable %q: %w", v.name, err)
			}
			e.int32(v.typ.Tag())
			vsize := v.vsize()
			if vsize > math.MaxUint32 {
				vsize = math.MaxUint32
			}
			e.uint32(uint32(vsize))
			if version == Version1 {
				e.int32(int32(v.begin))
			} else {
				e.int64(v.begin)
			}
		}
	}
	return e.n, e.err
}

// decoder reads header fields from an in-memory region. Every read is
// bounds checked; running off the end is a format error.
type decoder struct {
	b   []byte
	off int64
}

func (d *decoder) take(n int64) ([]byte, error) {
	if n < 0 || d.off+n > int64(len(d.b)) {
		return nil, fmt.Errorf("%w: truncated header at byte %d", ErrFormat, d.off)
	}
	out := d.b[d.off : d.off+n]
	d.off += n
	return out, nil
}

func (d *decoder) uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (d *decoder) count(what string) (int, error) {
	v, err := d.uint32()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: negative %s %d", ErrFormat, what, int32(v))
	}
	return int(v), nil
}

func (d *decoder) int64() (int64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return int64(order.Uint64(b)), nil
}

func (d *decoder) padded(n int64) ([]byte, error) {
	b, err := d.take(pad4(n))
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

func (d *decoder) name() (string, error) {
	n, err := d.count("name length")
	if err != nil {
		return "", err
	}
	b, err := d.padded(int64(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// list reads a list header and returns its element count. An absent list
// is encoded as two zero words.
func (d *decoder) list(tag uint32) (int, error) {
	got, err := d.uint32()
	if err != nil {
		return 0, err
	}
	n, err := d.count("list length")
	if err != nil {
		return 0, err
	}
	if got == 0 && n == 0 {
		return 0, nil
	}
	if got != tag {
		return 0, fmt.Errorf("%w: list tag %#x, want %#x", ErrFormat, got, tag)
	}
	return n, nil
}

func (d *decoder) attributes(dst *Attributes) error {
	n, err := d.list(tagAttribute)
	if err != nil {
		return err
	}
	for range n {
		name, err := d.name()
		if err != nil {
			return err
		}
		tag, err := d.uint32()
		if err != nil {
			return err
		}
		t, err := TypeFromTag(int32(tag))
		if err != nil {
			return fmt.Errorf("%w: attribute %q: %w", ErrFormat, name, err)
		}
		nelems, err := d.count("attribute length")
		if err != nil {
			return err
		}
		raw, err := d.padded(int64(nelems) * int64(t.Size()))
		if err != nil {
			return err
		}
		dst.list = append(dst.list, Attribute{Name: name, Value: decodeValue(t, raw)})
	}
	return nil
}

// rawVar is a variable entry as found on disk, before dimension ids are
// resolved.
type rawVar struct {
	name   string
	dimIDs []int
	attrs  Attributes
	typ    Type
	vsize  int64
	begin  int64
}

type rawHeader struct {
	version Version
	numRecs int64 // -1 when streaming
	dims    []*Dimension
	attrs   Attributes
	vars    []rawVar
	size    int64
}

func decodeHeader(b []byte) (*rawHeader, error) {
	d := &decoder{b: b}
	head, err := d.take(4)
	if err != nil {
		return nil, err
	}
	if [3]byte(head[:3]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, head[:3])
	}
	h := &rawHeader{version: Version(head[3])}
	if h.version != Version1 && h.version != Version2 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, head[3])
	}

	nr, err := d.uint32()
	if err != nil {
		return nil, err
	}
	switch {
	case nr == numRecsStreaming:
		h.numRecs = -1
	case nr > math.MaxInt32:
		return nil, fmt.Errorf("%w: record count %d", ErrFormat, nr)
	default:
		h.numRecs = int64(nr)
	}

	ndims, err := d.list(tagDimension)
	if err != nil {
		return nil, fmt.Errorf("dimensions: %w", err)
	}
	for i := range ndims {
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		length, err := d.count("dimension length")
		if err != nil {
			return nil, err
		}
		h.dims = append(h.dims, &Dimension{name: name, length: length, id: i})
	}

	if err := d.attributes(&h.attrs); err != nil {
		return nil, fmt.Errorf("global attributes: %w", err)
	}

	nvars, err := d.list(tagVariable)
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	for range nvars {
		var rv rawVar
		if rv.name, err = d.name(); err != nil {
			return nil, err
		}
		nd, err := d.count("dimension count")
		if err != nil {
			return nil, err
		}
		for range nd {
			id, err := d.count("dimension id")
			if err != nil {
				return nil, err
			}
			rv.dimIDs = append(rv.dimIDs, id)
		}
		if err := d.attributes(&rv.attrs); err != nil {
			return nil, fmt.Errorf("variable %q: %w", rv.name, err)
		}
		tag, err := d.uint32()
		if err != nil {
			return nil, err
		}
		if rv.typ, err = TypeFromTag(int32(tag)); err != nil {
			return nil, fmt.Errorf("%w: variable %q: %w", ErrFormat, rv.name, err)
		}
		vsize, err := d.uint32()
		if err != nil {
			return nil, err
		}
		rv.vsize = int64(vsize)
		if h.version == Version1 {
			begin, err := d.count("variable offset")
			if err != nil {
				return nil, err
			}
			rv.begin = int64(begin)
		} else {
			if rv.begin, err = d.int64(); err != nil {
				return nil, err
			}
			if rv.begin < 0 {
				return nil, fmt.Errorf("%w: variable %q offset %d", ErrFormat, rv.name, rv.begin)
			}
		}
		h.vars = append(h.vars, rv)
	}
	h.size = d.off
	return h, nil
}
