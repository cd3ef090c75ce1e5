// Package export writes ExodusII result histories as Parquet tables.
package export

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/exodus"
	"github.com/eunmann/exocdf/pkg/logging"
)

// ErrCompression indicates an unknown compression name.
var ErrCompression = errors.New("unknown compression")

// Row is one sampled value in long format.
type Row struct {
	Step     int32   `parquet:"step"`
	Time     float64 `parquet:"time"`
	Kind     string  `parquet:"kind,dict"`
	Variable string  `parquet:"variable,dict"`
	// Block is the element block id of element values and 0 otherwise.
	Block int64 `parquet:"block"`
	// Entity is the global node or element number; 0 for global values.
	Entity int64   `parquet:"entity"`
	Value  float64 `parquet:"value"`
}

// Options selects what to export.
type Options struct {
	// Kinds limits the variable kinds. Empty means all.
	Kinds []exodus.VarKind
	// Variables limits the variable names. Empty means all.
	Variables []string
	// Compression is "snappy" (the default), "zstd" or "none".
	Compression string
	// BatchRows is the number of rows buffered per write. Zero means 8192.
	BatchRows int
	// Logger receives progress; the zero value uses the process logger.
	Logger *zerolog.Logger
}

// Codec resolves a compression name.
func Codec(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrCompression, name)
}

// series is one variable of one kind, bound to its entity numbers.
type series struct {
	kind     exodus.VarKind
	name     string
	block    int64
	entities []int
	read     func(step int) ([]float64, error)
}

// WriteTimeHistory writes one row per step, variable and entity and
// returns the number of rows written.
func WriteTimeHistory(w io.Writer, r *exodus.Reader, opts Options) (int, error) {
	codec, err := Codec(opts.Compression)
	if err != nil {
		return 0, err
	}
	batch := opts.BatchRows
	if batch <= 0 {
		batch = 8192
	}
	log := logging.WithComponent("export")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	all, err := plan(r, opts)
	if err != nil {
		return 0, err
	}
	times, err := r.Times()
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}

	start := time.Now()
	pw := parquet.NewGenericWriter[Row](w, parquet.Compression(codec))
	buf := make([]Row, 0, batch)
	total := 0
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, err := pw.Write(buf)
		total += n
		buf = buf[:0]
		if err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		return nil
	}

	tracker := logging.NewStepTracker("export", r.NumTimeSteps(), 10, log)
	for step := range r.NumTimeSteps() {
		t := 0.0
		if step < len(times) {
			t = times[step]
		}
		for _, s := range all {
			vals, err := s.read(step)
			if err != nil {
				return total, fmt.Errorf("export %s %q step %d: %w", s.kind, s.name, step, err)
			}
			for i, v := range vals {
				entity := int64(0)
				if i < len(s.entities) {
					entity = int64(s.entities[i])
				}
				buf = append(buf, Row{
					Step:     int32(step),
					Time:     t,
					Kind:     s.kind.String(),
					Variable: s.name,
					Block:    s.block,
					Entity:   entity,
					Value:    v,
				})
				if len(buf) == cap(buf) {
					if err := flush(); err != nil {
						return total, err
					}
				}
			}
		}
		tracker.Step()
	}
	if err := flush(); err != nil {
		return total, err
	}
	if err := pw.Close(); err != nil {
		return total, fmt.Errorf("close parquet writer: %w", err)
	}

	logging.NewCompletionEvent(log, "export_complete", "export", time.Since(start)).
		Count("rows", int64(total)).
		Int("series", len(all)).
		Int("steps", r.NumTimeSteps()).
		LogDebug("time history exported")
	return total, nil
}

func wanted[T comparable](filter []T, v T) bool {
	return len(filter) == 0 || slices.Contains(filter, v)
}

// plan lists the series to export in kind, variable and block order.
func plan(r *exodus.Reader, opts Options) ([]series, error) {
	var out []series
	for _, kind := range []exodus.VarKind{exodus.Global, exodus.Nodal, exodus.Element} {
		if !wanted(opts.Kinds, kind) {
			continue
		}
		names := r.VarNames(kind)
		for i, name := range names {
			if !wanted(opts.Variables, name) {
				continue
			}
			switch kind {
			case exodus.Global:
				index := i
				out = append(out, series{
					kind: kind,
					name: name,
					read: func(step int) ([]float64, error) {
						vals, err := r.GlobVars(step)
						if err != nil {
							return nil, err
						}
						return vals[index : index+1], nil
					},
				})
			case exodus.Nodal:
				nodes, err := r.NodeNumMap()
				if err != nil {
					return nil, err
				}
				out = append(out, series{
					kind:     kind,
					name:     name,
					entities: nodes,
					read:     func(step int) ([]float64, error) { return r.NodalVar(step, name) },
				})
			case exodus.Element:
				s, err := elementSeries(r, name, i)
				if err != nil {
					return nil, err
				}
				out = append(out, s...)
			}
		}
	}
	return out, nil
}

func elementSeries(r *exodus.Reader, name string, index int) ([]series, error) {
	tab, err := r.ElemVarTab()
	if err != nil {
		return nil, err
	}
	var out []series
	for slot, b := range r.Blocks() {
		if b.NumElem == 0 || slot >= len(tab) || !tab[slot][index] {
			continue
		}
		elems, err := r.ElemsInBlk(b.ID)
		if err != nil {
			return nil, err
		}
		id := b.ID
		out = append(out, series{
			kind:     exodus.Element,
			name:     name,
			block:    int64(id),
			entities: elems,
			read:     func(step int) ([]float64, error) { return r.ElemVarBlock(step, name, id) },
		})
	}
	return out, nil
}
