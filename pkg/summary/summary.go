// Package summary computes descriptive statistics of ExodusII fields.
package summary

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/eunmann/exocdf/pkg/exodus"
)

// Stats describes one array of values.
type Stats struct {
	Kind   string
	Name   string
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Sum    float64
}

// Of summarizes x. An empty x yields a zero Stats with only the names set.
func Of(kind, name string, x []float64) Stats {
	s := Stats{Kind: kind, Name: name, Count: len(x)}
	if len(x) == 0 {
		return s
	}
	s.Min = floats.Min(x)
	s.Max = floats.Max(x)
	s.Sum = floats.Sum(x)
	if len(x) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	} else {
		s.Mean = x[0]
	}
	return s
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min []float64
	Max []float64
}

// Extent returns the box size along each axis.
func (b Bounds) Extent() []float64 {
	out := make([]float64, len(b.Min))
	floats.SubTo(out, b.Max, b.Min)
	return out
}

// BoundingBox returns the bounds of per-axis coordinate arrays. Axes with no
// values report 0 on both sides.
func BoundingBox(coords [][]float64) Bounds {
	b := Bounds{Min: make([]float64, len(coords)), Max: make([]float64, len(coords))}
	for i, c := range coords {
		if len(c) == 0 {
			continue
		}
		b.Min[i] = floats.Min(c)
		b.Max[i] = floats.Max(c)
	}
	return b
}

// Step summarizes every result variable at a step. When names is non-empty
// only those variables are included. Element variables span all blocks.
func Step(r *exodus.Reader, step int, names ...string) ([]Stats, error) {
	keep := func(name string) bool { return len(names) == 0 || slices.Contains(names, name) }

	var out []Stats
	globals := r.VarNames(exodus.Global)
	if len(globals) > 0 {
		vals, err := r.GlobVars(step)
		if err != nil {
			return nil, fmt.Errorf("summarize step %d: %w", step, err)
		}
		for i, name := range globals {
			if keep(name) && i < len(vals) {
				out = append(out, Of(exodus.Global.String(), name, vals[i:i+1]))
			}
		}
	}
	for _, name := range r.VarNames(exodus.Nodal) {
		if !keep(name) {
			continue
		}
		vals, err := r.NodalVar(step, name)
		if err != nil {
			return nil, fmt.Errorf("summarize step %d: %w", step, err)
		}
		out = append(out, Of(exodus.Nodal.String(), name, vals))
	}
	for _, name := range r.VarNames(exodus.Element) {
		if !keep(name) {
			continue
		}
		vals, err := r.ElemVar(step, name)
		if err != nil {
			return nil, fmt.Errorf("summarize step %d: %w", step, err)
		}
		out = append(out, Of(exodus.Element.String(), name, vals))
	}
	return out, nil
}

// History summarizes one global variable over every step.
func History(r *exodus.Reader, name string) (Stats, error) {
	vals, err := r.GlobVarTime(name)
	if err != nil {
		return Stats{}, fmt.Errorf("summarize history %q: %w", name, err)
	}
	return Of(exodus.Global.String(), name, vals), nil
}
