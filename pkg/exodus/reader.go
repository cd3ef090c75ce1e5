package exodus

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/cdf"
	"github.com/eunmann/exocdf/pkg/idindex"
	"github.com/eunmann/exocdf/pkg/nameindex"
)

// Reader answers queries against an ExodusII file. All lookups by block,
// set or variable go through indexes built once at open.
//
// Thread Safety: accessors decode into fresh slices, so a Reader over a
// read-only file may be shared by concurrent goroutines. Close must not run
// concurrently with other calls.
type Reader struct {
	f        *cdf.File
	log      zerolog.Logger
	init     InitParams
	wordSize int

	ids      *idindex.Registry
	blocks   []Block
	elemBase []int // slot -> index of the block's first element
	vars     [numVarKinds]*nameindex.Index
	steps    int
}

// Open opens an ExodusII file read-only.
func Open(path string, opts ...Option) (*Reader, error) {
	o := buildOptions(opts)
	f, err := cdf.Open(path, cdf.ModeRead, o.cdfOptions()...)
	if err != nil {
		return nil, err
	}
	r, err := newReader(f, o)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return r, nil
}

// NewReader reads the ExodusII model of an open file. The Reader takes
// ownership of f.
func NewReader(f *cdf.File, opts ...Option) (*Reader, error) {
	return newReader(f, buildOptions(opts))
}

// IsExodus reports whether f carries the ExodusII model dimensions.
func IsExodus(f *cdf.File) bool {
	_, err := f.Dimension(dimNumDim)
	return err == nil && f.HasVariable(varCoordNames)
}

func newReader(f *cdf.File, o options) (*Reader, error) {
	if !IsExodus(f) {
		return nil, fmt.Errorf("%w: no %s dimension or %s variable", cdf.ErrFormat, dimNumDim, varCoordNames)
	}
	r := &Reader{
		f:        f,
		log:      o.log.With().Str("path", f.Path()).Logger(),
		ids:      idindex.New(),
		steps:    f.NumRecords(),
		wordSize: 8,
	}
	if v, ok := f.Attrs.Get(attrWordSize); ok {
		if n, err := v.Ints(); err == nil && len(n) > 0 {
			r.wordSize = n[0]
		}
	}
	if v, ok := f.Attrs.Get(attrTitle); ok {
		r.init.Title, _ = v.Text()
	}
	r.init.NumDim = r.dimLen(dimNumDim)
	r.init.NumNodes = r.dimLen(dimNumNodes)
	r.init.NumElem = r.dimLen(dimNumElem)
	r.init.NumElemBlk = r.dimLen(dimNumElemBlk)
	r.init.NumNodeSets = r.dimLen(dimNumNodeSets)
	r.init.NumSideSets = r.dimLen(dimNumSideSets)

	for _, c := range []Class{ElemBlock, NodeSet, SideSet} {
		if err := r.registerClass(c); err != nil {
			return nil, err
		}
	}
	r.readBlocks()

	for k := range numVarKinds {
		names, err := r.strings(varSchemas[k].names)
		if err != nil {
			return nil, err
		}
		idx, err := nameindex.Build(names)
		if err != nil {
			return nil, fmt.Errorf("%s variable names: %w", k, err)
		}
		r.vars[k] = idx
	}

	r.log.Debug().
		Int("num_nodes", r.init.NumNodes).
		Int("num_elem", r.init.NumElem).
		Int("num_el_blk", r.init.NumElemBlk).
		Int("steps", r.steps).
		Msg("opened model")
	return r, nil
}

// dimLen returns a dimension's length, or 0 when it is absent.
func (r *Reader) dimLen(name string) int {
	d, err := r.f.Dimension(name)
	if err != nil {
		return 0
	}
	return d.Len()
}

// registerClass maps the ids stored in the class's ID property to slots.
// A repeated id keeps its first slot.
func (r *Reader) registerClass(c Class) error {
	if r.init.count(c) == 0 {
		return nil
	}
	ids, err := r.ints(propVar(c, 1))
	if err != nil {
		return err
	}
	for slot, id := range ids {
		if err := r.ids.Register(c, id, slot); err != nil {
			r.log.Warn().Err(err).Int("slot", slot).Msg("skipping duplicate id")
		}
	}
	return nil
}

func (r *Reader) readBlocks() {
	ids := r.ids.IDs(ElemBlock)
	r.blocks = make([]Block, r.init.NumElemBlk)
	r.elemBase = make([]int, r.init.NumElemBlk)
	base := 0
	for slot := range r.blocks {
		b := Block{
			NumElem:      r.dimLen(dimElemInBlk(slot)),
			NodesPerElem: r.dimLen(dimNodPerEl(slot)),
			NumAttr:      r.dimLen(dimAttInBlk(slot)),
		}
		if slot < len(ids) {
			b.ID = ids[slot]
		}
		if v, err := r.f.Variable(varConnect(slot)); err == nil {
			if t, ok := v.Attrs.Get(attrElemType); ok {
				b.ElemType, _ = t.Text()
			}
		}
		r.blocks[slot] = b
		r.elemBase[slot] = base
		base += b.NumElem
	}
}

func (r *Reader) variable(name string) (*cdf.Variable, error) {
	v, err := r.f.Variable(name)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ints reads an integer variable; an absent variable reads as nil.
func (r *Reader) ints(name string) ([]int, error) {
	if !r.f.HasVariable(name) {
		return nil, nil
	}
	v, err := r.variable(name)
	if err != nil {
		return nil, err
	}
	return v.Ints()
}

func (r *Reader) float64s(name string) ([]float64, error) {
	if !r.f.HasVariable(name) {
		return nil, nil
	}
	v, err := r.variable(name)
	if err != nil {
		return nil, err
	}
	return v.Float64s()
}

func (r *Reader) strings(name string) ([]string, error) {
	if !r.f.HasVariable(name) {
		return nil, nil
	}
	v, err := r.variable(name)
	if err != nil {
		return nil, err
	}
	return v.Strings()
}

func (r *Reader) slot(c Class, id int) (int, error) {
	slot, err := r.ids.Lookup(c, id)
	if errors.Is(err, idindex.ErrNotFound) {
		return 0, fmt.Errorf("%s %d: %w", c, id, ErrNotFound)
	}
	return slot, err
}

func (r *Reader) checkStep(step int) error {
	if step < 0 || step >= r.steps {
		return fmt.Errorf("%w: step %d of %d", ErrStepRange, step, r.steps)
	}
	return nil
}

func (r *Reader) varIndex(kind VarKind, name string) (int, error) {
	i, ok := r.vars[kind].Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%s variable %q: %w", kind, name, ErrNotFound)
	}
	return i, nil
}

// File returns the underlying container.
func (r *Reader) File() *cdf.File { return r.f }

// Close releases the file.
func (r *Reader) Close() error { return r.f.Close() }

// Init returns the model sizes and title.
func (r *Reader) Init() InitParams { return r.init }

// WordSize returns the stored floating point width in bytes.
func (r *Reader) WordSize() int { return r.wordSize }

// IDs returns the ids of a class in slot order.
func (r *Reader) IDs(c Class) []int { return r.ids.IDs(c) }

// VarNames returns the names of a kind of result variable.
func (r *Reader) VarNames(kind VarKind) []string {
	if kind < 0 || kind >= numVarKinds {
		return nil
	}
	return r.vars[kind].Names()
}

// NumTimeSteps returns the number of stored steps.
func (r *Reader) NumTimeSteps() int { return r.steps }

// Times returns the time value of every step.
func (r *Reader) Times() ([]float64, error) {
	t, err := r.float64s(varTime)
	if err != nil {
		return nil, fmt.Errorf("times: %w", err)
	}
	return t, nil
}

// CoordNames returns the axis names.
func (r *Reader) CoordNames() ([]string, error) {
	names, err := r.strings(varCoordNames)
	if err != nil {
		return nil, fmt.Errorf("coord names: %w", err)
	}
	return names, nil
}

// Coord returns one array of node coordinates per spatial dimension.
func (r *Reader) Coord() ([][]float64, error) {
	out := make([][]float64, r.init.NumDim)
	for i := range out {
		c, err := r.float64s(coordVars[i])
		if err != nil {
			return nil, fmt.Errorf("coord: %w", err)
		}
		if c == nil {
			c = make([]float64, r.init.NumNodes)
		}
		out[i] = c
	}
	return out, nil
}

// ElemBlock returns a block's parameters.
func (r *Reader) ElemBlock(id int) (Block, error) {
	slot, err := r.slot(ElemBlock, id)
	if err != nil {
		return Block{}, err
	}
	return r.blocks[slot], nil
}

// Blocks returns every block in slot order.
func (r *Reader) Blocks() []Block { return slices.Clone(r.blocks) }

// ElemConn returns a block's connectivity as 0-based node indices.
func (r *Reader) ElemConn(id int) ([][]int, error) {
	slot, err := r.slot(ElemBlock, id)
	if err != nil {
		return nil, err
	}
	b := r.blocks[slot]
	flat, err := r.ints(varConnect(slot))
	if err != nil {
		return nil, fmt.Errorf("element connectivity %d: %w", id, err)
	}
	conn := make([][]int, b.NumElem)
	for i := range conn {
		row := make([]int, b.NodesPerElem)
		for j := range row {
			if k := i*b.NodesPerElem + j; k < len(flat) {
				row[j] = flat[k] - 1
			}
		}
		conn[i] = row
	}
	return conn, nil
}

// ElemAttr returns a block's per-element attributes.
func (r *Reader) ElemAttr(id int) ([][]float64, error) {
	slot, err := r.slot(ElemBlock, id)
	if err != nil {
		return nil, err
	}
	b := r.blocks[slot]
	flat, err := r.float64s(varAttrib(slot))
	if err != nil {
		return nil, fmt.Errorf("element attributes %d: %w", id, err)
	}
	out := make([][]float64, b.NumElem)
	for i := range out {
		row := make([]float64, b.NumAttr)
		if end := (i + 1) * b.NumAttr; end <= len(flat) {
			copy(row, flat[i*b.NumAttr:end])
		}
		out[i] = row
	}
	return out, nil
}

// ElemsInBlk returns the global element numbers of a block's elements.
func (r *Reader) ElemsInBlk(id int) ([]int, error) {
	slot, err := r.slot(ElemBlock, id)
	if err != nil {
		return nil, err
	}
	m, err := r.ElemNumMap()
	if err != nil {
		return nil, err
	}
	base, n := r.elemBase[slot], r.blocks[slot].NumElem
	if base+n > len(m) {
		return nil, fmt.Errorf("elements of block %d: %w: [%d, %d) of %d", id, cdf.ErrIntegrity, base, base+n, len(m))
	}
	return slices.Clone(m[base : base+n]), nil
}

// NodeSet returns a node set with 0-based node indices.
func (r *Reader) NodeSet(id int) (NodeSetData, error) {
	slot, err := r.slot(NodeSet, id)
	if err != nil {
		return NodeSetData{}, err
	}
	nodes, err := r.ints(varNodeNS(slot))
	if err != nil {
		return NodeSetData{}, fmt.Errorf("node set %d: %w", id, err)
	}
	df, err := r.float64s(varDistFactNS(slot))
	if err != nil {
		return NodeSetData{}, fmt.Errorf("node set %d: %w", id, err)
	}
	return NodeSetData{ID: id, Nodes: unshift(nodes), DistFact: df}, nil
}

// SideSet returns a side set with 0-based element indices.
func (r *Reader) SideSet(id int) (SideSetData, error) {
	slot, err := r.slot(SideSet, id)
	if err != nil {
		return SideSetData{}, err
	}
	out := SideSetData{ID: id}
	elems, err := r.ints(varElemSS(slot))
	if err == nil {
		out.Sides, err = r.ints(varSideSS(slot))
	}
	if err == nil {
		out.DistFact, err = r.float64s(varDistFactSS(slot))
	}
	if err != nil {
		return SideSetData{}, fmt.Errorf("side set %d: %w", id, err)
	}
	out.Elems = unshift(elems)
	return out, nil
}

func unshift(idx []int) []int {
	for i := range idx {
		idx[i]--
	}
	return idx
}

// GlobVars returns every global variable at a step.
func (r *Reader) GlobVars(step int) ([]float64, error) {
	if err := r.checkStep(step); err != nil {
		return nil, err
	}
	if r.vars[Global].Len() == 0 {
		return nil, nil
	}
	v, err := r.variable(varGloVals)
	if err != nil {
		return nil, fmt.Errorf("global vars: %w", err)
	}
	return v.RecordFloat64s(step)
}

// GlobVarTime returns one global variable over every step.
func (r *Reader) GlobVarTime(name string) ([]float64, error) {
	i, err := r.varIndex(Global, name)
	if err != nil {
		return nil, err
	}
	return r.history(varGloVals, i)
}

// NodalVar returns one nodal variable at a step.
func (r *Reader) NodalVar(step int, name string) ([]float64, error) {
	i, err := r.varIndex(Nodal, name)
	if err != nil {
		return nil, err
	}
	if err := r.checkStep(step); err != nil {
		return nil, err
	}
	v, err := r.variable(varNodVals(i))
	if err != nil {
		return nil, fmt.Errorf("nodal var %q: %w", name, err)
	}
	return v.RecordFloat64s(step)
}

// NodalVarTime returns one nodal variable at a 0-based node over every
// step.
func (r *Reader) NodalVarTime(name string, node int) ([]float64, error) {
	i, err := r.varIndex(Nodal, name)
	if err != nil {
		return nil, err
	}
	if node < 0 || node >= r.init.NumNodes {
		return nil, fmt.Errorf("nodal var %q: node %d of %d: %w", name, node, r.init.NumNodes, ErrNotFound)
	}
	return r.history(varNodVals(i), node)
}

// history reads element col of every record of a variable.
func (r *Reader) history(name string, col int) ([]float64, error) {
	v, err := r.variable(name)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", name, err)
	}
	rowLen := 1
	if shape := v.Shape(); len(shape) > 1 {
		for _, n := range shape[1:] {
			rowLen *= n
		}
	}
	out := make([]float64, r.steps)
	for step := range out {
		x, err := v.Float64At(step*rowLen + col)
		if err != nil {
			return nil, fmt.Errorf("history of %s: %w", name, err)
		}
		out[step] = x
	}
	return out, nil
}

// elemVarSlot returns the stored array of an element variable on a block,
// or nil when the pair is absent.
func (r *Reader) elemVarSlot(index, slot int) *cdf.Variable {
	v, err := r.f.Variable(varElemVals(index, slot))
	if err != nil {
		return nil
	}
	return v
}

// ElemVar returns one element variable at a step across every block in slot
// order. Blocks without the variable read as zeros.
func (r *Reader) ElemVar(step int, name string) ([]float64, error) {
	i, err := r.varIndex(Element, name)
	if err != nil {
		return nil, err
	}
	if err := r.checkStep(step); err != nil {
		return nil, err
	}
	out := make([]float64, 0, r.init.NumElem)
	for slot, b := range r.blocks {
		v := r.elemVarSlot(i, slot)
		if v == nil {
			out = append(out, make([]float64, b.NumElem)...)
			continue
		}
		vals, err := v.RecordFloat64s(step)
		if err != nil {
			return nil, fmt.Errorf("element var %q: %w", name, err)
		}
		out = append(out, vals...)
	}
	return out, nil
}

// ElemVarBlock returns one element variable on one block at a step.
func (r *Reader) ElemVarBlock(step int, name string, id int) ([]float64, error) {
	i, err := r.varIndex(Element, name)
	if err != nil {
		return nil, err
	}
	slot, err := r.slot(ElemBlock, id)
	if err != nil {
		return nil, err
	}
	if err := r.checkStep(step); err != nil {
		return nil, err
	}
	v := r.elemVarSlot(i, slot)
	if v == nil {
		return nil, fmt.Errorf("element var %q on block %d: %w", name, id, ErrNotFound)
	}
	return v.RecordFloat64s(step)
}

// ElemVarTime returns one element variable at a 0-based element index,
// counted across blocks in slot order, over every step.
func (r *Reader) ElemVarTime(name string, elem int) ([]float64, error) {
	for slot, b := range r.blocks {
		if elem >= r.elemBase[slot] && elem < r.elemBase[slot]+b.NumElem {
			return r.elemVarTime(name, slot, elem-r.elemBase[slot])
		}
	}
	return nil, fmt.Errorf("element var %q: element %d of %d: %w", name, elem, r.init.NumElem, ErrNotFound)
}

// ElemVarTimeInBlock returns one element variable at a 0-based element of a
// block over every step.
func (r *Reader) ElemVarTimeInBlock(name string, id, elem int) ([]float64, error) {
	slot, err := r.slot(ElemBlock, id)
	if err != nil {
		return nil, err
	}
	if elem < 0 || elem >= r.blocks[slot].NumElem {
		return nil, fmt.Errorf("element var %q: element %d of block %d: %w", name, elem, id, ErrNotFound)
	}
	return r.elemVarTime(name, slot, elem)
}

func (r *Reader) elemVarTime(name string, slot, elem int) ([]float64, error) {
	i, err := r.varIndex(Element, name)
	if err != nil {
		return nil, err
	}
	if r.elemVarSlot(i, slot) == nil {
		return nil, fmt.Errorf("element var %q on block %d: %w", name, r.blocks[slot].ID, ErrNotFound)
	}
	return r.history(varElemVals(i, slot), elem)
}

// ElemVarTab returns the element variable truth table, one row per block.
// Files without a stored table report the pairs that have value arrays.
func (r *Reader) ElemVarTab() ([][]bool, error) {
	n := r.vars[Element].Len()
	flat, err := r.ints(varElemVarTab)
	if err != nil {
		return nil, fmt.Errorf("element var table: %w", err)
	}
	tab := make([][]bool, len(r.blocks))
	for slot := range tab {
		row := make([]bool, n)
		for j := range row {
			if flat != nil {
				row[j] = slot*n+j < len(flat) && flat[slot*n+j] != 0
			} else {
				row[j] = r.elemVarSlot(j, slot) != nil
			}
		}
		tab[slot] = row
	}
	return tab, nil
}

// QARecords returns the stored QA records.
func (r *Reader) QARecords() ([]QARecord, error) {
	s, err := r.strings(varQARecords)
	if err != nil {
		return nil, fmt.Errorf("qa records: %w", err)
	}
	out := make([]QARecord, 0, len(s)/4)
	for i := 0; i+4 <= len(s); i += 4 {
		out = append(out, QARecord{Code: s[i], Version: s[i+1], Date: s[i+2], Time: s[i+3]})
	}
	return out, nil
}

// Info returns the information records.
func (r *Reader) Info() ([]string, error) {
	s, err := r.strings(varInfo)
	if err != nil {
		return nil, fmt.Errorf("info: %w", err)
	}
	return s, nil
}

// Names returns the object names of a class in slot order.
func (r *Reader) Names(c Class) ([]string, error) {
	s, err := schemaFor(c)
	if err != nil {
		return nil, err
	}
	names, err := r.strings(s.names)
	if err != nil {
		return nil, fmt.Errorf("%s names: %w", c, err)
	}
	return names, nil
}

func (r *Reader) numMap(name string, n int) ([]int, error) {
	m, err := r.ints(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if m != nil {
		return m, nil
	}
	m = make([]int, n)
	for i := range m {
		m[i] = i + 1
	}
	return m, nil
}

// ElemNumMap returns the global element numbers, 1..NumElem when none are
// stored.
func (r *Reader) ElemNumMap() ([]int, error) { return r.numMap(varElemNumMap, r.init.NumElem) }

// NodeNumMap returns the global node numbers, 1..NumNodes when none are
// stored.
func (r *Reader) NodeNumMap() ([]int, error) { return r.numMap(varNodeNumMap, r.init.NumNodes) }

// PropNames returns the property names of a class in column order.
func (r *Reader) PropNames(c Class) []string {
	var names []string
	for column := 1; ; column++ {
		v, err := r.f.Variable(propVar(c, column))
		if err != nil {
			return names
		}
		name := ""
		if a, ok := v.Attrs.Get(attrPropName); ok {
			name, _ = a.Text()
		}
		names = append(names, name)
	}
}

// Prop returns a property value of one object.
func (r *Reader) Prop(c Class, name string, id int) (int, error) {
	if _, err := schemaFor(c); err != nil {
		return 0, err
	}
	column := slices.Index(r.PropNames(c), name)
	if column < 0 {
		return 0, fmt.Errorf("%s property %q: %w", c, name, ErrNotFound)
	}
	slot, err := r.slot(c, id)
	if err != nil {
		return 0, err
	}
	v, err := r.variable(propVar(c, column+1))
	if err != nil {
		return 0, err
	}
	x, err := v.Float64At(slot)
	if err != nil {
		return 0, fmt.Errorf("%s property %q: %w", c, name, err)
	}
	return int(x), nil
}
