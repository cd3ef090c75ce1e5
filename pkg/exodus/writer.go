package exodus

import (
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/cdf"
	"github.com/eunmann/exocdf/pkg/idindex"
)

type writerState int

const (
	stateCreated writerState = iota
	stateInitialized
	statePopulated
	stateClosed
)

func (s writerState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateInitialized:
		return "initialized"
	case statePopulated:
		return "populated"
	case stateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Writer builds an ExodusII file.
//
// Calls follow the file's lifecycle: PutInit fixes the model sizes, each
// block or set is dimensioned by PutElemBlock or a Put*Param call and then
// filled by the matching data call, and result variables are declared with
// PutVarParam before values are written per time step. Dimensions and
// variables can only be added until the first Sync, which fixes the layout;
// Close syncs and releases the file.
//
// Steps passed to PutTime and the Put*Var calls are expected to be
// non-decreasing. This is not checked; writing a step past the current count
// zero-fills the steps in between.
//
// Thread Safety: a Writer must not be used from multiple goroutines.
type Writer struct {
	f     *cdf.File
	ids   *idindex.Registry
	state writerState
	init  InitParams
	opts  options
	log   zerolog.Logger

	blocks   []Block
	nodeSets []set
	sideSets []set

	varCount   [numVarKinds]int
	varNames   [numVarKinds][]string
	varIndex   [numVarKinds]map[string]int
	elemVarTab [][]bool
	props      map[Class][]string
}

// Create starts a new ExodusII file at path.
func Create(path string, opts ...Option) (*Writer, error) {
	o := buildOptions(opts)
	f, err := cdf.Create(path, o.cdfOptions()...)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		f:     f,
		ids:   idindex.New(),
		opts:  o,
		log:   o.log.With().Str("path", path).Logger(),
		props: make(map[Class][]string),
	}

	fileSize := int32(0)
	if o.version == cdf.Version2 {
		fileSize = 1
	}
	d := w.definer()
	d.global(attrAPIVersion, cdf.Float32s(apiVersion))
	d.global(attrVersion, cdf.Float32s(formatVersion))
	d.global(attrWordSize, cdf.Int32s(int32(o.wordSize)))
	d.global(attrFileSize, cdf.Int32s(fileSize))
	d.global(attrMaxNameLen, cdf.Int32s(MaxNameLength))
	if d.err != nil {
		f.Close()
		return nil, fmt.Errorf("create %s: %w", path, d.err)
	}
	return w, nil
}

// definer runs a sequence of header changes, keeping the first error.
type definer struct {
	f   *cdf.File
	err error
}

func (w *Writer) definer() *definer { return &definer{f: w.f} }

func (d *definer) dim(name string, n int) {
	if d.err != nil {
		return
	}
	_, d.err = d.f.CreateDimension(name, n)
}

func (d *definer) variable(name string, t cdf.Type, dims ...string) *cdf.Variable {
	if d.err != nil {
		return nil
	}
	v, err := d.f.CreateVariable(name, t, dims...)
	d.err = err
	return v
}

func (d *definer) attr(v *cdf.Variable, name string, val cdf.Value) {
	if d.err != nil || v == nil {
		return
	}
	d.err = v.Attrs.Set(name, val)
}

func (d *definer) global(name string, val cdf.Value) {
	if d.err != nil {
		return
	}
	d.err = d.f.Attrs.Set(name, val)
}

func (w *Writer) ready(op string) error {
	switch w.state {
	case stateCreated:
		return fmt.Errorf("%s: %w: PutInit not called", op, ErrState)
	case stateClosed:
		return fmt.Errorf("%s: %w: writer closed", op, ErrState)
	}
	return nil
}

func (w *Writer) populated() {
	if w.state == stateInitialized {
		w.state = statePopulated
	}
}

// fit truncates s to limit bytes, logging a warning when it does.
func (w *Writer) fit(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	w.log.Warn().Str("name", s).Int("max", limit).Msg("truncating name")
	return s[:limit]
}

func (w *Writer) putStrings(name string, strs []string, limit int) error {
	v, err := w.f.Variable(name)
	if err != nil {
		return err
	}
	for i, s := range strs {
		if err := v.PutString(i, w.fit(s, limit)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) putAt(name string, index int, value any) error {
	v, err := w.f.Variable(name)
	if err != nil {
		return err
	}
	return v.PutAt(index, value)
}

// PutInit declares the model sizes and allocates the per-class id, status
// and name arrays, all zero-filled.
func (w *Writer) PutInit(p InitParams) error {
	if w.state != stateCreated {
		return fmt.Errorf("put init: %w: writer is %s", ErrState, w.state)
	}
	if p.NumDim < 1 || p.NumDim > 3 {
		return fmt.Errorf("put init: %w: num_dim %d", ErrShape, p.NumDim)
	}
	if min(p.NumNodes, p.NumElem, p.NumElemBlk, p.NumNodeSets, p.NumSideSets) < 0 {
		return fmt.Errorf("put init: %w: negative count in %+v", ErrShape, p)
	}
	p.Title = w.fit(p.Title, MaxLineLength)

	d := w.definer()
	d.global(attrTitle, cdf.Text(p.Title))
	d.dim(dimLenString, LenString)
	d.dim(dimLenLine, LenLine)
	d.dim(dimFour, 4)
	d.dim(dimTimeStep, cdf.Unlimited)
	d.dim(dimNumDim, p.NumDim)
	if p.NumNodes > 0 {
		d.dim(dimNumNodes, p.NumNodes)
	}
	if p.NumElem > 0 {
		d.dim(dimNumElem, p.NumElem)
	}

	d.variable(varTime, w.opts.floatType(), dimTimeStep)
	d.variable(varCoordNames, cdf.Char, dimNumDim, dimLenString)
	if p.NumNodes > 0 {
		for i := range p.NumDim {
			d.variable(coordVars[i], w.opts.floatType(), dimNumNodes)
		}
	}

	for _, c := range []Class{ElemBlock, NodeSet, SideSet} {
		n := p.count(c)
		if n == 0 {
			continue
		}
		s := classSchemas[c]
		d.dim(s.countDim, n)
		d.variable(s.status, cdf.Int, s.countDim)
		d.attr(d.variable(propVar(c, 1), cdf.Int, s.countDim), attrPropName, cdf.Text(propID))
		d.variable(s.names, cdf.Char, s.countDim, dimLenString)
		w.props[c] = []string{propID}
	}
	if d.err != nil {
		return fmt.Errorf("put init: %w", d.err)
	}

	w.init = p
	w.state = stateInitialized
	w.log.Debug().
		Int("num_dim", p.NumDim).
		Int("num_nodes", p.NumNodes).
		Int("num_elem", p.NumElem).
		Int("num_el_blk", p.NumElemBlk).
		Int("num_node_sets", p.NumNodeSets).
		Int("num_side_sets", p.NumSideSets).
		Msg("initialized model")
	return nil
}

// PutCoordNames stores one axis name per spatial dimension.
func (w *Writer) PutCoordNames(names []string) error {
	if err := w.ready("put coord names"); err != nil {
		return err
	}
	if len(names) != w.init.NumDim {
		return fmt.Errorf("put coord names: %w: %d names for %d dimensions", ErrShape, len(names), w.init.NumDim)
	}
	if err := w.putStrings(varCoordNames, names, MaxNameLength); err != nil {
		return fmt.Errorf("put coord names: %w", err)
	}
	w.populated()
	return nil
}

// PutCoord stores one coordinate array of NumNodes values per spatial
// dimension.
func (w *Writer) PutCoord(coords ...[]float64) error {
	if err := w.ready("put coord"); err != nil {
		return err
	}
	if len(coords) != w.init.NumDim {
		return fmt.Errorf("put coord: %w: %d arrays for %d dimensions", ErrShape, len(coords), w.init.NumDim)
	}
	for i, c := range coords {
		if len(c) != w.init.NumNodes {
			return fmt.Errorf("put coord: %w: %s has %d values for %d nodes",
				ErrShape, coordVars[i], len(c), w.init.NumNodes)
		}
		if w.init.NumNodes == 0 {
			continue
		}
		v, err := w.f.Variable(coordVars[i])
		if err != nil {
			return fmt.Errorf("put coord: %w", err)
		}
		if err := v.Put(c); err != nil {
			return fmt.Errorf("put coord: %w", err)
		}
	}
	w.populated()
	return nil
}

// claim returns the slot id will take in class c, enforcing unique ids and
// the PutInit quota. Nothing is recorded until register.
func (w *Writer) claim(c Class, id int) (int, error) {
	if prev, err := w.ids.Lookup(c, id); err == nil {
		return 0, fmt.Errorf("%s %d: %w (slot %d)", c, id, ErrDuplicateID, prev)
	}
	if w.ids.Count(c) >= w.init.count(c) {
		return 0, fmt.Errorf("%w: %d %ss declared", ErrQuota, w.init.count(c), c)
	}
	return w.ids.Count(c), nil
}

// register records id in the next slot of class c and writes its id and
// status to the class arrays. Call it once the entity's dimensions exist.
func (w *Writer) register(c Class, id int, active bool) error {
	slot, err := w.ids.Add(c, id)
	if err != nil {
		return err
	}
	status := 0
	if active {
		status = 1
	}
	if err := w.putAt(propVar(c, 1), slot, []int{id}); err != nil {
		return err
	}
	return w.putAt(classSchemas[c].status, slot, []int{status})
}

func (w *Writer) lookup(c Class, id int) (int, error) {
	slot, err := w.ids.Lookup(c, id)
	if err != nil {
		return 0, fmt.Errorf("%s %d: %w", c, id, ErrNotFound)
	}
	return slot, nil
}

// PutElemBlock dimensions an element block and creates its connectivity
// array tagged with the element type.
func (w *Writer) PutElemBlock(id int, elemType string, nElem, nPerElem, nAttr int) error {
	op := fmt.Sprintf("put element block %d", id)
	if err := w.ready(op); err != nil {
		return err
	}
	if min(nElem, nPerElem, nAttr) < 0 {
		return fmt.Errorf("%s: %w: negative size", op, ErrShape)
	}
	slot, err := w.claim(ElemBlock, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	elemType = w.fit(elemType, MaxNameLength)

	d := w.definer()
	if nElem > 0 {
		d.dim(dimElemInBlk(slot), nElem)
		if nPerElem > 0 {
			d.dim(dimNodPerEl(slot), nPerElem)
			conn := d.variable(varConnect(slot), cdf.Int, dimElemInBlk(slot), dimNodPerEl(slot))
			d.attr(conn, attrElemType, cdf.Text(elemType))
		}
		if nAttr > 0 {
			d.dim(dimAttInBlk(slot), nAttr)
			d.variable(varAttrib(slot), w.opts.floatType(), dimElemInBlk(slot), dimAttInBlk(slot))
		}
	}
	if d.err != nil {
		return fmt.Errorf("%s: %w", op, d.err)
	}
	if err := w.register(ElemBlock, id, nElem > 0); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.blocks = append(w.blocks, Block{
		ID:           id,
		ElemType:     elemType,
		NumElem:      nElem,
		NodesPerElem: nPerElem,
		NumAttr:      nAttr,
	})
	w.log.Debug().Int("id", id).Int("slot", slot).Str("type", elemType).Int("num_elem", nElem).Msg("defined element block")
	return nil
}

func (w *Writer) block(id int) (int, Block, error) {
	slot, err := w.lookup(ElemBlock, id)
	if err != nil {
		return 0, Block{}, err
	}
	return slot, w.blocks[slot], nil
}

// PutElemConn stores a block's connectivity given as 0-based node indices,
// one row of NodesPerElem nodes per element.
func (w *Writer) PutElemConn(id int, conn [][]int) error {
	op := fmt.Sprintf("put element connectivity %d", id)
	if err := w.ready(op); err != nil {
		return err
	}
	slot, b, err := w.block(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(conn) != b.NumElem {
		return fmt.Errorf("%s: %w: %d rows, want (%d, %d)", op, ErrShape, len(conn), b.NumElem, b.NodesPerElem)
	}
	flat := make([]int32, 0, b.NumElem*b.NodesPerElem)
	for i, row := range conn {
		if len(row) != b.NodesPerElem {
			return fmt.Errorf("%s: %w: row %d has %d nodes, want (%d, %d)",
				op, ErrShape, i, len(row), b.NumElem, b.NodesPerElem)
		}
		for _, n := range row {
			flat = append(flat, int32(n+1))
		}
	}
	if len(flat) == 0 {
		return nil
	}
	v, err := w.f.Variable(varConnect(slot))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := v.Put(flat); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.populated()
	return nil
}

// PutElemAttr stores NumAttr attribute values per element of a block.
func (w *Writer) PutElemAttr(id int, attr [][]float64) error {
	op := fmt.Sprintf("put element attributes %d", id)
	if err := w.ready(op); err != nil {
		return err
	}
	slot, b, err := w.block(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(attr) != b.NumElem {
		return fmt.Errorf("%s: %w: %d rows, want (%d, %d)", op, ErrShape, len(attr), b.NumElem, b.NumAttr)
	}
	flat := make([]float64, 0, b.NumElem*b.NumAttr)
	for i, row := range attr {
		if len(row) != b.NumAttr {
			return fmt.Errorf("%s: %w: row %d has %d values, want (%d, %d)",
				op, ErrShape, i, len(row), b.NumElem, b.NumAttr)
		}
		flat = append(flat, row...)
	}
	if len(flat) == 0 {
		return nil
	}
	v, err := w.f.Variable(varAttrib(slot))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := v.Put(flat); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.populated()
	return nil
}

// PutNodeSetParam dimensions a node set of n nodes. nDF is the number of
// distribution factors and must be 0 or n.
func (w *Writer) PutNodeSetParam(id, n, nDF int) error {
	op := fmt.Sprintf("put node set param %d", id)
	if err := w.ready(op); err != nil {
		return err
	}
	if n < 0 || (nDF != 0 && nDF != n) {
		return fmt.Errorf("%s: %w: %d nodes with %d distribution factors", op, ErrShape, n, nDF)
	}
	slot, err := w.claim(NodeSet, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	d := w.definer()
	if n > 0 {
		d.dim(dimNodNS(slot), n)
		d.variable(varNodeNS(slot), cdf.Int, dimNodNS(slot))
		if nDF > 0 {
			d.variable(varDistFactNS(slot), w.opts.floatType(), dimNodNS(slot))
		}
	}
	if d.err != nil {
		return fmt.Errorf("%s: %w", op, d.err)
	}
	if err := w.register(NodeSet, id, n > 0); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.nodeSets = append(w.nodeSets, set{count: n, numDF: nDF})
	return nil
}

// PutNodeSet stores a node set's 0-based node indices.
func (w *Writer) PutNodeSet(id int, nodes []int) error {
	op := fmt.Sprintf("put node set %d", id)
	if err := w.ready(op); err != nil {
		return err
	}
	slot, err := w.lookup(NodeSet, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s := w.nodeSets[slot]
	if len(nodes) != s.count {
		return fmt.Errorf("%s: %w: %d nodes, want %d", op, ErrShape, len(nodes), s.count)
	}
	if s.count == 0 {
		return nil
	}
	if err := w.putShifted(varNodeNS(slot), nodes); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.populated()
	return nil
}

// PutNodeSetDistFact stores a node set's distribution factors.
func (w *Writer) PutNodeSetDistFact(id int, df []float64) error {
	op := fmt.Sprintf("put node set distribution factors %d", id)
	if err := w.ready(op); err != nil {
		return err
	}
	slot, err := w.lookup(NodeSet, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := w.putDistFact(varDistFactNS(slot), w.nodeSets[slot].numDF, df); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PutSideSetParam dimensions a side set of nSides element faces with nDF
// distribution factors.
func (w *Writer) PutSideSetParam(id, nSides, nDF int) error {
	op := fmt.Sprintf("put side set param %d", id)
	if err := w.ready(op); err != nil {
		return err
	}
	if nSides < 0 || nDF < 0 {
		return fmt.Errorf("%s: %w: negative size", op, ErrShape)
	}
	slot, err := w.claim(SideSet, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	d := w.definer()
	if nSides > 0 {
		d.dim(dimSideSS(slot), nSides)
		d.variable(varElemSS(slot), cdf.Int, dimSideSS(slot))
		d.variable(varSideSS(slot), cdf.Int, dimSideSS(slot))
	}
	if nDF > 0 {
		d.dim(dimDFSS(slot), nDF)
		d.variable(varDistFactSS(slot), w.opts.floatType(), dimDFSS(slot))
	}
	if d.err != nil {
		return fmt.Errorf("%s: %w", op, d.err)
	}
	if err := w.register(SideSet, id, nSides > 0); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.sideSets = append(w.sideSets, set{count: nSides, numDF: nDF})
	return nil
}

// PutSideSet stores a side set's 0-based element indices and their 1-based
// local side numbers.
func (w *Writer) PutSideSet(id int, elems, sides []int) error {
	op := fmt.Sprintf("put side set %d", id)
	if err := w.ready(op); err != nil {
		return err
	}
	slot, err := w.lookup(SideSet, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s := w.sideSets[slot]
	if len(elems) != s.count || len(sides) != s.count {
		return fmt.Errorf("%s: %w: %d elements and %d sides, want %d", op, ErrShape, len(elems), len(sides), s.count)
	}
	if s.count == 0 {
		return nil
	}
	if err := w.putShifted(varElemSS(slot), elems); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	v, err := w.f.Variable(varSideSS(slot))
	if err == nil {
		err = v.Put(sides)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.populated()
	return nil
}

// PutSideSetDistFact stores a side set's distribution factors.
func (w *Writer) PutSideSetDistFact(id int, df []float64) error {
	op := fmt.Sprintf("put side set distribution factors %d", id)
	if err := w.ready(op); err != nil {
		return err
	}
	slot, err := w.lookup(SideSet, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := w.putDistFact(varDistFactSS(slot), w.sideSets[slot].numDF, df); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// putShifted writes 0-based indices as 1-based values.
func (w *Writer) putShifted(name string, idx []int) error {
	v, err := w.f.Variable(name)
	if err != nil {
		return err
	}
	shifted := make([]int32, len(idx))
	for i, x := range idx {
		shifted[i] = int32(x + 1)
	}
	return v.Put(shifted)
}

func (w *Writer) putDistFact(name string, declared int, df []float64) error {
	if len(df) != declared {
		return fmt.Errorf("%w: %d factors, want %d", ErrShape, len(df), declared)
	}
	if declared == 0 {
		return nil
	}
	v, err := w.f.Variable(name)
	if err != nil {
		return err
	}
	w.populated()
	return v.Put(df)
}

// PutVarParam declares n result variables of a kind. Global and nodal
// value arrays are created immediately; element value arrays are created
// per (variable, block) pair when first written or at Sync.
func (w *Writer) PutVarParam(kind VarKind, n int) error {
	op := fmt.Sprintf("put %s var param", kind)
	if err := w.ready(op); err != nil {
		return err
	}
	vs, err := varSchemaFor(kind)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if w.varCount[kind] > 0 {
		return fmt.Errorf("%s: %w: already declared", op, ErrState)
	}
	if n < 0 {
		return fmt.Errorf("%s: %w: %d variables", op, ErrShape, n)
	}
	if n == 0 {
		return nil
	}
	switch {
	case kind == Nodal && w.init.NumNodes == 0:
		return fmt.Errorf("%s: %w: model has no nodes", op, ErrState)
	case kind == Element && w.init.NumElemBlk == 0:
		return fmt.Errorf("%s: %w: model has no element blocks", op, ErrState)
	}

	d := w.definer()
	d.dim(vs.countDim, n)
	d.variable(vs.names, cdf.Char, vs.countDim, dimLenString)
	switch kind {
	case Global:
		d.variable(varGloVals, w.opts.floatType(), dimTimeStep, dimNumGloVar)
	case Nodal:
		for i := range n {
			d.variable(varNodVals(i), w.opts.floatType(), dimTimeStep, dimNumNodes)
		}
	}
	if d.err != nil {
		return fmt.Errorf("%s: %w", op, d.err)
	}
	w.varCount[kind] = n
	w.varNames[kind] = make([]string, n)
	w.varIndex[kind] = make(map[string]int, n)
	return nil
}

// PutVarNames names the variables declared by PutVarParam.
func (w *Writer) PutVarNames(kind VarKind, names []string) error {
	op := fmt.Sprintf("put %s var names", kind)
	if err := w.ready(op); err != nil {
		return err
	}
	vs, err := varSchemaFor(kind)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(names) != w.varCount[kind] {
		return fmt.Errorf("%s: %w: %d names for %d variables", op, ErrShape, len(names), w.varCount[kind])
	}
	if len(names) == 0 {
		return nil
	}
	if err := w.putStrings(vs.names, names, MaxNameLength); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	clear(w.varIndex[kind])
	for i, name := range names {
		name = w.fit(name, MaxNameLength)
		w.varNames[kind][i] = name
		if _, dup := w.varIndex[kind][name]; !dup {
			w.varIndex[kind][name] = i
		}
	}
	return nil
}

// PutElemVarTab declares which element variables exist on which blocks.
// tab has one row per element block and one column per element variable.
// Without a table every pair exists.
func (w *Writer) PutElemVarTab(tab [][]bool) error {
	const op = "put element var table"
	if err := w.ready(op); err != nil {
		return err
	}
	n := w.varCount[Element]
	if n == 0 {
		return fmt.Errorf("%s: %w: no element variables declared", op, ErrState)
	}
	if w.elemVarTab != nil || w.f.HasVariable(varElemVarTab) {
		return fmt.Errorf("%s: %w: table already defined", op, ErrState)
	}
	if len(tab) != w.init.NumElemBlk {
		return fmt.Errorf("%s: %w: %d rows, want (%d, %d)", op, ErrShape, len(tab), w.init.NumElemBlk, n)
	}
	for i, row := range tab {
		if len(row) != n {
			return fmt.Errorf("%s: %w: row %d has %d entries, want (%d, %d)", op, ErrShape, i, len(row), w.init.NumElemBlk, n)
		}
	}
	w.elemVarTab = make([][]bool, len(tab))
	for i, row := range tab {
		w.elemVarTab[i] = slices.Clone(row)
	}
	if err := w.defineElemVarTab(); err != nil {
		w.elemVarTab = nil
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (w *Writer) elemVarPresent(slot, index int) bool {
	return w.elemVarTab == nil || w.elemVarTab[slot][index]
}

// defineElemVarTab creates and fills elem_var_tab from the current table.
func (w *Writer) defineElemVarTab() error {
	n := w.varCount[Element]
	v, err := w.f.CreateVariable(varElemVarTab, cdf.Int, dimNumElemBlk, dimNumElemVar)
	if err != nil {
		return err
	}
	flat := make([]int32, w.init.NumElemBlk*n)
	for slot := range w.init.NumElemBlk {
		for j := range n {
			if w.elemVarPresent(slot, j) {
				flat[slot*n+j] = 1
			}
		}
	}
	return v.Put(flat)
}

// elemVar returns the value array of element variable index on a block,
// creating it while the layout is still open.
func (w *Writer) elemVar(slot, index int) (*cdf.Variable, error) {
	name := varElemVals(index, slot)
	if v, err := w.f.Variable(name); err == nil {
		return v, nil
	}
	b := w.blocks[slot]
	if !w.elemVarPresent(slot, index) {
		return nil, fmt.Errorf("%w: variable %q on block %d excluded by table",
			ErrNotFound, w.varNames[Element][index], b.ID)
	}
	if b.NumElem == 0 {
		return nil, fmt.Errorf("%w: block %d has no elements", ErrNotFound, b.ID)
	}
	return w.f.CreateVariable(name, w.opts.floatType(), dimTimeStep, dimElemInBlk(slot))
}

func checkStep(step int) error {
	if step < 0 {
		return fmt.Errorf("%w: step %d", ErrStepRange, step)
	}
	return nil
}

// PutTime stores the simulation time of a step.
func (w *Writer) PutTime(step int, t float64) error {
	op := fmt.Sprintf("put time %d", step)
	if err := w.ready(op); err != nil {
		return err
	}
	if err := checkStep(step); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	v, err := w.f.Variable(varTime)
	if err == nil {
		err = v.PutRecord(step, []float64{t})
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.populated()
	return nil
}

// PutGlobVars stores every global variable for a step.
func (w *Writer) PutGlobVars(step int, vals []float64) error {
	op := fmt.Sprintf("put global vars %d", step)
	if err := w.ready(op); err != nil {
		return err
	}
	if err := checkStep(step); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if w.varCount[Global] == 0 {
		return fmt.Errorf("%s: %w: no global variables declared", op, ErrState)
	}
	if len(vals) != w.varCount[Global] {
		return fmt.Errorf("%s: %w: %d values for %d variables", op, ErrShape, len(vals), w.varCount[Global])
	}
	v, err := w.f.Variable(varGloVals)
	if err == nil {
		err = v.PutRecord(step, vals)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.populated()
	return nil
}

func (w *Writer) varIndexOf(kind VarKind, name string) (int, error) {
	i, ok := w.varIndex[kind][name]
	if !ok {
		return 0, fmt.Errorf("%s variable %q: %w", kind, name, ErrNotFound)
	}
	return i, nil
}

// PutNodalVar stores one nodal variable for every node at a step.
func (w *Writer) PutNodalVar(step int, name string, vals []float64) error {
	op := fmt.Sprintf("put nodal var %q step %d", name, step)
	if err := w.ready(op); err != nil {
		return err
	}
	if err := checkStep(step); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	i, err := w.varIndexOf(Nodal, name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(vals) != w.init.NumNodes {
		return fmt.Errorf("%s: %w: %d values for %d nodes", op, ErrShape, len(vals), w.init.NumNodes)
	}
	v, err := w.f.Variable(varNodVals(i))
	if err == nil {
		err = v.PutRecord(step, vals)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.populated()
	return nil
}

// PutElemVar stores one element variable for every element of a block at a
// step.
func (w *Writer) PutElemVar(step int, name string, blockID int, vals []float64) error {
	op := fmt.Sprintf("put element var %q block %d step %d", name, blockID, step)
	if err := w.ready(op); err != nil {
		return err
	}
	if err := checkStep(step); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	i, err := w.varIndexOf(Element, name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	slot, b, err := w.block(blockID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(vals) != b.NumElem {
		return fmt.Errorf("%s: %w: %d values for %d elements", op, ErrShape, len(vals), b.NumElem)
	}
	v, err := w.elemVar(slot, i)
	if err == nil {
		err = v.PutRecord(step, vals)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.populated()
	return nil
}

// PutQARecords stores the QA records. Each field is a name-length string.
func (w *Writer) PutQARecords(recs []QARecord) error {
	const op = "put qa records"
	if err := w.ready(op); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	d := w.definer()
	d.dim(dimNumQARec, len(recs))
	v := d.variable(varQARecords, cdf.Char, dimNumQARec, dimFour, dimLenString)
	if d.err != nil {
		return fmt.Errorf("%s: %w", op, d.err)
	}
	for i, q := range recs {
		for j, s := range q.fields() {
			if err := v.PutString(i*4+j, w.fit(s, MaxNameLength)); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}
	return nil
}

// PutInfo stores free-text information records, one line each.
func (w *Writer) PutInfo(lines []string) error {
	const op = "put info"
	if err := w.ready(op); err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	d := w.definer()
	d.dim(dimNumInfo, len(lines))
	d.variable(varInfo, cdf.Char, dimNumInfo, dimLenLine)
	if d.err != nil {
		return fmt.Errorf("%s: %w", op, d.err)
	}
	if err := w.putStrings(varInfo, lines, MaxLineLength); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PutNames stores one name per object of a class, in slot order.
func (w *Writer) PutNames(c Class, names []string) error {
	op := fmt.Sprintf("put %s names", c)
	if err := w.ready(op); err != nil {
		return err
	}
	s, err := schemaFor(c)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(names) != w.init.count(c) {
		return fmt.Errorf("%s: %w: %d names for %d objects", op, ErrShape, len(names), w.init.count(c))
	}
	if len(names) == 0 {
		return nil
	}
	if err := w.putStrings(s.names, names, MaxNameLength); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (w *Writer) putNumMap(op, name, dim string, count int, m []int) error {
	if err := w.ready(op); err != nil {
		return err
	}
	if len(m) != count {
		return fmt.Errorf("%s: %w: %d entries for %d objects", op, ErrShape, len(m), count)
	}
	if count == 0 {
		return nil
	}
	v, err := w.f.Variable(name)
	if err != nil {
		v, err = w.f.CreateVariable(name, cdf.Int, dim)
	}
	if err == nil {
		err = v.Put(m)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PutElemNumMap stores the global element numbers.
func (w *Writer) PutElemNumMap(m []int) error {
	return w.putNumMap("put element number map", varElemNumMap, dimNumElem, w.init.NumElem, m)
}

// PutNodeNumMap stores the global node numbers.
func (w *Writer) PutNodeNumMap(m []int) error {
	return w.putNumMap("put node number map", varNodeNumMap, dimNumNodes, w.init.NumNodes, m)
}

// PutPropNames adds integer property columns to a class. Names that already
// exist are kept as they are.
func (w *Writer) PutPropNames(c Class, names []string) error {
	op := fmt.Sprintf("put %s property names", c)
	if err := w.ready(op); err != nil {
		return err
	}
	s, err := schemaFor(c)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if w.init.count(c) == 0 {
		return fmt.Errorf("%s: %w: no %ss declared", op, ErrState, c)
	}
	d := w.definer()
	for _, name := range names {
		name = w.fit(name, MaxNameLength)
		if slices.Contains(w.props[c], name) {
			continue
		}
		column := len(w.props[c]) + 1
		d.attr(d.variable(propVar(c, column), cdf.Int, s.countDim), attrPropName, cdf.Text(name))
		if d.err != nil {
			return fmt.Errorf("%s: %w", op, d.err)
		}
		w.props[c] = append(w.props[c], name)
	}
	return nil
}

// PutProp sets a property value of one object. The ID property is set by
// PutElemBlock and the Put*Param calls and cannot be changed here.
func (w *Writer) PutProp(c Class, id int, name string, value int) error {
	op := fmt.Sprintf("put %s %d property %q", c, id, name)
	if err := w.ready(op); err != nil {
		return err
	}
	if name == propID {
		return fmt.Errorf("%s: %w: ID is fixed at registration", op, ErrState)
	}
	column := slices.Index(w.props[c], name)
	if column < 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	slot, err := w.lookup(c, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := w.putAt(propVar(c, column+1), slot, []int{value}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// finalize creates the remaining element value arrays and the truth table
// before the layout is fixed.
func (w *Writer) finalize() error {
	if w.f.Defined() || w.varCount[Element] == 0 {
		return nil
	}
	for slot := range w.blocks {
		for j := range w.varCount[Element] {
			if !w.elemVarPresent(slot, j) || w.blocks[slot].NumElem == 0 {
				continue
			}
			if _, err := w.elemVar(slot, j); err != nil {
				return err
			}
		}
	}
	if !w.f.HasVariable(varElemVarTab) {
		return w.defineElemVarTab()
	}
	return nil
}

// Sync fixes the layout on first use and writes the file. Later calls
// rewrite it with the current data.
func (w *Writer) Sync() error {
	if w.state == stateClosed {
		return fmt.Errorf("sync: %w: writer closed", ErrState)
	}
	start := time.Now()
	if err := w.finalize(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.f.Flush(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	w.log.Debug().Int("steps", w.f.NumRecords()).Dur("elapsed", time.Since(start)).Msg("synced")
	return nil
}

// Close syncs and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.state == stateClosed {
		return nil
	}
	err := w.finalize()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.state = stateClosed
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Registered returns the ids of a class in slot order.
func (w *Writer) Registered(c Class) []int { return w.ids.IDs(c) }

// VarNames returns the names given to a kind of variable.
func (w *Writer) VarNames(kind VarKind) []string {
	if kind < 0 || kind >= numVarKinds {
		return nil
	}
	return slices.Clone(w.varNames[kind])
}

// PropNames returns the property columns of a class.
func (w *Writer) PropNames(c Class) []string {
	return slices.Clone(w.props[c])
}

