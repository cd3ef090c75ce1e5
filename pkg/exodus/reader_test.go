package exodus

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/eunmann/exocdf/pkg/cdf"
)

func openModel(t *testing.T, opts ...Option) *Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.exo")
	writeModel(t, path)
	r, err := Open(path, opts...)
	must(t, "Open", err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestReaderModel(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []Option
	}{
		{"mmap", nil},
		{"buffered", []Option{WithoutMmap()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := openModel(t, tc.opts...)

			if r.Init() != model.init {
				t.Errorf("Init = %+v, want %+v", r.Init(), model.init)
			}
			if got := r.IDs(ElemBlock); !reflect.DeepEqual(got, []int{10, 20}) {
				t.Errorf("IDs(ElemBlock) = %v", got)
			}
			coords, err := r.Coord()
			must(t, "Coord", err)
			if !reflect.DeepEqual(coords, [][]float64{model.x, model.y}) {
				t.Errorf("Coord = %v", coords)
			}
			conn, err := r.ElemConn(20)
			must(t, "ElemConn", err)
			if !reflect.DeepEqual(conn, model.conn20) {
				t.Errorf("ElemConn(20) = %v, want %v", conn, model.conn20)
			}
			attr, err := r.ElemAttr(10)
			must(t, "ElemAttr", err)
			if !reflect.DeepEqual(attr, model.attr10) {
				t.Errorf("ElemAttr(10) = %v", attr)
			}
			b, err := r.ElemBlock(10)
			must(t, "ElemBlock", err)
			if b != (Block{ID: 10, ElemType: "QUAD4", NumElem: 1, NodesPerElem: 4, NumAttr: 1}) {
				t.Errorf("ElemBlock(10) = %+v", b)
			}
		})
	}
}

func TestReaderSets(t *testing.T) {
	r := openModel(t)

	ns, err := r.NodeSet(100)
	must(t, "NodeSet", err)
	if !reflect.DeepEqual(ns, model.nodeSet) {
		t.Errorf("NodeSet = %+v, want %+v", ns, model.nodeSet)
	}
	ss, err := r.SideSet(300)
	must(t, "SideSet", err)
	if !reflect.DeepEqual(ss, model.sideSet) {
		t.Errorf("SideSet = %+v, want %+v", ss, model.sideSet)
	}
}

func TestReaderMetadata(t *testing.T) {
	r := openModel(t)

	qa, err := r.QARecords()
	must(t, "QARecords", err)
	if !reflect.DeepEqual(qa, model.qa) {
		t.Errorf("QARecords = %+v", qa)
	}
	info, err := r.Info()
	must(t, "Info", err)
	if !reflect.DeepEqual(info, model.info) {
		t.Errorf("Info = %v", info)
	}
	names, err := r.Names(ElemBlock)
	must(t, "Names", err)
	if !reflect.DeepEqual(names, model.blkNames) {
		t.Errorf("Names(ElemBlock) = %v", names)
	}
	emap, err := r.ElemNumMap()
	must(t, "ElemNumMap", err)
	if !reflect.DeepEqual(emap, model.elemMap) {
		t.Errorf("ElemNumMap = %v", emap)
	}
	nmap, err := r.NodeNumMap()
	must(t, "NodeNumMap", err)
	if !reflect.DeepEqual(nmap, model.nodeMap) {
		t.Errorf("NodeNumMap = %v", nmap)
	}
	inBlk, err := r.ElemsInBlk(20)
	must(t, "ElemsInBlk", err)
	if !reflect.DeepEqual(inBlk, []int{102}) {
		t.Errorf("ElemsInBlk(20) = %v, want [102]", inBlk)
	}
	if got := r.PropNames(ElemBlock); !reflect.DeepEqual(got, []string{"ID", "MATERIAL"}) {
		t.Errorf("PropNames = %v", got)
	}
	mat, err := r.Prop(ElemBlock, "MATERIAL", 20)
	must(t, "Prop", err)
	if mat != 8 {
		t.Errorf("Prop(MATERIAL, 20) = %d, want 8", mat)
	}
	id, err := r.Prop(ElemBlock, "ID", 10)
	must(t, "Prop(ID)", err)
	if id != 10 {
		t.Errorf("Prop(ID, 10) = %d, want 10", id)
	}
	tab, err := r.ElemVarTab()
	must(t, "ElemVarTab", err)
	if !reflect.DeepEqual(tab, model.elemTab) {
		t.Errorf("ElemVarTab = %v", tab)
	}
}

func TestReaderResults(t *testing.T) {
	r := openModel(t)

	if r.NumTimeSteps() != len(model.times) {
		t.Fatalf("NumTimeSteps = %d, want %d", r.NumTimeSteps(), len(model.times))
	}
	times, err := r.Times()
	must(t, "Times", err)
	if !reflect.DeepEqual(times, model.times) {
		t.Errorf("Times = %v", times)
	}
	if got := r.VarNames(Nodal); !reflect.DeepEqual(got, []string{"temp", "disp"}) {
		t.Errorf("VarNames(Nodal) = %v", got)
	}

	glob, err := r.GlobVars(2)
	must(t, "GlobVars", err)
	if !reflect.DeepEqual(glob, []float64{20}) {
		t.Errorf("GlobVars(2) = %v", glob)
	}
	energy, err := r.GlobVarTime("energy")
	must(t, "GlobVarTime", err)
	if !reflect.DeepEqual(energy, []float64{0, 10, 20}) {
		t.Errorf("GlobVarTime = %v", energy)
	}

	tv, err := r.NodalVar(1, "temp")
	must(t, "NodalVar", err)
	if tv[5] != temp(1, 5) {
		t.Errorf("NodalVar(1, temp)[5] = %v, want %v", tv[5], temp(1, 5))
	}
	hist, err := r.NodalVarTime("temp", 4)
	must(t, "NodalVarTime", err)
	if !reflect.DeepEqual(hist, []float64{temp(0, 4), temp(1, 4), temp(2, 4)}) {
		t.Errorf("NodalVarTime(temp, 4) = %v", hist)
	}

	all, err := r.ElemVar(1, "stress")
	must(t, "ElemVar", err)
	if !reflect.DeepEqual(all, []float64{stress(1, 10), stress(1, 20)}) {
		t.Errorf("ElemVar(1, stress) = %v", all)
	}
	// strain is excluded on block 20 and reads as zero there.
	strain, err := r.ElemVar(2, "strain")
	must(t, "ElemVar(strain)", err)
	if !reflect.DeepEqual(strain, []float64{0.2, 0}) {
		t.Errorf("ElemVar(2, strain) = %v, want [0.2 0]", strain)
	}
	blk, err := r.ElemVarBlock(0, "stress", 20)
	must(t, "ElemVarBlock", err)
	if !reflect.DeepEqual(blk, []float64{20}) {
		t.Errorf("ElemVarBlock(0, stress, 20) = %v", blk)
	}
	eh, err := r.ElemVarTime("stress", 1)
	must(t, "ElemVarTime", err)
	if !reflect.DeepEqual(eh, []float64{20, 21, 22}) {
		t.Errorf("ElemVarTime(stress, 1) = %v", eh)
	}
	bh, err := r.ElemVarTimeInBlock("stress", 10, 0)
	must(t, "ElemVarTimeInBlock", err)
	if !reflect.DeepEqual(bh, []float64{10, 11, 12}) {
		t.Errorf("ElemVarTimeInBlock(stress, 10, 0) = %v", bh)
	}
}

func TestReaderErrors(t *testing.T) {
	r := openModel(t)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"unknown block", func() error { _, err := r.ElemConn(99); return err }, ErrNotFound},
		{"unknown node set", func() error { _, err := r.NodeSet(300); return err }, ErrNotFound},
		{"unknown side set", func() error { _, err := r.SideSet(100); return err }, ErrNotFound},
		{"unknown nodal var", func() error { _, err := r.NodalVar(0, "pressure"); return err }, ErrNotFound},
		{"unknown global var", func() error { _, err := r.GlobVarTime("mass"); return err }, ErrNotFound},
		{"unknown property", func() error { _, err := r.Prop(ElemBlock, "COLOR", 10); return err }, ErrNotFound},
		{"node out of range", func() error { _, err := r.NodalVarTime("temp", 6); return err }, ErrNotFound},
		{"element out of range", func() error { _, err := r.ElemVarTime("stress", 2); return err }, ErrNotFound},
		{"excluded pair", func() error { _, err := r.ElemVarBlock(0, "strain", 20); return err }, ErrNotFound},
		{"step past end", func() error { _, err := r.GlobVars(3); return err }, ErrStepRange},
		{"negative step", func() error { _, err := r.NodalVar(-1, "temp"); return err }, ErrStepRange},
		{"element step past end", func() error { _, err := r.ElemVar(5, "stress"); return err }, ErrStepRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReaderDefaultsWithoutOptionalData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.exo")
	w, err := Create(path)
	must(t, "Create", err)
	must(t, "PutInit", w.PutInit(InitParams{Title: "bare", NumDim: 3, NumNodes: 3, NumElem: 1, NumElemBlk: 1}))
	must(t, "PutElemBlock", w.PutElemBlock(4, "TRI3", 1, 3, 0))
	must(t, "Close", w.Close())

	r, err := Open(path)
	must(t, "Open", err)
	defer r.Close()

	nmap, err := r.NodeNumMap()
	must(t, "NodeNumMap", err)
	if !reflect.DeepEqual(nmap, []int{1, 2, 3}) {
		t.Errorf("NodeNumMap = %v, want [1 2 3]", nmap)
	}
	inBlk, err := r.ElemsInBlk(4)
	must(t, "ElemsInBlk", err)
	if !reflect.DeepEqual(inBlk, []int{1}) {
		t.Errorf("ElemsInBlk = %v, want [1]", inBlk)
	}
	qa, err := r.QARecords()
	must(t, "QARecords", err)
	if len(qa) != 0 {
		t.Errorf("QARecords = %v, want none", qa)
	}
	coords, err := r.Coord()
	must(t, "Coord", err)
	if len(coords) != 3 || len(coords[2]) != 3 {
		t.Errorf("Coord shape = %d arrays", len(coords))
	}
	glob, err := r.GlobVars(0)
	if !errors.Is(err, ErrStepRange) {
		t.Errorf("GlobVars(0) on a file without steps = %v, %v; want ErrStepRange", glob, err)
	}
}

func TestNewReaderRejectsPlainFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.nc")
	f, err := cdf.Create(path)
	must(t, "cdf.Create", err)
	_, err = f.CreateDimension("x", 2)
	must(t, "CreateDimension", err)
	must(t, "Close", f.Close())

	f, err = cdf.Open(path, cdf.ModeRead)
	must(t, "cdf.Open", err)
	defer f.Close()
	if IsExodus(f) {
		t.Error("IsExodus = true for a plain file")
	}
	if _, err := NewReader(f); !errors.Is(err, cdf.ErrFormat) {
		t.Errorf("NewReader error = %v, want ErrFormat", err)
	}
}
