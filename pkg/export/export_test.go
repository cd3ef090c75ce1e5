package export

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/exocdf/pkg/exodus"
)

// writeBar writes a 1D model of three nodes and two BAR2 elements in two
// blocks with two steps of one variable of each kind.
func writeBar(t *testing.T) *exodus.Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bar.exo")

	w, err := exodus.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	steps := []func() error{
		func() error {
			return w.PutInit(exodus.InitParams{Title: "bar", NumDim: 1, NumNodes: 3, NumElem: 2, NumElemBlk: 2})
		},
		func() error { return w.PutCoord([]float64{0, 1, 2}) },
		func() error { return w.PutElemBlock(1, "BAR2", 1, 2, 0) },
		func() error { return w.PutElemBlock(2, "BAR2", 1, 2, 0) },
		func() error { return w.PutElemConn(1, [][]int{{0, 1}}) },
		func() error { return w.PutElemConn(2, [][]int{{1, 2}}) },
		func() error { return w.PutNodeNumMap([]int{10, 20, 30}) },
		func() error { return w.PutVarParam(exodus.Global, 1) },
		func() error { return w.PutVarNames(exodus.Global, []string{"ke"}) },
		func() error { return w.PutVarParam(exodus.Nodal, 1) },
		func() error { return w.PutVarNames(exodus.Nodal, []string{"u"}) },
		func() error { return w.PutVarParam(exodus.Element, 1) },
		func() error { return w.PutVarNames(exodus.Element, []string{"s"}) },
	}
	for step := range 2 {
		steps = append(steps,
			func() error { return w.PutTime(step, float64(step)/2) },
			func() error { return w.PutGlobVars(step, []float64{float64(step)}) },
			func() error { return w.PutNodalVar(step, "u", []float64{1, 2, 3}) },
			func() error { return w.PutElemVar(step, "s", 1, []float64{float64(100 + step)}) },
			func() error { return w.PutElemVar(step, "s", 2, []float64{float64(200 + step)}) },
		)
	}
	steps = append(steps, w.Close)
	for i, fn := range steps {
		if err := fn(); err != nil {
			t.Fatalf("write step %d failed: %v", i, err)
		}
	}

	r, err := exodus.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func readRows(t *testing.T, data []byte) []Row {
	t.Helper()
	rows, err := parquet.Read[Row](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.Read failed: %v", err)
	}
	return rows
}

func TestWriteTimeHistory(t *testing.T) {
	r := writeBar(t)

	for _, compression := range []string{"", "zstd", "none"} {
		t.Run("compression="+compression, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := WriteTimeHistory(&buf, r, Options{Compression: compression, BatchRows: 3})
			if err != nil {
				t.Fatalf("WriteTimeHistory failed: %v", err)
			}
			// Per step: 1 global + 3 nodal + 2 element values.
			if n != 12 {
				t.Errorf("rows = %d, want 12", n)
			}
			rows := readRows(t, buf.Bytes())
			if len(rows) != n {
				t.Fatalf("read %d rows, want %d", len(rows), n)
			}

			want := []Row{
				{Step: 0, Time: 0, Kind: "global", Variable: "ke", Value: 0},
				{Step: 0, Time: 0, Kind: "nodal", Variable: "u", Entity: 10, Value: 1},
				{Step: 0, Time: 0, Kind: "nodal", Variable: "u", Entity: 20, Value: 2},
				{Step: 0, Time: 0, Kind: "nodal", Variable: "u", Entity: 30, Value: 3},
				{Step: 0, Time: 0, Kind: "element", Variable: "s", Block: 1, Entity: 1, Value: 100},
				{Step: 0, Time: 0, Kind: "element", Variable: "s", Block: 2, Entity: 2, Value: 200},
			}
			for i, w := range want {
				if rows[i] != w {
					t.Errorf("row %d = %+v, want %+v", i, rows[i], w)
				}
			}
			last := rows[len(rows)-1]
			if last.Step != 1 || last.Time != 0.5 || last.Value != 201 {
				t.Errorf("last row = %+v", last)
			}
		})
	}
}

func TestWriteTimeHistoryFilters(t *testing.T) {
	r := writeBar(t)

	var buf bytes.Buffer
	n, err := WriteTimeHistory(&buf, r, Options{Kinds: []exodus.VarKind{exodus.Element}})
	if err != nil {
		t.Fatalf("WriteTimeHistory failed: %v", err)
	}
	if n != 4 {
		t.Errorf("element rows = %d, want 4", n)
	}
	for _, row := range readRows(t, buf.Bytes()) {
		if row.Kind != "element" {
			t.Errorf("unexpected row %+v", row)
		}
	}

	buf.Reset()
	n, err = WriteTimeHistory(&buf, r, Options{Variables: []string{"ke"}})
	if err != nil {
		t.Fatalf("WriteTimeHistory failed: %v", err)
	}
	if n != 2 {
		t.Errorf("rows for ke = %d, want 2", n)
	}
}

func TestCodec(t *testing.T) {
	for _, name := range []string{"", "snappy", "ZSTD", "none", "uncompressed"} {
		if _, err := Codec(name); err != nil {
			t.Errorf("Codec(%q) failed: %v", name, err)
		}
	}
	if _, err := Codec("lzo"); !errors.Is(err, ErrCompression) {
		t.Errorf("Codec(lzo) error = %v, want ErrCompression", err)
	}
	var buf bytes.Buffer
	if _, err := WriteTimeHistory(&buf, nil, Options{Compression: "lzo"}); !errors.Is(err, ErrCompression) {
		t.Errorf("WriteTimeHistory error = %v, want ErrCompression", err)
	}
}
