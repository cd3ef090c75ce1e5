package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/exocdf/pkg/cdf"
	"github.com/eunmann/exocdf/pkg/exodus"
	"github.com/eunmann/exocdf/pkg/export"
	"github.com/eunmann/exocdf/pkg/logging"
	"github.com/eunmann/exocdf/pkg/membudget"
	"github.com/eunmann/exocdf/pkg/source"
)

// run executes one invocation and returns what it printed.
func run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	var out bytes.Buffer
	a.root.SetOut(&out)
	a.root.SetErr(io.Discard)
	if stdin != nil {
		a.root.SetIn(stdin)
	}
	a.root.SetArgs(args)
	err := a.execute(context.Background())
	return out.String(), err
}

// generated writes a 3x2 grid with 4 steps and returns its path.
func generated(t *testing.T, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.exo")
	args := append([]string{"generate", path, "--nx", "3", "--ny", "2", "--steps", "4"}, extra...)
	out, err := run(t, nil, args...)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(out, "wrote 12 nodes, 6 elements, 4 steps") {
		t.Errorf("generate output = %q", out)
	}
	return path
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestGenerateWritesModel(t *testing.T) {
	path := generated(t)

	r, err := exodus.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	p := r.Init()
	if p.NumNodes != 12 || p.NumElem != 6 || p.NumDim != 2 {
		t.Errorf("Init = %+v", p)
	}
	conn, err := r.ElemConn(1)
	if err != nil {
		t.Fatalf("ElemConn failed: %v", err)
	}
	if got := conn[4]; got[0] != 5 || got[1] != 6 || got[2] != 10 || got[3] != 9 {
		t.Errorf("element 4 = %v, want [5 6 10 9]", got)
	}
	ns, err := r.NodeSet(1)
	if err != nil {
		t.Fatalf("NodeSet failed: %v", err)
	}
	if len(ns.Nodes) != 3 || ns.Nodes[1] != 4 {
		t.Errorf("left edge nodes = %v, want [0 4 8]", ns.Nodes)
	}
	ss, err := r.SideSet(1)
	if err != nil {
		t.Fatalf("SideSet failed: %v", err)
	}
	if len(ss.Elems) != 3 || ss.Elems[2] != 2 || ss.Sides[0] != 1 {
		t.Errorf("bottom edge = %v / %v", ss.Elems, ss.Sides)
	}
	if r.NumTimeSteps() != 4 {
		t.Errorf("NumTimeSteps = %d, want 4", r.NumTimeSteps())
	}

	temp, err := r.NodalVar(1, "temp")
	if err != nil {
		t.Fatalf("NodalVar failed: %v", err)
	}
	pressure, err := r.ElemVar(1, "pressure")
	if err != nil {
		t.Fatalf("ElemVar failed: %v", err)
	}
	want := (temp[0] + temp[1] + temp[5] + temp[4]) / 4
	if pressure[0] != want {
		t.Errorf("pressure[0] = %v, want mean of its nodes %v", pressure[0], want)
	}
}

func TestGenerateRefusesExisting(t *testing.T) {
	path := generated(t)
	if _, err := run(t, nil, "generate", path); err == nil {
		t.Fatal("generate over an existing file succeeded")
	}
	if _, err := run(t, nil, "generate", path, "--nx", "1", "--ny", "1", "--steps", "1", "--force"); err != nil {
		t.Fatalf("generate --force failed: %v", err)
	}
	if _, err := run(t, nil, "generate", filepath.Join(t.TempDir(), "bad.exo"), "--nx", "0"); err == nil {
		t.Error("generate with --nx 0 succeeded")
	}
}

func TestInfo(t *testing.T) {
	path := generated(t, "--word-size", "4")

	out, err := run(t, nil, "info", path)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	assertContains(t, out,
		"== "+path,
		"format: CDF-1",
		"time_step = UNLIMITED (4 currently)",
		"num_nodes = 12",
		"float vals_nod_var1(time_step, num_nodes)",
		`title: "structured 3x2 quad mesh"`,
		"word size: 4",
		"block 1: QUAD4, 6 elements x 4 nodes, 0 attributes",
		"node set 1: 3 nodes",
		"side set 1: 3 sides",
		"global variables: energy",
		"nodal variables: temp",
		"element variables: pressure",
		"time steps: 4",
	)
}

func TestInfoPlainFileFromStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.nc")
	f, err := cdf.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.CreateDimension("n", 3); err != nil {
		t.Fatalf("CreateDimension failed: %v", err)
	}
	v, err := f.CreateVariable("v", cdf.Short, "n")
	if err != nil {
		t.Fatalf("CreateVariable failed: %v", err)
	}
	if err := v.Attrs.SetText("units", "m"); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	if err := f.Attrs.SetText("history", "test"); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	if err := v.Put([]int16{1, 2, 3}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	out, err := run(t, bytes.NewReader(data), "info", "-")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	assertContains(t, out, "n = 3", "short v(n)", `:units = "m"`, `:history = "test"`)
	if strings.Contains(out, "exodus:") {
		t.Errorf("plain file reported as ExodusII:\n%s", out)
	}

	if _, err := run(t, bytes.NewReader(data), "--memory", "16B", "info", "-"); !errors.Is(err, membudget.ErrExhausted) {
		t.Errorf("info over budget error = %v, want ErrExhausted", err)
	}
	if _, err := run(t, bytes.NewReader(data), "--max-object", "16", "info", "-"); !errors.Is(err, source.ErrTooLarge) {
		t.Errorf("info over max-object error = %v, want ErrTooLarge", err)
	}
	if _, err := run(t, bytes.NewReader(data), "--max-object", "lots", "info", "-"); err == nil {
		t.Error("unparseable --max-object accepted")
	}

	out, err = run(t, nil, "dump", path, "--var", "v")
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	if strings.TrimSpace(out) != "v = [1 2 3]" {
		t.Errorf("dump = %q", out)
	}
}

func TestDump(t *testing.T) {
	path := generated(t)

	tests := []struct {
		name string
		args []string
		want []string
		err  bool
	}{
		{"all records", []string{"--var", "time_whole"}, []string{"time_whole[0] = [0]", "time_whole[3] = ["}, false},
		{"one record", []string{"--var", "time_whole", "--step", "2"}, []string{"time_whole[2] = [0.2]"}, false},
		{"strings", []string{"--var", "coor_names"}, []string{`"x"`, `"y"`}, false},
		{"fixed", []string{"--var", "connect1"}, []string{"connect1 = [1 2 6 5"}, false},
		{"record out of range", []string{"--var", "time_whole", "--step", "4"}, nil, true},
		{"step on fixed", []string{"--var", "connect1", "--step", "0"}, nil, true},
		{"missing variable", []string{"--var", "nope"}, nil, true},
		{"no var flag", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, nil, append([]string{"dump", path}, tt.args...)...)
			if tt.err {
				if err == nil {
					t.Errorf("dump succeeded:\n%s", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("dump failed: %v", err)
			}
			assertContains(t, out, tt.want...)
		})
	}
}

func TestStats(t *testing.T) {
	path := generated(t)

	out, err := run(t, nil, "stats", path)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	assertContains(t, out,
		"x: [0, 3] extent 3",
		"y: [0, 2] extent 2",
		"step 3 (time",
		"energy",
		"temp",
		"pressure",
	)

	out, err = run(t, nil, "stats", path, "--step", "0", "--var", "temp")
	if err != nil {
		t.Fatalf("stats --step 0 failed: %v", err)
	}
	assertContains(t, out, "step 0 (time 0)", "nodal")
	if strings.Contains(out, "pressure") {
		t.Errorf("--var temp printed other variables:\n%s", out)
	}

	if _, err := run(t, nil, "stats", path, "--step", "9"); !errors.Is(err, exodus.ErrStepRange) {
		t.Errorf("stats --step 9 error = %v, want ErrStepRange", err)
	}
}

func readRows(t *testing.T, path string) []export.Row {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	rows, err := parquet.Read[export.Row](f, info.Size())
	if err != nil {
		t.Fatalf("parquet.Read failed: %v", err)
	}
	return rows
}

func TestExport(t *testing.T) {
	path := generated(t)
	dir := t.TempDir()

	out := filepath.Join(dir, "all.parquet")
	stale := filepath.Join(dir, ".all.parquet.123.tmp")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	stdout, err := run(t, nil, "export", path, "--out", out, "--compression", "zstd")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	// 4 steps of 1 global, 12 nodal and 6 element values.
	assertContains(t, stdout, "wrote 76 rows")
	if rows := readRows(t, out); len(rows) != 76 {
		t.Errorf("rows = %d, want 76", len(rows))
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale temp file survived export: %v", err)
	}

	out = filepath.Join(dir, "nodal.parquet")
	if _, err := run(t, nil, "export", path, "-o", out, "--kind", "nodal"); err != nil {
		t.Fatalf("export --kind nodal failed: %v", err)
	}
	rows := readRows(t, out)
	if len(rows) != 48 {
		t.Fatalf("nodal rows = %d, want 48", len(rows))
	}
	for _, row := range rows {
		if row.Kind != "nodal" || row.Variable != "temp" {
			t.Fatalf("unexpected row %+v", row)
		}
	}
	if rows[0].Entity != 1 || rows[11].Entity != 12 {
		t.Errorf("entities = %d..%d, want 1..12", rows[0].Entity, rows[11].Entity)
	}
}

func TestExportErrors(t *testing.T) {
	path := generated(t)
	out := filepath.Join(t.TempDir(), "x.parquet")

	if _, err := run(t, nil, "export", path); err == nil || !strings.Contains(err.Error(), "--out") {
		t.Errorf("missing --out error = %v", err)
	}
	if _, err := run(t, nil, "export", path, "--out", out, "--kind", "faces"); err == nil {
		t.Error("unknown kind accepted")
	}
	if _, err := run(t, nil, "export", path, "--out", out, "--compression", "lz9"); !errors.Is(err, export.ErrCompression) {
		t.Errorf("bad compression error = %v, want ErrCompression", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("failed export left %s behind", out)
	}
}

func TestConfigSources(t *testing.T) {
	path := generated(t)
	out := filepath.Join(t.TempDir(), "x.parquet")

	t.Run("environment", func(t *testing.T) {
		t.Setenv("EXODUMP_EXPORT_COMPRESSION", "bogus")
		if _, err := run(t, nil, "export", path, "--out", out); !errors.Is(err, export.ErrCompression) {
			t.Errorf("error = %v, want ErrCompression from environment", err)
		}
	})

	t.Run("file", func(t *testing.T) {
		cfg := filepath.Join(t.TempDir(), "exodump.toml")
		if err := os.WriteFile(cfg, []byte("[export]\ncompression = \"bogus\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := run(t, nil, "--config", cfg, "export", path, "--out", out); !errors.Is(err, export.ErrCompression) {
			t.Errorf("error = %v, want ErrCompression from config file", err)
		}
	})

	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("EXODUMP_EXPORT_COMPRESSION", "bogus")
		if _, err := run(t, nil, "export", path, "--out", out, "--compression", "none"); err != nil {
			t.Errorf("export with explicit flag failed: %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := run(t, nil, "--config", filepath.Join(t.TempDir(), "none.toml"), "info", path); err == nil {
			t.Error("missing config file accepted")
		}
	})
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"unknown"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v, want unknown command", err)
	}
}

func TestDebugReportsMemory(t *testing.T) {
	path := generated(t)
	t.Cleanup(func() { logging.Init(logging.Config{}) })

	a := newApp()
	var stderr bytes.Buffer
	a.root.SetOut(io.Discard)
	a.root.SetErr(&stderr)
	a.root.SetArgs([]string{"--debug", "--memory", "1GiB", "info", "-"})
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	a.root.SetIn(bytes.NewReader(data))
	if err := a.execute(context.Background()); err != nil {
		t.Fatalf("info --debug failed: %v", err)
	}
	assertContains(t, stderr.String(),
		`"message":"input memory budget"`,
		`"budget":"1.00 GiB"`,
		`"message":"memory stats"`,
		`"staged":`,
	)
}
