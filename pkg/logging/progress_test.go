package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStepTracker_LogsAtInterval(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(prev)

	var buf bytes.Buffer
	st := NewStepTracker("generate", 5, 2, zerolog.New(&buf))
	for range 5 {
		st.Step()
	}

	if st.Done() != 5 {
		t.Errorf("Done = %d, want 5", st.Done())
	}
	// Steps 2, 4 and the final step 5.
	if got := strings.Count(buf.String(), "steps progressed"); got != 3 {
		t.Errorf("progress lines = %d, want 3\n%s", got, buf.String())
	}
	if !strings.Contains(buf.String(), `"total":5`) {
		t.Errorf("missing total field: %s", buf.String())
	}
}

func TestStepTracker_ETA(t *testing.T) {
	st := NewStepTracker("export", 4, 1, zerolog.Nop())
	if eta := st.ETA(); eta != 0 {
		t.Errorf("ETA before any step = %v, want 0", eta)
	}

	st.startTime = time.Now().Add(-200 * time.Millisecond)
	st.done = 2
	eta := st.ETA()
	if eta < 150*time.Millisecond || eta > 300*time.Millisecond {
		t.Errorf("ETA = %v, want ~200ms", eta)
	}

	st.done = 4
	if eta := st.ETA(); eta != 0 {
		t.Errorf("ETA when finished = %v, want 0", eta)
	}
}

func TestCompletionEvent_Fields(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	FileWritten(log, "export", 1500*time.Millisecond).
		Str("path", "out.parquet").
		Int("rows", 42).
		Bytes("size", 2048).
		Log("export complete")

	out := buf.String()
	for _, want := range []string{
		`"event":"file_written"`,
		`"phase":"export"`,
		`"duration_ms":1500`,
		`"path":"out.parquet"`,
		`"rows":42`,
		`"size":2048`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
	if strings.Contains(out, "size_h") {
		t.Errorf("human companion field outside human mode: %s", out)
	}
}

func TestCompletionEvent_PrettyMode(t *testing.T) {
	var buf bytes.Buffer
	human = true
	defer func() { human = false }()

	NewCompletionEvent(zerolog.New(&buf), "file_written", "generate", time.Second).
		Count("nodes", 1500).
		Progress(5, 10, 3*time.Second).
		Log("done")

	out := buf.String()
	for _, want := range []string{`"nodes_h":"1.50K"`, `"progress_pct":50`, `"eta_h":"3.00s"`, `"duration_h":"1.00s"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}
