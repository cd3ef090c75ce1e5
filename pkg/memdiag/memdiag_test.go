package memdiag

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/membudget"
)

var sink []byte

func TestTrackerPeakAndReport(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(zerolog.New(&buf).Level(zerolog.DebugLevel), time.Millisecond)
	tr.Start()
	tr.Start()

	sink = make([]byte, 8<<20)
	tr.Sample()
	if tr.Peak() < 8<<20 {
		t.Errorf("Peak = %d, want at least 8 MiB", tr.Peak())
	}

	budget := membudget.New(1<<30, membudget.SourceConfig)
	budget.TryReserve(1 << 20)
	tr.Stop(budget)
	tr.Stop(budget)

	out := buf.String()
	if strings.Count(out, "memory stats") != 1 {
		t.Errorf("want one report, got:\n%s", out)
	}
	for _, want := range []string{`"heap_peak"`, `"staged":"1.00 MiB"`, `"budget":"1.00 GiB"`} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %s:\n%s", want, out)
		}
	}
	sink = nil
}

func TestTrackerWithoutInterval(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(zerolog.New(&buf).Level(zerolog.DebugLevel), 0)
	tr.Stop(nil)
	if buf.Len() != 0 {
		t.Errorf("Stop before Start logged %q", buf.String())
	}
	tr.Start()
	tr.Stop(nil)
	if !strings.Contains(buf.String(), "memory stats") || strings.Contains(buf.String(), "staged") {
		t.Errorf("report = %q", buf.String())
	}
}
