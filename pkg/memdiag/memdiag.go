// Package memdiag samples the Go heap while a command runs and reports it
// next to the input memory budget.
package memdiag

import (
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/humanfmt"
	"github.com/eunmann/exocdf/pkg/membudget"
)

// Stats is the subset of runtime.MemStats that is reported.
type Stats struct {
	HeapAlloc uint64
	HeapSys   uint64
	Sys       uint64
	NumGC     uint32
}

// Read returns the current heap statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{HeapAlloc: m.HeapAlloc, HeapSys: m.HeapSys, Sys: m.Sys, NumGC: m.NumGC}
}

// Tracker records the peak heap between Start and Stop.
//
// Thread Safety: Start, Stop, Sample and Peak may be called concurrently.
type Tracker struct {
	log      zerolog.Logger
	interval time.Duration

	mu      sync.Mutex
	peak    uint64
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewTracker returns a tracker sampling every interval. A non-positive
// interval samples only on Start, Sample and Stop.
func NewTracker(log zerolog.Logger, interval time.Duration) *Tracker {
	return &Tracker{log: log, interval: interval}
}

// Start takes a first sample and begins periodic sampling.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	t.mu.Unlock()

	t.Sample()
	go t.loop()
}

func (t *Tracker) loop() {
	defer close(t.done)
	if t.interval <= 0 {
		<-t.stop
		return
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Sample()
		}
	}
}

// Sample reads the heap and updates the peak.
func (t *Tracker) Sample() Stats {
	s := Read()
	t.mu.Lock()
	t.peak = max(t.peak, s.HeapAlloc)
	t.mu.Unlock()
	return s
}

// Peak returns the largest heap allocation sampled.
func (t *Tracker) Peak() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Stop ends sampling and logs a final report at debug level. budget may be
// nil.
func (t *Tracker) Stop(budget *membudget.Budget) {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	close(t.stop)
	done := t.done
	t.mu.Unlock()
	<-done

	s := t.Sample()
	e := t.log.Debug().
		Str("heap_alloc", humanfmt.Bytes(int64(s.HeapAlloc))).
		Str("heap_peak", humanfmt.Bytes(int64(t.Peak()))).
		Str("sys", humanfmt.Bytes(int64(s.Sys))).
		Uint32("num_gc", s.NumGC)
	if budget != nil {
		e = e.Str("staged", humanfmt.Bytes(int64(budget.InUse()))).
			Str("budget", humanfmt.Bytes(int64(budget.Total())))
	}
	e.Msg("memory stats")
}
