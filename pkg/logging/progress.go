package logging

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/exocdf/pkg/humanfmt"
)

// StepTracker tracks progress through a known number of time steps and
// estimates the time remaining from the average step duration.
type StepTracker struct {
	total     int
	done      int
	startTime time.Time
	log       zerolog.Logger
	phase     string
	every     int
}

// NewStepTracker creates a tracker that logs every `every` steps.
func NewStepTracker(phase string, total, every int, log zerolog.Logger) *StepTracker {
	return &StepTracker{
		total:     total,
		startTime: time.Now(),
		log:       log,
		phase:     phase,
		every:     max(every, 1),
	}
}

// Step records one completed step and logs progress at the configured
// interval and on the last step.
func (st *StepTracker) Step() {
	st.done++
	if st.done%st.every != 0 && st.done != st.total {
		return
	}
	NewCompletionEvent(st.log, "step_completed", st.phase, st.Elapsed()).
		Progress(int64(st.done), int64(st.total), st.ETA()).
		LogDebug("steps progressed")
}

// Done returns the number of completed steps.
func (st *StepTracker) Done() int { return st.done }

// Elapsed returns time since tracking started.
func (st *StepTracker) Elapsed() time.Duration {
	return time.Since(st.startTime)
}

// ETA returns the estimated time remaining.
func (st *StepTracker) ETA() time.Duration {
	if st.done == 0 || st.done >= st.total {
		return 0
	}
	avg := st.Elapsed() / time.Duration(st.done)
	return avg * time.Duration(st.total-st.done)
}

// CompletionEvent builds consistent completion log events.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  map[string]any
}

// NewCompletionEvent creates a new completion event builder.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
		fields:  make(map[string]any),
	}
}

// FileWritten starts a file-written event.
func FileWritten(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "file_written", phase, elapsed)
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Bytes adds a byte count with a human-readable companion in human mode.
func (ce *CompletionEvent) Bytes(key string, n int64) *CompletionEvent {
	ce.fields[key] = n
	if Human() {
		ce.fields[key+"_h"] = humanfmt.Bytes(n)
	}
	return ce
}

// Count adds a count with a human-readable companion in human mode.
func (ce *CompletionEvent) Count(key string, n int64) *CompletionEvent {
	ce.fields[key] = n
	if Human() {
		ce.fields[key+"_h"] = humanfmt.Count(n)
	}
	return ce
}

// Progress adds done, total, percentage and optional ETA fields.
func (ce *CompletionEvent) Progress(done, total int64, eta time.Duration) *CompletionEvent {
	ce.fields["done"] = done
	ce.fields["total"] = total
	if total > 0 {
		ce.fields["progress_pct"] = float64(done) * 100.0 / float64(total)
	}
	if eta > 0 {
		ce.fields["eta_ms"] = eta.Milliseconds()
		if Human() {
			ce.fields["eta_h"] = humanfmt.Duration(eta)
		}
	}
	return ce
}

// Log emits the event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogDebug emits the event at debug level.
func (ce *CompletionEvent) LogDebug(msg string) {
	ce.emit(ce.log.Debug(), msg)
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	e = e.Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())
	if Human() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}
	for k, v := range ce.fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
