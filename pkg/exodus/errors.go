package exodus

import (
	"errors"

	"github.com/eunmann/exocdf/pkg/cdf"
	"github.com/eunmann/exocdf/pkg/idindex"
)

var (
	// ErrNotFound indicates an unknown block, set, variable or property.
	ErrNotFound = cdf.ErrNotFound
	// ErrShape indicates an array whose shape does not match its declaration.
	ErrShape = cdf.ErrShape
	// ErrDuplicateID indicates a block or set id registered twice.
	ErrDuplicateID = idindex.ErrDuplicateID
	// ErrState indicates a call that is invalid in the writer's current state.
	ErrState = errors.New("invalid writer state")
	// ErrQuota indicates more blocks or sets than declared by PutInit.
	ErrQuota = errors.New("object count exceeds PutInit declaration")
	// ErrStepRange indicates a time step outside the stored range.
	ErrStepRange = errors.New("time step out of range")
)
