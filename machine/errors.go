package machine

import (
	"errors"

	"forthvm/internal/arena"
)

// MemoryAccessError is the spec's raw arena access failure. arena.AccessError
// already carries access_range and segment, so no wrapping type is needed
// here; this alias just gives it a name at the machine package boundary.
type MemoryAccessError = arena.AccessError

// errExited is the internal sentinel that unwinds run_until_exit cleanly.
// It must never escape InterpretInput or Run.
var errExited = errors.New("exited")
