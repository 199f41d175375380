package rnnt

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument reports a call that violates the buffer contract:
// non-positive construction sizes, mismatched parallel array lengths,
// out-of-range indices, or a materialization batch size larger than the
// buffer. Returned errors wrap it, so callers match with errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

// EmptyBeamError reports that a batch item finished decoding without any
// completed hypothesis. The caller decides the fallback, for example
// promoting the best still-active beam.
type EmptyBeamError struct {
	Batch int // index of the batch item with no completed hypotheses
}

func (e *EmptyBeamError) Error() string {
	return fmt.Sprintf("no completed hypotheses for batch item %d", e.Batch)
}
