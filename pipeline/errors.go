package pipeline

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/svpipe/external"
)

// IsInputError reports whether err was caused by an unusable input
// alignment or configuration.
func IsInputError(err error) bool { return errors.Is(errors.Invalid, err) }

// IsEmptyInput reports whether err means there was nothing to work on, such
// as a sample without contigs to place.
func IsEmptyInput(err error) bool { return errors.Is(errors.Precondition, err) }

// AsToolError returns the external tool failure underlying err, if any.
func AsToolError(err error) (*external.ToolError, bool) { return external.AsToolError(err) }
