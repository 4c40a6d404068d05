package errorutil

import "errors"

// ErrInvalidInput is a base error type to use for malformed samples or frames,
// usually the sign of a corrupt trace.
var ErrInvalidInput = errors.New("invalid input")

// ErrInvalidConfig represents analysis options outside of their accepted range.
var ErrInvalidConfig = errors.New("invalid config")
