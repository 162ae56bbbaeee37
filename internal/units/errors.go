package units

import "errors"

// ErrArgument indicates a malformed interval or size value.
var ErrArgument = errors.New("invalid argument")
