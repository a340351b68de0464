package wildcard

import "errors"

// ErrNotProperlyFormatted is returned when a permission string is empty or
// contains an empty part or subpart (e.g. "a..b" or "a,,b").
var ErrNotProperlyFormatted = errors.New("wildcard.not_properly_formatted")
