package score

import "errors"

// Sentinel kinds for score adapter errors.
var (
	ErrMalformedDocument = errors.New("malformed score document")
	ErrNoBeats           = errors.New("score has no beats")
)
