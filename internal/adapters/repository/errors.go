package repository

import "errors"

// Sentinel kinds for session store errors.
var (
	ErrNotFound      = errors.New("session not found")
	ErrInvalidBucket = errors.New("invalid activity bucket")
	ErrStoreClosed   = errors.New("session store closed")
)
