package convert

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotConfigured     = errors.New("conversion service not configured")
	ErrTooLarge          = errors.New("upload too large")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrConversionFailed  = errors.New("conversion failed")
)
