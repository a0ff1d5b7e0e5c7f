package usage

import "errors"

var (
	ErrNotFound     = errors.New("usage: record not found")
	ErrInvalidDelta = errors.New("usage: delta must be positive")
)
