package ports

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrStaleState = errors.New("job state changed underneath us")
)
