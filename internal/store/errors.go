package store

import "errors"

// Store errors.
var (
	ErrStoreClosed = errors.New("credential store closed")
)
