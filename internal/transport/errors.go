package transport

import "errors"

// Channel errors.
var (
	ErrChannelClosed = errors.New("channel closed")
	ErrWriteTimeout  = errors.New("write timed out")
	ErrMalformed     = errors.New("malformed message")
)
