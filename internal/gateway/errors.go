package gateway

import "errors"

// Gateway connection errors.
var (
	ErrGatewayConnClosed   = errors.New("gateway connection closed")
	ErrGatewayWriteTimeout = errors.New("gateway write timed out")
	ErrGatewayMalformed    = errors.New("malformed gateway message")
)
