package relay

import "errors"

// Session errors. Both terminate the connection with no retry.
var (
	ErrAuthRejected    = errors.New("authentication rejected")
	ErrAlreadyLoggedIn = errors.New("username already has an active session")
)
