package protocol

import "errors"

// Validation errors for client commands.
var (
	ErrMissingUsername  = errors.New("login command missing username")
	ErrMissingPassword  = errors.New("login command missing password")
	ErrMissingRecipient = errors.New("direct message missing recipient")
)
