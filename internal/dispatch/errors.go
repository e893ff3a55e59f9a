package dispatch

import "errors"

var (
	ErrRecipientNotFound = errors.New("recipient not connected")
)
