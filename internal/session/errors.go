package session

import "errors"

var (
	ErrMalformedPayload = errors.New("malformed event payload")
)
