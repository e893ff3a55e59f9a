package types

import "errors"

// Shared sentinel errors for event decoding and routing.
var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrEmptyEventName = errors.New("event name cannot be empty")
)
