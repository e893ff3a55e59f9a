package store

import "errors"

var (
	ErrClosed       = errors.New("store is closed")
	ErrShuttingDown = errors.New("store is shutting down")
	ErrWriteTimeout = errors.New("write operation timeout")
	ErrNotFound     = errors.New("message not found")
)
