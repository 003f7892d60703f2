package consumer

import "errors"

var (
	// ErrIllegalState is returned when an operation is not allowed in the
	// stream's current state, such as starting twice or setting the time
	// window after start.
	ErrIllegalState = errors.New("consumer: illegal state")
	// ErrNegativeTimeout is returned by AwaitTermination for negative timeouts.
	ErrNegativeTimeout = errors.New("consumer: negative timeout")
)
