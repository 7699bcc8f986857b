package event

import "errors"

// Failure taxonomy for the pipeline. Components wrap these with context and
// callers classify with errors.Is.
var (
	// ErrDecode marks a malformed or unrecognized payload.
	ErrDecode = errors.New("decode error")
	// ErrRouting marks a message addressed to an unknown channel.
	ErrRouting = errors.New("routing error")
	// ErrConnection marks an unreachable broker, cache or store.
	ErrConnection = errors.New("connection error")
	// ErrPersistence marks a rejected batched write.
	ErrPersistence = errors.New("persistence error")
	// ErrTimeout marks a blocking call that outran its deadline.
	ErrTimeout = errors.New("timeout")
)
