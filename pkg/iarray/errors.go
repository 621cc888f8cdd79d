package iarray

import "errors"

var (
	// ErrInvalidHandle reports an operation on a view that was never bound,
	// has been destroyed, or is corrupt.
	ErrInvalidHandle = errors.New("iarray: invalid handle")

	// ErrIndex reports an index tuple of the wrong arity or out of range.
	ErrIndex = errors.New("iarray: index out of range")

	// ErrNoSuchElement reports a packet, element, field or callback id that
	// does not exist.
	ErrNoSuchElement = errors.New("iarray: no such element")
)
