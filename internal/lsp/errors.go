package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the LSP layer.
var (
	// ErrPositionOutOfRange indicates a column that is past the end of its line
	// or that does not fall on a character boundary.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrNoActionsAvailable indicates the server returned an empty action list.
	ErrNoActionsAvailable = errors.New("no actions available")

	// ErrSerialization indicates a payload could not be serialized.
	ErrSerialization = errors.New("serialization failure")

	// ErrShutdown indicates the transport has been shut down.
	ErrShutdown = errors.New("lsp transport shut down")

	// ErrInvalidMessage indicates an inbound message that is not valid JSON-RPC.
	ErrInvalidMessage = errors.New("invalid json-rpc message")
)

// PositionError describes a column that could not be translated.
type PositionError struct {
	Column int
	Length int
	Reason string
}

// Error implements the error interface.
func (e *PositionError) Error() string {
	return fmt.Sprintf("column %d in line of length %d: %s", e.Column, e.Length, e.Reason)
}

// Is reports whether target is ErrPositionOutOfRange.
func (e *PositionError) Is(target error) bool {
	return target == ErrPositionOutOfRange
}

// SerializationError wraps a marshaling failure for a payload the bridge
// produced itself. It indicates a programming error rather than bad input.
type SerializationError struct {
	What string
	Err  error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.What, e.Err)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSerialization.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}

// RPCError is an error response a server returned for one of our requests.
type RPCError struct {
	Method  string
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Method, e.Message, e.Code)
}
