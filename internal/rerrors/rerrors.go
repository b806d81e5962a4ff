// Package rerrors defines the sentinel error taxonomy shared across the
// resolver core (cache, rplan, layer, worker, frontend).
//
// Callers wrap these with fmt.Errorf("%w: context", ErrX) the same way
// internal/dns wraps ErrDNSError, so errors.Is still matches the sentinel
// after context is attached.
package rerrors

import "errors"

var (
	// ErrInvalidArg marks a nil or out-of-range argument to a library call.
	ErrInvalidArg = errors.New("invalid argument")

	// ErrOOM marks pool or allocation exhaustion.
	ErrOOM = errors.New("allocation exhausted")

	// ErrProto marks malformed wire data: parse failure, unexpected QR on an
	// inbound client socket, or a length-prefix mismatch.
	ErrProto = errors.New("protocol error")

	// ErrMsgSize marks a TCP buffer overflow or a truncated length prefix.
	ErrMsgSize = errors.New("message size error")

	// ErrIO marks a network-layer failure (connect, send, write).
	ErrIO = errors.New("io error")

	// ErrNotFound marks a cache miss.
	ErrNotFound = errors.New("not found")

	// ErrStale marks a cache hit whose TTL has expired.
	ErrStale = errors.New("stale")

	// ErrIlSeq marks a name that cannot be encoded in lookup form.
	ErrIlSeq = errors.New("illegal name sequence")

	// ErrLimit marks an iteration limit exceeded.
	ErrLimit = errors.New("iteration limit exceeded")

	// ErrBackend marks an opaque KV store error passed through unchanged.
	ErrBackend = errors.New("backend error")
)
