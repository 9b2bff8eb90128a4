package constants

import "errors"

// Errors surfaced to callers. Each failure is reported exactly once, either
// synchronously at the call site (invalid input) or through the operation's
// completion or cancel callback (server denial, transaction conflict).
var (
	// ErrPermissionDenied is reported when the server rejects a write or
	// revokes a listen. It is never retried automatically.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict is reported when a transaction's pre-image went stale more
	// times than the retry budget allows.
	ErrConflict = errors.New("transaction had too many conflicting retries")

	// ErrInvalidValue is returned synchronously when a caller passes a value
	// outside the five supported kinds (nil, bool, number, string, map).
	ErrInvalidValue = errors.New("invalid value")

	// ErrInvalidPriority is returned synchronously when a priority is not
	// nil, a number, or a string.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidPath is returned synchronously for malformed paths and keys.
	ErrInvalidPath = errors.New("invalid path")

	// ErrWriteCanceled is reported to completion callbacks of writes that
	// were still pending when the client was closed.
	ErrWriteCanceled = errors.New("write canceled")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client is closed")
)

// Transport configuration errors.
var (
	ErrNoBaseURL  = errors.New("base url not set")
	ErrNoDelegate = errors.New("delegate is not set")
)
