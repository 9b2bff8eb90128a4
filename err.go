package treesync

import "github.com/treesync/treesync.go/pkg/constants"

// Sentinel errors surfaced through write completions, observer
// cancellations and transaction results. Match with errors.Is.
var (
	ErrPermissionDenied = constants.ErrPermissionDenied
	ErrConflict         = constants.ErrConflict
	ErrInvalidValue     = constants.ErrInvalidValue
	ErrInvalidPriority  = constants.ErrInvalidPriority
	ErrInvalidPath      = constants.ErrInvalidPath
	ErrWriteCanceled    = constants.ErrWriteCanceled
	ErrClosed           = constants.ErrClosed
)
