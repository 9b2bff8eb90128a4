// Package connection defines the contract between the synchronization core
// and a transport. The core emits writes, listens, and staged disconnect
// operations through Connection; the transport feeds server deltas, write
// results, and connection-state transitions back through Delegate.
//
// All Connection methods besides Connect and Close are fire-and-forget: they
// must not block on network round-trips, and outcomes arrive asynchronously
// via the Delegate. While disconnected a transport may drop requests
// entirely; the core replays its full active state (listens, pending writes,
// disconnect operations, auth) every time OnConnectionStatus reports a fresh
// connection.
package connection

import (
	"context"

	"github.com/treesync/treesync.go/pkg/query"
	"github.com/treesync/treesync.go/pkg/tree"
)

// Connection is implemented by transports. The default implementation lives
// in the gorillaws subpackage.
type Connection interface {
	// SetDelegate wires the receiver of inbound events. It must be called
	// exactly once, before Connect.
	SetDelegate(d Delegate)

	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// SendWrite transmits one mutation. The result arrives through
	// Delegate.OnWriteResult with the write's ID.
	SendWrite(w OutboundWrite)

	// Listen requests the server value for (path, params) and a subsequent
	// delta stream. The tag identifies this listen across reconnects and is
	// echoed in Delegate.OnServerUpdate for the initial snapshot.
	Listen(path tree.Path, params query.Params, tag string)

	// Unlisten cancels a previous Listen with the same tag.
	Unlisten(path tree.Path, params query.Params, tag string)

	// StageDisconnectOp stages op server-side. The staging result arrives
	// through Delegate.OnDisconnectOpResult with the op's ID.
	StageDisconnectOp(op DisconnectOp)

	// Auth presents a credential; Unauth drops the session. Results arrive
	// through Delegate.OnAuthResult.
	Auth(credential string)
	Unauth()
}

// Delegate is implemented by the synchronization core. Implementations must
// be safe for calls from transport goroutines and must not block.
type Delegate interface {
	// OnServerUpdate delivers a server value. When merge is true only the
	// named children changed; otherwise node replaces the subtree at path.
	// For the initial snapshot of a listen, tag echoes the Listen tag;
	// pushed deltas carry an empty tag.
	OnServerUpdate(path tree.Path, node *tree.Node, merge bool, tag string)

	// OnWriteResult resolves the write with the given ID: nil for an ack,
	// otherwise the terminal error (constants.ErrPermissionDenied for a
	// denial, constants.ErrConflict for a failed conditional write).
	OnWriteResult(writeID int64, err error)

	// OnListenRevoked reports that the server denied or revoked the listen
	// with the given tag.
	OnListenRevoked(path tree.Path, params query.Params, tag string, err error)

	// OnDisconnectOpResult resolves the staging of a disconnect operation.
	OnDisconnectOpResult(opID int64, err error)

	// OnConnectionStatus reports transitions between connected and
	// disconnected. Each true transition is a fresh connection whose
	// server-side session state starts empty.
	OnConnectionStatus(connected bool)

	// OnAuthResult resolves an Auth call with opaque session data or an
	// error.
	OnAuthResult(data map[string]any, err error)
}
