package connection

import (
	"github.com/treesync/treesync.go/pkg/tree"
)

// WriteKind enumerates the shapes of an outbound mutation.
type WriteKind int

const (
	// WriteOverwrite replaces the whole subtree at Path with Node.
	WriteOverwrite WriteKind = iota
	// WriteMerge overrides only the relative paths named in Children.
	WriteMerge
	// WriteSetPriority replaces only the priority at Path with Node.
	WriteSetPriority
)

// OutboundWrite is one locally originated mutation handed to the transport.
// Its result is reported back through Delegate.OnWriteResult keyed by ID.
type OutboundWrite struct {
	ID   int64
	Path tree.Path
	Kind WriteKind

	// Node is the overwrite payload (including its priority) or, for
	// WriteSetPriority, the bare priority node.
	Node *tree.Node

	// Children holds the merge payload, keyed by relative path.
	Children map[string]*tree.Node

	// Condition carries the pre-image hash of a transactional write. The
	// server applies the write only if its current value still hashes to
	// Condition; a mismatch is reported as a conflict.
	Condition    uint64
	HasCondition bool
}

// DisconnectKind enumerates server-staged disconnect operations.
type DisconnectKind int

const (
	// DisconnectSet overwrites Path with Node on connection loss.
	DisconnectSet DisconnectKind = iota
	// DisconnectMerge merges Children into Path on connection loss.
	DisconnectMerge
	// DisconnectCancel clears previously staged operations at Path.
	DisconnectCancel
)

// DisconnectOp is one staged operation executed by the server when the
// connection is lost. It never affects the local view; the client retains it
// only to re-stage after reconnecting, since the server forgets staged
// operations per physical connection.
type DisconnectOp struct {
	ID       int64
	Path     tree.Path
	Kind     DisconnectKind
	Node     *tree.Node
	Children map[string]*tree.Node
}
