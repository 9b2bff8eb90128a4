package constants

import "time"

const (
	// TransactionMaxRetries bounds how many times a transaction update
	// function is re-invoked after a conflicting concurrent change.
	TransactionMaxRetries = 25

	// DefaultDispatchBuffer is the initial capacity of the serialized
	// operation queue.
	DefaultDispatchBuffer = 256

	// RequestIDLength is the length of generated wire request identifiers.
	RequestIDLength = 16

	// DefaultWSTimeout bounds the websocket dial handshake.
	DefaultWSTimeout = 30 * time.Second

	// CloseMessageCode is the websocket close code sent on clean shutdown.
	CloseMessageCode = 1000

	// SnapshotCacheSize bounds how many recently unlistened subtree
	// snapshots are retained for fast re-observation.
	SnapshotCacheSize = 128
)

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
)
