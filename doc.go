// Package treesync is a client for a realtime hierarchical data store.
//
// A Client maintains a persistent connection to the server and keeps a
// locally cached, optimistically updated view of the remote tree. Refs
// address locations in the tree; writes apply locally at once and are
// reconciled when the server acknowledges or rejects them. Observers
// registered on a Ref receive value and child events as the local view
// of that location changes, whether from local writes or server pushes.
package treesync
