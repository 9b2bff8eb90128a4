package repo

import (
	"strconv"

	"github.com/treesync/treesync.go/pkg/connection"
	"github.com/treesync/treesync.go/pkg/tree"
)

// disconnectEntry tracks one staged disconnect operation. The active set is
// purely a replay log: staged operations never touch the local value tree or
// fire local events, and the server forgets them per physical connection, so
// the set is re-staged once per connection cycle.
type disconnectEntry struct {
	op       connection.DisconnectOp
	complete func(error)
}

func disconnectKey(kind connection.DisconnectKind, path tree.Path) string {
	return strconv.Itoa(int(kind)) + "|" + path.String()
}

// OnDisconnectSet stages an overwrite of path with node on connection loss.
// Staging the same location and kind again replaces the previous staging.
func (r *Repo) OnDisconnectSet(path tree.Path, node *tree.Node, complete func(error)) {
	r.post(func() {
		r.stageDisconnect(connection.DisconnectSet, path, node, nil, complete)
	})
}

// OnDisconnectMerge stages a merge of the named relative paths into path on
// connection loss.
func (r *Repo) OnDisconnectMerge(path tree.Path, children map[string]*tree.Node, complete func(error)) {
	r.post(func() {
		r.stageDisconnect(connection.DisconnectMerge, path, nil, children, complete)
	})
}

// CancelDisconnectOps drops every staged operation at or under path, both
// locally and server-side.
func (r *Repo) CancelDisconnectOps(path tree.Path, complete func(error)) {
	r.post(func() {
		for key, entry := range r.disconnectOps {
			if path.Contains(entry.op.Path) {
				delete(r.disconnectOps, key)
			}
		}
		r.stageDisconnect(connection.DisconnectCancel, path, nil, nil, complete)
	})
}

// stageDisconnect registers and transmits one disconnect operation. Runs on
// the loop.
func (r *Repo) stageDisconnect(kind connection.DisconnectKind, path tree.Path, node *tree.Node, children map[string]*tree.Node, complete func(error)) {
	r.nextOpID++
	op := connection.DisconnectOp{
		ID:       r.nextOpID,
		Path:     path,
		Kind:     kind,
		Node:     node,
		Children: children,
	}
	entry := &disconnectEntry{op: op, complete: complete}
	if kind != connection.DisconnectCancel {
		r.disconnectOps[disconnectKey(kind, path)] = entry
	}
	r.opResults[op.ID] = entry
	r.conn.StageDisconnectOp(op)
}

// resolveDisconnectOp reports a staging result. The completion fires at most
// once even though the operation may be re-staged on later connections; a
// denial removes the operation from the active set.
func (r *Repo) resolveDisconnectOp(opID int64, err error) {
	entry, ok := r.opResults[opID]
	if !ok {
		return
	}
	delete(r.opResults, opID)

	if err != nil {
		key := disconnectKey(entry.op.Kind, entry.op.Path)
		if r.disconnectOps[key] == entry {
			delete(r.disconnectOps, key)
		}
	}
	if entry.complete != nil {
		entry.complete(err)
		entry.complete = nil
	}
}

// restageDisconnectOps replays the active set, oldest first, on a fresh
// connection.
func (r *Repo) restageDisconnectOps() {
	entries := make([]*disconnectEntry, 0, len(r.disconnectOps))
	for _, entry := range r.disconnectOps {
		entries = append(entries, entry)
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].op.ID > entries[j].op.ID; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
	for _, entry := range entries {
		r.conn.StageDisconnectOp(entry.op)
	}
}
