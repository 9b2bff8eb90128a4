package repo

import (
	"sort"

	"github.com/treesync/treesync.go/pkg/connection"
	"github.com/treesync/treesync.go/pkg/tree"
)

// pendingWrite is one locally originated mutation awaiting its server
// result. The queue owns it exclusively: acknowledge folds its effect into
// the server cache and destroys it, revert destroys it without folding.
type pendingWrite struct {
	id       int64
	path     tree.Path
	kind     connection.WriteKind
	node     *tree.Node
	children map[string]*tree.Node
	visible  bool

	// condition carries the pre-image hash of a transactional write.
	condition   uint64
	conditional bool

	// onResult runs on the loop with nil for an ack or the terminal error
	// for a revert, after the queue state has been reconciled.
	onResult func(err error)
}

// writeOp is a pendingWrite flattened to absolute-path granularity. An
// overwrite produces one op; a merge produces one op per named relative
// path, ordered so that for partially overlapping merge paths the deeper,
// later-sorted path wins per key.
type writeOp struct {
	path        tree.Path
	node        *tree.Node
	setPriority bool
}

func (w *pendingWrite) ops() []writeOp {
	switch w.kind {
	case connection.WriteOverwrite:
		return []writeOp{{path: w.path, node: w.node}}
	case connection.WriteSetPriority:
		return []writeOp{{path: w.path, node: w.node, setPriority: true}}
	default:
		keys := make([]string, 0, len(w.children))
		for k := range w.children {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ops := make([]writeOp, 0, len(keys))
		for _, k := range keys {
			rel, err := tree.ParsePath(k)
			if err != nil {
				// Relative paths are validated before enqueueing.
				continue
			}
			ops = append(ops, writeOp{path: w.path.Append(rel), node: w.children[k]})
		}
		return ops
	}
}

// applyOp folds one op into the view rooted at viewPath.
func applyOp(viewPath tree.Path, view *tree.Node, op writeOp) *tree.Node {
	if rel, ok := op.path.RelativeTo(viewPath); ok {
		if op.setPriority {
			return view.SetPriorityAt(rel, op.node)
		}
		return view.Set(rel, op.node)
	}
	if rel, ok := viewPath.RelativeTo(op.path); ok && !op.setPriority {
		return op.node.Get(rel)
	}
	return view
}

// writeQueue is the ordered log of in-flight local mutations. Writes are
// totally ordered by id; ids are assigned in call order on the loop.
type writeQueue struct {
	writes []*pendingWrite
}

func (q *writeQueue) add(w *pendingWrite) {
	q.writes = append(q.writes, w)
}

func (q *writeQueue) get(id int64) *pendingWrite {
	for _, w := range q.writes {
		if w.id == id {
			return w
		}
	}
	return nil
}

func (q *writeQueue) remove(id int64) *pendingWrite {
	for i, w := range q.writes {
		if w.id == id {
			q.writes = append(q.writes[:i], q.writes[i+1:]...)
			return w
		}
	}
	return nil
}

// affecting returns the visible pending writes overlapping path, oldest
// first.
func (q *writeQueue) affecting(path tree.Path) []*pendingWrite {
	var out []*pendingWrite
	for _, w := range q.writes {
		if !w.visible {
			continue
		}
		if w.path.Contains(path) || path.Contains(w.path) {
			out = append(out, w)
		}
	}
	return out
}

// fold materializes the current view at path: base (the server value) with
// every visible overlapping write folded in oldest to newest, so the newest
// write for a given key wins.
func (q *writeQueue) fold(path tree.Path, base *tree.Node) *tree.Node {
	view := base
	for _, w := range q.affecting(path) {
		for _, op := range w.ops() {
			view = applyOp(path, view, op)
		}
	}
	return view
}

// covers reports whether a visible pending overwrite fully determines the
// view at path, making it resolvable without server data.
func (q *writeQueue) covers(path tree.Path) bool {
	for _, w := range q.writes {
		if !w.visible || w.kind != connection.WriteOverwrite {
			continue
		}
		if w.path.Contains(path) {
			return true
		}
	}
	return false
}
