package repo

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/treesync/treesync.go/pkg/tree"
)

// serverCache holds the last values the server is known to hold. A path is
// complete while a default listen is established at it or above; complete
// subtrees are authoritative and views over them are resolvable. Subtrees
// that lose their last listen move into a bounded LRU of evicted snapshots,
// so re-observing a recently watched path can serve its initial view without
// a server round-trip. Evicted entries are dropped the moment any newer
// server state for their path arrives.
type serverCache struct {
	root     *tree.Node
	complete map[string]bool
	evicted  *lru.Cache[string, *tree.Node]
}

func newServerCache(evictedSize int) *serverCache {
	cache, err := lru.New[string, *tree.Node](evictedSize)
	if err != nil {
		panic(err)
	}
	return &serverCache{
		root:     tree.Empty,
		complete: make(map[string]bool),
		evicted:  cache,
	}
}

func (s *serverCache) get(path tree.Path) *tree.Node {
	return s.root.Get(path)
}

// update replaces the subtree at path with the given server value.
func (s *serverCache) update(path tree.Path, node *tree.Node) {
	s.root = s.root.Set(path, node)
	s.dropEvicted(path)
}

// merge overrides only the named relative paths under path.
func (s *serverCache) merge(path tree.Path, children map[string]*tree.Node) {
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rel, err := tree.ParsePath(k)
		if err != nil {
			continue
		}
		s.root = s.root.Set(path.Append(rel), children[k])
	}
	s.dropEvicted(path)
}

// fold applies an acknowledged write permanently.
func (s *serverCache) fold(op writeOp) {
	s.root = applyOp(tree.RootPath, s.root, op)
	s.dropEvicted(op.path)
}

// isComplete reports whether the server value at path is fully known.
func (s *serverCache) isComplete(path tree.Path) bool {
	for p := path; ; p = p.Parent() {
		if s.complete[p.String()] {
			return true
		}
		if p.IsRoot() {
			return false
		}
	}
}

func (s *serverCache) markComplete(path tree.Path) {
	s.complete[path.String()] = true
}

// markIncomplete forgets completeness at exactly path and stashes the
// current subtree as an evicted snapshot.
func (s *serverCache) markIncomplete(path tree.Path) {
	key := path.String()
	if !s.complete[key] {
		return
	}
	delete(s.complete, key)
	if snap := s.get(path); !snap.IsEmpty() {
		s.evicted.Add(key, snap)
	}
}

// takeEvicted returns and removes a stashed snapshot for path, if any.
func (s *serverCache) takeEvicted(path tree.Path) (*tree.Node, bool) {
	key := path.String()
	snap, ok := s.evicted.Get(key)
	if ok {
		s.evicted.Remove(key)
	}
	return snap, ok
}

// dropEvicted removes stashed snapshots overlapping path; they are stale
// relative to the newer server state just applied.
func (s *serverCache) dropEvicted(path tree.Path) {
	for _, key := range s.evicted.Keys() {
		p, err := tree.ParsePath(key)
		if err != nil {
			s.evicted.Remove(key)
			continue
		}
		if path.Contains(p) || p.Contains(path) {
			s.evicted.Remove(key)
		}
	}
}
