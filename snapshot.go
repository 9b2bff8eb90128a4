package treesync

import (
	"github.com/treesync/treesync.go/pkg/tree"
)

// Snapshot is an immutable view of the data at a location at the moment
// an event fired. It stays valid after the underlying data changes.
type Snapshot struct {
	ref  *Ref
	key  string
	node *tree.Node
}

// Value returns the data as nil, bool, float64, string or
// map[string]any. Priorities are not included; use Export for a form
// that round-trips them.
func (s *Snapshot) Value() any {
	return s.node.Value()
}

// Export returns the data with priorities preserved, suitable for
// writing back via Set.
func (s *Snapshot) Export() any {
	return s.node.Export()
}

// Key returns the name of the location the snapshot was taken at.
func (s *Snapshot) Key() string {
	return s.key
}

// Priority returns the location's priority: nil, a float64 or a string.
func (s *Snapshot) Priority() any {
	return s.node.Priority().Value()
}

// Exists reports whether the location holds any data.
func (s *Snapshot) Exists() bool {
	return !s.node.IsEmpty()
}

// HasChildren reports whether the location holds a map value.
func (s *Snapshot) HasChildren() bool {
	return s.node.HasChildren()
}

// ChildCount returns the number of immediate children.
func (s *Snapshot) ChildCount() int {
	return s.node.ChildCount()
}

// HasChild reports whether the given relative path holds data.
func (s *Snapshot) HasChild(path string) bool {
	child, err := s.Child(path)
	return err == nil && child.Exists()
}

// Child returns the snapshot of a descendant, which exists but is empty
// when the path holds no data.
func (s *Snapshot) Child(path string) (*Snapshot, error) {
	p, err := tree.ParsePath(path)
	if err != nil {
		return nil, err
	}
	ref := s.ref
	if !p.IsRoot() {
		ref = &Ref{client: s.ref.client, path: s.ref.path.Append(p)}
	}
	return &Snapshot{ref: ref, key: ref.Key(), node: s.node.Get(p)}, nil
}

// Children returns snapshots of the immediate children in priority
// order.
func (s *Snapshot) Children() []*Snapshot {
	children := s.node.Children()
	out := make([]*Snapshot, 0, len(children))
	for _, c := range children {
		ref := &Ref{client: s.ref.client, path: s.ref.path.Child(c.Key)}
		out = append(out, &Snapshot{ref: ref, key: c.Key, node: c.Node})
	}
	return out
}

// Ref returns a Ref for the snapshot's location.
func (s *Snapshot) Ref() *Ref {
	return s.ref
}
