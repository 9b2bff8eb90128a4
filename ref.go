package treesync

import (
	"github.com/treesync/treesync.go/internal/pushid"
	"github.com/treesync/treesync.go/pkg/constants"
	"github.com/treesync/treesync.go/pkg/query"
	"github.com/treesync/treesync.go/pkg/tree"
)

// Ref addresses a location in the tree, optionally narrowed by query
// parameters. Refs are immutable; navigation and query builder methods
// return new Refs. Two Refs for the same location are interchangeable.
type Ref struct {
	client *Client
	path   tree.Path
	params query.Params
}

// Child returns a Ref for the given slash separated relative path.
func (r *Ref) Child(path string) (*Ref, error) {
	p, err := tree.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if p.IsRoot() {
		return nil, constants.ErrInvalidPath
	}
	return &Ref{client: r.client, path: r.path.Append(p)}, nil
}

// ChildByAutoID returns a Ref for a fresh child whose key is generated
// client side and sorts after every key generated earlier.
func (r *Ref) ChildByAutoID() *Ref {
	return &Ref{client: r.client, path: r.path.Child(pushid.Next())}
}

// Parent returns the Ref one level up, or nil at the root.
func (r *Ref) Parent() *Ref {
	if r.path.IsRoot() {
		return nil
	}
	return &Ref{client: r.client, path: r.path.Parent()}
}

// Root returns the Ref for the top of the tree.
func (r *Ref) Root() *Ref {
	return r.client.Root()
}

// Key returns the last path segment, or "" at the root.
func (r *Ref) Key() string {
	return r.path.Key()
}

// Equal reports whether two Refs address the same location with the
// same query parameters.
func (r *Ref) Equal(other *Ref) bool {
	if other == nil {
		return false
	}
	return r.path.Equal(other.path) && r.params.Equal(other.params)
}

func (r *Ref) String() string {
	return r.client.base + r.path.String()
}

// Set overwrites the value at this location. The local view updates
// immediately; complete, if non-nil, runs once the server acknowledges
// or rejects the write. Any priority previously at this location is
// cleared unless value carries one.
func (r *Ref) Set(value any, complete func(error)) error {
	if r.client.repo.Closed() {
		return constants.ErrClosed
	}
	node, err := tree.ValueOf(value)
	if err != nil {
		return err
	}
	r.client.repo.SetValue(r.path, node, complete)
	return nil
}

// SetWithPriority overwrites the value and priority at this location in
// a single write.
func (r *Ref) SetWithPriority(value, priority any, complete func(error)) error {
	if r.client.repo.Closed() {
		return constants.ErrClosed
	}
	node, err := tree.ValueOf(value)
	if err != nil {
		return err
	}
	pri, err := tree.PriorityOf(priority)
	if err != nil {
		return err
	}
	r.client.repo.SetValue(r.path, node.WithPriority(pri), complete)
	return nil
}

// Remove deletes the value at this location. Equivalent to Set(nil).
func (r *Ref) Remove(complete func(error)) error {
	return r.Set(nil, complete)
}

// SetPriority changes this location's priority without touching its
// value. Setting a priority on an empty location is a no-op.
func (r *Ref) SetPriority(priority any, complete func(error)) error {
	if r.client.repo.Closed() {
		return constants.ErrClosed
	}
	pri, err := tree.PriorityOf(priority)
	if err != nil {
		return err
	}
	r.client.repo.SetPriority(r.path, pri, complete)
	return nil
}

// Update writes each entry of values at its relative path below this
// location, leaving unnamed children untouched. Keys may be slash
// separated paths. A nil entry value deletes that child.
func (r *Ref) Update(values map[string]any, complete func(error)) error {
	if r.client.repo.Closed() {
		return constants.ErrClosed
	}
	if len(values) == 0 {
		if complete != nil {
			complete(nil)
		}
		return nil
	}
	children := make(map[string]*tree.Node, len(values))
	for key, value := range values {
		p, err := tree.ParsePath(key)
		if err != nil {
			return err
		}
		if p.IsRoot() {
			return constants.ErrInvalidPath
		}
		node, err := tree.ValueOf(value)
		if err != nil {
			return err
		}
		children[p.String()[1:]] = node
	}
	r.client.repo.Merge(r.path, children, complete)
	return nil
}

// StartingAt narrows the Ref to children whose priority is greater than
// or equal to priority.
func (r *Ref) StartingAt(priority any) (*Ref, error) {
	pri, err := tree.PriorityOf(priority)
	if err != nil {
		return nil, err
	}
	return &Ref{client: r.client, path: r.path, params: r.params.StartingAt(pri)}, nil
}

// StartingAtKey narrows the Ref to children at or after the given
// priority and key boundary.
func (r *Ref) StartingAtKey(priority any, key string) (*Ref, error) {
	pri, err := tree.PriorityOf(priority)
	if err != nil {
		return nil, err
	}
	if err := tree.ValidateKey(key); err != nil {
		return nil, err
	}
	return &Ref{client: r.client, path: r.path, params: r.params.StartingAtKey(pri, key)}, nil
}

// EndingAt narrows the Ref to children whose priority is less than or
// equal to priority.
func (r *Ref) EndingAt(priority any) (*Ref, error) {
	pri, err := tree.PriorityOf(priority)
	if err != nil {
		return nil, err
	}
	return &Ref{client: r.client, path: r.path, params: r.params.EndingAt(pri)}, nil
}

// EndingAtKey narrows the Ref to children at or before the given
// priority and key boundary.
func (r *Ref) EndingAtKey(priority any, key string) (*Ref, error) {
	pri, err := tree.PriorityOf(priority)
	if err != nil {
		return nil, err
	}
	if err := tree.ValidateKey(key); err != nil {
		return nil, err
	}
	return &Ref{client: r.client, path: r.path, params: r.params.EndingAtKey(pri, key)}, nil
}

// LimitToFirst keeps only the first n children in priority order.
func (r *Ref) LimitToFirst(n int) *Ref {
	return &Ref{client: r.client, path: r.path, params: r.params.LimitToFirst(n)}
}

// LimitToLast keeps only the last n children in priority order.
func (r *Ref) LimitToLast(n int) *Ref {
	return &Ref{client: r.client, path: r.path, params: r.params.LimitToLast(n)}
}
