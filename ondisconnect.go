package treesync

import (
	"github.com/treesync/treesync.go/pkg/constants"
	"github.com/treesync/treesync.go/pkg/tree"
)

// OnDisconnectSet arranges for the server to write value at this
// location when the connection is lost, however it is lost. complete,
// if non-nil, runs once the server accepts or rejects the arrangement.
// Staging the same location again replaces the earlier arrangement.
func (r *Ref) OnDisconnectSet(value any, complete func(error)) error {
	if r.client.repo.Closed() {
		return constants.ErrClosed
	}
	node, err := tree.ValueOf(value)
	if err != nil {
		return err
	}
	r.client.repo.OnDisconnectSet(r.path, node, complete)
	return nil
}

// OnDisconnectSetWithPriority is OnDisconnectSet with an explicit
// priority on the written value.
func (r *Ref) OnDisconnectSetWithPriority(value, priority any, complete func(error)) error {
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
	r.client.repo.OnDisconnectSet(r.path, node.WithPriority(pri), complete)
	return nil
}

// OnDisconnectRemove arranges for this location to be deleted when the
// connection is lost.
func (r *Ref) OnDisconnectRemove(complete func(error)) error {
	return r.OnDisconnectSet(nil, complete)
}

// OnDisconnectUpdate arranges a merge of values below this location when
// the connection is lost. Keys may be slash separated paths.
func (r *Ref) OnDisconnectUpdate(values map[string]any, complete func(error)) error {
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
	r.client.repo.OnDisconnectMerge(r.path, children, complete)
	return nil
}

// CancelDisconnectOperations withdraws every disconnect arrangement at
// or below this location.
func (r *Ref) CancelDisconnectOperations(complete func(error)) error {
	if r.client.repo.Closed() {
		return constants.ErrClosed
	}
	r.client.repo.CancelDisconnectOps(r.path, complete)
	return nil
}
