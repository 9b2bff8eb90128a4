package treesync

import (
	"github.com/treesync/treesync.go/pkg/tree"
)

// MutableData is the working copy handed to a transaction update
// function. Mutations apply only to the copy; the transaction machinery
// decides whether they reach the store.
type MutableData struct {
	key  string
	node *tree.Node
}

// Value returns the current working value.
func (m *MutableData) Value() any {
	return m.node.Value()
}

// SetValue replaces the working value. The existing priority is kept.
func (m *MutableData) SetValue(value any) error {
	node, err := tree.ValueOf(value)
	if err != nil {
		return err
	}
	m.node = node.WithPriority(m.node.Priority())
	return nil
}

// Priority returns the working value's priority.
func (m *MutableData) Priority() any {
	return m.node.Priority().Value()
}

// SetPriority replaces the working value's priority.
func (m *MutableData) SetPriority(priority any) error {
	pri, err := tree.PriorityOf(priority)
	if err != nil {
		return err
	}
	m.node = m.node.WithPriority(pri)
	return nil
}

// Key returns the name of the location being updated.
func (m *MutableData) Key() string {
	return m.key
}

// HasChildren reports whether the working value is a map.
func (m *MutableData) HasChildren() bool {
	return m.node.HasChildren()
}

// ChildCount returns the number of immediate children of the working
// value.
func (m *MutableData) ChildCount() int {
	return m.node.ChildCount()
}

// Child returns a read-only view of the working value at the given
// relative path. Mutating the child does not affect the parent; use
// SetValue on the parent to change subtree values.
func (m *MutableData) Child(path string) (*MutableData, error) {
	p, err := tree.ParsePath(path)
	if err != nil {
		return nil, err
	}
	key := m.key
	if !p.IsRoot() {
		key = p.Key()
	}
	return &MutableData{key: key, node: m.node.Get(p)}, nil
}

// TransactionResult is what a transaction update function returns.
type TransactionResult struct {
	abort bool
	data  *MutableData
}

// Success commits the state of data, which must be the MutableData the
// update function received.
func Success(data *MutableData) TransactionResult {
	return TransactionResult{data: data}
}

// Abort abandons the transaction without writing.
func Abort() TransactionResult {
	return TransactionResult{abort: true}
}

// TransactionBlock computes a transaction's new value from the current
// one. It may run more than once if the value changes concurrently, and
// must be free of side effects.
type TransactionBlock func(current *MutableData) TransactionResult

type transactionConfig struct {
	complete    func(committed bool, snap *Snapshot, err error)
	localEvents bool
}

// TransactionOption configures RunTransaction.
type TransactionOption func(*transactionConfig)

// WithCompletion registers a callback that runs once the transaction
// commits, aborts or fails. snap holds the value at the location
// afterwards.
func WithCompletion(fn func(committed bool, snap *Snapshot, err error)) TransactionOption {
	return func(c *transactionConfig) {
		c.complete = fn
	}
}

// WithLocalEvents controls whether observers see each provisional value
// while the transaction is in flight. It defaults to true; with false,
// observers only see the final committed value.
func WithLocalEvents(enabled bool) TransactionOption {
	return func(c *transactionConfig) {
		c.localEvents = enabled
	}
}

// RunTransaction atomically updates the value at this Ref. block runs
// with the best current guess of the value; the resulting write only
// commits if the value on the server still matches what block saw, and
// block is re-run with fresh data otherwise. After too many conflicting
// retries the transaction fails with ErrConflict.
func (r *Ref) RunTransaction(block TransactionBlock, opts ...TransactionOption) {
	cfg := &transactionConfig{localEvents: true}
	for _, opt := range opts {
		opt(cfg)
	}

	ref := r
	update := func(pre *tree.Node) (*tree.Node, bool) {
		data := &MutableData{key: ref.Key(), node: pre}
		res := block(data)
		if res.abort || res.data == nil {
			return nil, false
		}
		return res.data.node, true
	}
	complete := func(committed bool, snap *tree.Node, err error) {
		if cfg.complete == nil {
			return
		}
		cfg.complete(committed, &Snapshot{ref: ref, key: ref.Key(), node: snap}, err)
	}
	r.client.repo.RunTransaction(r.path, update, complete, cfg.localEvents)
}
