package repo

import (
	"errors"

	"github.com/treesync/treesync.go/pkg/connection"
	"github.com/treesync/treesync.go/pkg/constants"
	"github.com/treesync/treesync.go/pkg/query"
	"github.com/treesync/treesync.go/pkg/tree"
)

// transaction is one optimistic read-modify-write in flight. Its proposed
// value rides the write queue as a conditional write tagged with the
// pre-image hash; a conflicting concurrent change reverts the write and
// re-invokes the update function with the fresh pre-image, up to the retry
// budget.
type transaction struct {
	id          int64
	path        tree.Path
	update      func(pre *tree.Node) (*tree.Node, bool)
	complete    func(committed bool, snap *tree.Node, err error)
	localEvents bool
	retries     int
	writeID     int64
	holdsRef    *syncPoint
}

// RunTransaction starts an optimistic transaction at path. update receives
// the current pre-image and returns the proposed node, or ok=false to abort
// with no network round-trip. complete may be nil. With localEvents
// disabled, intermediate optimistic states are computed but never dispatched
// to listeners, and the pre-image is read from a guaranteed-fresh server
// view.
func (r *Repo) RunTransaction(path tree.Path, update func(pre *tree.Node) (*tree.Node, bool), complete func(committed bool, snap *tree.Node, err error), localEvents bool) {
	r.post(func() {
		r.nextTxID++
		tx := &transaction{
			id:          r.nextTxID,
			path:        path,
			update:      update,
			complete:    complete,
			localEvents: localEvents,
		}
		r.transactions[tx.id] = tx
		r.attemptTransaction(tx)
	})
}

// transactionReadable reports whether the pre-image for tx can be computed
// from local knowledge.
func (r *Repo) transactionReadable(tx *transaction) bool {
	if r.server.isComplete(tx.path) {
		return true
	}
	return tx.localEvents && r.writes.covers(tx.path)
}

func (r *Repo) transactionPreImage(tx *transaction) *tree.Node {
	if tx.localEvents {
		return r.writes.fold(tx.path, r.server.get(tx.path))
	}
	return r.server.get(tx.path)
}

// attemptTransaction runs one round of the retry loop. Runs on the loop.
func (r *Repo) attemptTransaction(tx *transaction) {
	if !r.transactionReadable(tx) {
		// Force a server read and park until it arrives.
		if tx.holdsRef == nil {
			sp := r.ensureSyncPoint(tx.path, query.Params{})
			sp.refs++
			tx.holdsRef = sp
		}
		if !r.transactionReadable(tx) {
			r.waitingTx = append(r.waitingTx, tx)
			return
		}
	}

	pre := r.transactionPreImage(tx)
	proposed, ok := tx.update(pre)
	if !ok {
		r.finishTransaction(tx, false, pre, nil)
		return
	}

	w := &pendingWrite{
		path:    tx.path,
		kind:    connection.WriteOverwrite,
		node:    proposed,
		visible: tx.localEvents,
		onResult: func(err error) {
			r.finishTransactionWrite(tx, err)
		},
	}
	tx.writeID = r.enqueueWrite(w, pre.Hash(), true)
}

// finishTransactionWrite handles the server result of the current
// conditional write. The write itself has already been removed and, on ack,
// folded into the server cache.
func (r *Repo) finishTransactionWrite(tx *transaction, err error) {
	switch {
	case err == nil:
		snap := r.writes.fold(tx.path, r.server.get(tx.path))
		r.finishTransaction(tx, true, snap, nil)
	case errors.Is(err, constants.ErrConflict):
		tx.retries++
		if tx.retries > constants.TransactionMaxRetries {
			snap := r.writes.fold(tx.path, r.server.get(tx.path))
			r.finishTransaction(tx, false, snap, constants.ErrConflict)
			return
		}
		r.attemptTransaction(tx)
	default:
		r.finishTransaction(tx, false, nil, err)
	}
}

func (r *Repo) finishTransaction(tx *transaction, committed bool, snap *tree.Node, err error) {
	delete(r.transactions, tx.id)
	if tx.holdsRef != nil {
		tx.holdsRef.refs--
		r.cleanupSyncPoint(tx.holdsRef)
		tx.holdsRef = nil
	}
	if tx.complete != nil {
		tx.complete(committed, snap, err)
	}
}

// runReadyTransactions resumes parked transactions whose pre-image became
// readable. Each is removed from the waiting list before it runs, so
// re-entrant invalidations cannot process one twice.
func (r *Repo) runReadyTransactions() {
	for {
		var next *transaction
		for i, tx := range r.waitingTx {
			if r.transactionReadable(tx) {
				next = tx
				r.waitingTx = append(r.waitingTx[:i], r.waitingTx[i+1:]...)
				break
			}
		}
		if next == nil {
			return
		}
		r.attemptTransaction(next)
	}
}

// failWaitingTransactions aborts parked transactions at path, e.g. when the
// forced server read was denied.
func (r *Repo) failWaitingTransactions(path tree.Path, err error) {
	remaining := r.waitingTx[:0]
	var failed []*transaction
	for _, tx := range r.waitingTx {
		if tx.path.Equal(path) {
			failed = append(failed, tx)
		} else {
			remaining = append(remaining, tx)
		}
	}
	r.waitingTx = remaining
	for _, tx := range failed {
		r.finishTransaction(tx, false, nil, err)
	}
}
