// Package repo implements the client-side synchronization core: a local
// authoritative view of the remote tree that applies writes optimistically,
// reconciles them against server results and pushed deltas in arrival order,
// replays state after reconnect, and delivers ordered change events to
// listeners.
package repo

import (
	"sync/atomic"

	"github.com/gofrs/uuid/v5"

	"github.com/treesync/treesync.go/pkg/connection"
	"github.com/treesync/treesync.go/pkg/constants"
	"github.com/treesync/treesync.go/pkg/logger"
	"github.com/treesync/treesync.go/pkg/query"
	"github.com/treesync/treesync.go/pkg/tree"
)

// Repo owns all client-side synchronization state. Its public methods may be
// called from any goroutine; each hands off into the serialized loop and
// returns immediately, with completion reported through callbacks invoked on
// the loop.
type Repo struct {
	conn connection.Connection
	log  logger.Logger
	loop *eventLoop

	// Everything below is owned by the loop.
	writes      *writeQueue
	server      *serverCache
	syncPoints  map[string]*syncPoint
	handles     map[uint64]*syncPoint
	tags        map[string]*syncPoint
	nextWriteID int64
	connected   bool

	transactions map[int64]*transaction
	waitingTx    []*transaction
	nextTxID     int64

	disconnectOps map[string]*disconnectEntry
	opResults     map[int64]*disconnectEntry
	nextOpID      int64

	credential   string
	authComplete func(data map[string]any, err error)
	authCancel   func(err error)
	authClaims   map[string]any

	nextHandle atomic.Uint64
	closed     atomic.Bool
}

// New creates a Repo over the given transport and registers itself as the
// transport's delegate. The transport is not connected; callers drive
// Connect themselves. buffer is the initial capacity of the dispatch queue;
// non-positive values fall back to the default.
func New(conn connection.Connection, log logger.Logger, buffer int) *Repo {
	if buffer <= 0 {
		buffer = constants.DefaultDispatchBuffer
	}
	r := &Repo{
		conn:          conn,
		log:           log,
		loop:          newEventLoop(buffer),
		writes:        &writeQueue{},
		server:        newServerCache(constants.SnapshotCacheSize),
		syncPoints:    make(map[string]*syncPoint),
		handles:       make(map[uint64]*syncPoint),
		tags:          make(map[string]*syncPoint),
		transactions:  make(map[int64]*transaction),
		disconnectOps: make(map[string]*disconnectEntry),
		opResults:     make(map[int64]*disconnectEntry),
	}
	conn.SetDelegate(r)
	return r
}

// Flush blocks until all previously posted operations have been processed.
func (r *Repo) Flush() {
	r.loop.flush()
}

// Closed reports whether Close has been called.
func (r *Repo) Closed() bool {
	return r.closed.Load()
}

// Close cancels all pending writes and listeners and stops the loop. Pending
// write completions observe ErrWriteCanceled; listeners are dropped without
// a cancel notification.
func (r *Repo) Close() {
	if r.closed.Swap(true) {
		return
	}
	r.loop.post(func() {
		for _, w := range r.writes.writes {
			if w.onResult != nil {
				w.onResult(constants.ErrWriteCanceled)
			}
		}
		r.writes.writes = nil
		for _, sp := range r.syncPoints {
			for _, l := range sp.listeners {
				l.state = stateCancelled
			}
			sp.listeners = nil
		}
	})
	r.loop.close()
}

func (r *Repo) post(f func()) {
	if r.closed.Load() {
		return
	}
	r.loop.post(f)
}

// ---- local writes ----

// SetValue overwrites the subtree at path. complete may be nil.
func (r *Repo) SetValue(path tree.Path, node *tree.Node, complete func(error)) {
	r.post(func() {
		r.enqueueWrite(&pendingWrite{
			path:     path,
			kind:     connection.WriteOverwrite,
			node:     node,
			visible:  true,
			onResult: completeOnly(complete),
		}, 0, false)
	})
}

// Merge overrides the named relative paths under path. complete may be nil.
func (r *Repo) Merge(path tree.Path, children map[string]*tree.Node, complete func(error)) {
	r.post(func() {
		r.enqueueWrite(&pendingWrite{
			path:     path,
			kind:     connection.WriteMerge,
			children: children,
			visible:  true,
			onResult: completeOnly(complete),
		}, 0, false)
	})
}

// SetPriority replaces the priority at path. complete may be nil.
func (r *Repo) SetPriority(path tree.Path, priority *tree.Node, complete func(error)) {
	r.post(func() {
		r.enqueueWrite(&pendingWrite{
			path:     path,
			kind:     connection.WriteSetPriority,
			node:     priority,
			visible:  true,
			onResult: completeOnly(complete),
		}, 0, false)
	})
}

func completeOnly(complete func(error)) func(error) {
	if complete == nil {
		return func(error) {}
	}
	return complete
}

// enqueueWrite assigns the next write id, records the write, transmits it,
// and recomputes affected views. Runs on the loop.
func (r *Repo) enqueueWrite(w *pendingWrite, condition uint64, conditional bool) int64 {
	r.nextWriteID++
	w.id = r.nextWriteID
	w.condition = condition
	w.conditional = conditional
	r.writes.add(w)
	r.conn.SendWrite(connection.OutboundWrite{
		ID:           w.id,
		Path:         w.path,
		Kind:         w.kind,
		Node:         w.node,
		Children:     w.children,
		Condition:    condition,
		HasCondition: conditional,
	})
	if w.visible {
		r.invalidate(w.path)
	}
	return w.id
}

// ---- observation ----

// Observe registers a listener for one event type on the view (path,
// params) and returns its handle. cancel may be nil; it fires once if the
// server revokes the listen. once listeners are removed after their first
// delivered event.
func (r *Repo) Observe(path tree.Path, params query.Params, etype EventType, once bool, fn func(Event), cancel func(error)) uint64 {
	handle := r.nextHandle.Add(1)
	r.post(func() {
		sp := r.ensureSyncPoint(path, params)
		l := &listener{
			handle: handle,
			etype:  etype,
			once:   once,
			fn:     fn,
			cancel: cancel,
			state:  statePending,
		}
		sp.listeners = append(sp.listeners, l)
		r.handles[handle] = sp

		if sp.view != nil {
			l.state = stateActive
			r.deliver(sp, initialEvents(sp.path, sp.view), []*listener{l})
			r.cleanupSyncPoint(sp)
		}
	})
	return handle
}

// RemoveObserver detaches the listener with the given handle. Once the
// removal is processed no further callback for the handle fires, even for
// server messages already in flight.
func (r *Repo) RemoveObserver(handle uint64) {
	r.post(func() {
		sp, ok := r.handles[handle]
		if !ok {
			return
		}
		delete(r.handles, handle)
		for _, l := range sp.listeners {
			if l.handle == handle {
				sp.removeListener(l)
				break
			}
		}
		r.cleanupSyncPoint(sp)
	})
}

// RemoveAllObservers detaches every listener registered at path, across all
// query bounds.
func (r *Repo) RemoveAllObservers(path tree.Path) {
	r.post(func() {
		for _, sp := range r.syncPoints {
			if !sp.path.Equal(path) {
				continue
			}
			for _, l := range sp.listeners {
				l.state = stateCancelled
				delete(r.handles, l.handle)
			}
			sp.listeners = nil
			r.cleanupSyncPoint(sp)
		}
	})
}

// ensureSyncPoint returns the view state for (path, params), creating it and
// issuing the listen if needed. Runs on the loop.
func (r *Repo) ensureSyncPoint(path tree.Path, params query.Params) *syncPoint {
	key := syncPointKey(path, params)
	if sp, ok := r.syncPoints[key]; ok {
		return sp
	}

	tag := uuid.Must(uuid.NewV4()).String()
	sp := &syncPoint{path: path, params: params, tag: tag}
	r.syncPoints[key] = sp
	r.tags[tag] = sp

	if sp.isDefault() {
		if snap, ok := r.server.takeEvicted(path); ok {
			r.server.update(path, snap)
			r.server.markComplete(path)
		}
	}

	r.recompute(sp)
	// Even a view resolvable from local knowledge needs the server listen,
	// or it would never see remote changes.
	r.startListen(sp)
	return sp
}

func (r *Repo) startListen(sp *syncPoint) {
	if sp.listening {
		return
	}
	sp.listening = true
	r.conn.Listen(sp.path, sp.params, sp.tag)
}

// cleanupSyncPoint tears down a view that lost its last listener and
// reference: the listen is withdrawn and, for default views, the server
// subtree moves to the evicted snapshot cache when no other view still
// covers the path.
func (r *Repo) cleanupSyncPoint(sp *syncPoint) {
	if !sp.empty() {
		return
	}
	delete(r.syncPoints, sp.key())
	delete(r.tags, sp.tag)
	if sp.listening {
		r.conn.Unlisten(sp.path, sp.params, sp.tag)
	}
	if sp.isDefault() && !r.pathStillListened(sp.path) {
		r.server.markIncomplete(sp.path)
	}
}

func (r *Repo) pathStillListened(path tree.Path) bool {
	for _, sp := range r.syncPoints {
		if sp.isDefault() && sp.path.Equal(path) {
			return true
		}
	}
	return false
}

// ---- view materialization ----

// rawView returns the unfiltered current view at path plus whether it is
// resolvable from local knowledge.
func (r *Repo) rawView(path tree.Path) (*tree.Node, bool) {
	base := r.server.get(path)
	resolvable := r.server.isComplete(path) || r.writes.covers(path)
	return r.writes.fold(path, base), resolvable
}

// recompute re-materializes sp's view and dispatches the resulting events.
// Runs on the loop once per queue-processed change, so every listener of the
// view observes diffs from one consistent before/after pair.
func (r *Repo) recompute(sp *syncPoint) {
	var raw *tree.Node
	var resolvable bool
	if sp.isDefault() {
		raw, resolvable = r.rawView(sp.path)
	} else {
		resolvable = sp.serverReady || r.writes.covers(sp.path)
		base := tree.Empty
		if sp.serverReady {
			base = sp.serverNode
		}
		raw = r.writes.fold(sp.path, base)
	}

	if !resolvable {
		return
	}
	newView := sp.params.Apply(raw)

	if sp.view == nil {
		sp.view = newView
		pending := make([]*listener, 0, len(sp.listeners))
		for _, l := range sp.listeners {
			if l.state == statePending {
				l.state = stateActive
				pending = append(pending, l)
			}
		}
		if len(pending) > 0 {
			r.deliver(sp, initialEvents(sp.path, newView), pending)
		}
		return
	}

	oldView := sp.view
	sp.view = newView
	events := diffEvents(sp.path, oldView, newView)
	if len(events) > 0 {
		r.deliver(sp, events, sp.listeners)
	}
}

// deliver dispatches through the view and unregisters the handles of any
// single-delivery listeners it detached.
func (r *Repo) deliver(sp *syncPoint, events []Event, targets []*listener) {
	for _, h := range sp.deliver(events, targets) {
		delete(r.handles, h)
	}
}

// invalidate recomputes every view that can observe a change at path.
func (r *Repo) invalidate(path tree.Path) {
	for _, sp := range r.syncPoints {
		if sp.path.Contains(path) || path.Contains(sp.path) {
			r.recompute(sp)
			r.cleanupSyncPoint(sp)
		}
	}
	r.runReadyTransactions()
}

// ---- delegate (inbound from the transport) ----

// OnServerUpdate applies a server value and re-notifies affected views.
func (r *Repo) OnServerUpdate(path tree.Path, node *tree.Node, merge bool, tag string) {
	r.post(func() {
		if tag != "" {
			if sp, ok := r.tags[tag]; ok && !sp.isDefault() {
				// Tagged data for a bounded view is authoritative for that
				// view only.
				if merge {
					base := tree.Empty
					if sp.serverReady {
						base = sp.serverNode
					}
					for _, c := range node.Children() {
						base = base.WithChild(c.Key, c.Node)
					}
					sp.serverNode = base
				} else {
					sp.serverNode = node
				}
				sp.serverReady = true
				r.recompute(sp)
				r.cleanupSyncPoint(sp)
				return
			}
			if sp, ok := r.tags[tag]; ok && sp.isDefault() {
				r.server.markComplete(sp.path)
			}
		}

		if merge {
			children := make(map[string]*tree.Node, node.ChildCount())
			for _, c := range node.Children() {
				children[c.Key] = c.Node
			}
			r.server.merge(path, children)
		} else {
			r.server.update(path, node)
		}

		// Untagged deltas also advance the private server state of bounded
		// views overlapping the path.
		for _, sp := range r.syncPoints {
			if sp.isDefault() || !sp.serverReady {
				continue
			}
			if !sp.path.Contains(path) && !path.Contains(sp.path) {
				continue
			}
			if merge {
				for _, c := range node.Children() {
					sp.serverNode = applyOp(sp.path, sp.serverNode, writeOp{path: path.Child(c.Key), node: c.Node})
				}
			} else {
				sp.serverNode = applyOp(sp.path, sp.serverNode, writeOp{path: path, node: node})
			}
		}

		r.invalidate(path)
	})
}

// OnWriteResult acknowledges or reverts the write with the given id. An ack
// folds the write's effect permanently into the server cache; a revert
// removes it and re-notifies every view that depended on it.
func (r *Repo) OnWriteResult(writeID int64, err error) {
	r.post(func() {
		w := r.writes.remove(writeID)
		if w == nil {
			return
		}
		if err == nil {
			for _, op := range w.ops() {
				r.server.fold(op)
			}
		}
		r.invalidate(w.path)
		if w.onResult != nil {
			w.onResult(err)
		}
	})
}

// OnListenRevoked cancels every listener of the revoked view and removes it.
func (r *Repo) OnListenRevoked(path tree.Path, params query.Params, tag string, err error) {
	r.post(func() {
		sp, ok := r.tags[tag]
		if !ok {
			return
		}
		if err == nil {
			err = constants.ErrPermissionDenied
		}
		listeners := sp.listeners
		sp.listeners = nil
		for _, l := range listeners {
			l.state = stateCancelled
			delete(r.handles, l.handle)
			if l.cancel != nil {
				l.cancel(err)
			}
		}
		sp.listening = false
		r.failWaitingTransactions(path, err)
		r.cleanupSyncPoint(sp)
	})
}

// OnDisconnectOpResult resolves the staging of a disconnect operation.
func (r *Repo) OnDisconnectOpResult(opID int64, err error) {
	r.post(func() {
		r.resolveDisconnectOp(opID, err)
	})
}

// OnConnectionStatus tracks connectivity. Each fresh connection starts with
// an empty server-side session, so the full active state is replayed: the
// credential, every listen, every pending write in id order, and every
// staged disconnect operation.
func (r *Repo) OnConnectionStatus(connected bool) {
	r.post(func() {
		wasConnected := r.connected
		r.connected = connected
		if !connected || wasConnected {
			return
		}

		if r.credential != "" {
			r.conn.Auth(r.credential)
		}
		for _, sp := range r.syncPoints {
			sp.listening = true
			r.conn.Listen(sp.path, sp.params, sp.tag)
		}
		for _, w := range r.writes.writes {
			r.conn.SendWrite(connection.OutboundWrite{
				ID:           w.id,
				Path:         w.path,
				Kind:         w.kind,
				Node:         w.node,
				Children:     w.children,
				Condition:    w.condition,
				HasCondition: w.conditional,
			})
		}
		r.restageDisconnectOps()
	})
}

// OnAuthResult resolves the outstanding Auth call.
func (r *Repo) OnAuthResult(data map[string]any, err error) {
	r.post(func() {
		complete, cancel := r.authComplete, r.authCancel
		r.authComplete = nil
		if err != nil {
			r.credential = ""
			r.authClaims = nil
			r.authCancel = nil
			if cancel != nil {
				cancel(err)
			}
			return
		}
		// cancel stays registered: it fires if the established session is
		// later revoked, e.g. a denial when the credential is replayed on
		// reconnect.
		if complete != nil {
			if data == nil {
				data = make(map[string]any)
			}
			if r.authClaims != nil {
				data["claims"] = r.authClaims
			}
			complete(data, nil)
		}
	})
}
