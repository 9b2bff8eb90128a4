package repo

import (
	"github.com/treesync/treesync.go/pkg/query"
	"github.com/treesync/treesync.go/pkg/tree"
)

type listenerState int

const (
	statePending listenerState = iota
	stateActive
	stateCancelled
)

// listener is one registered observation. It subscribes exactly one event
// type; once Cancelled it never fires again, even for events already
// computed but not yet delivered.
type listener struct {
	handle uint64
	etype  EventType
	once   bool
	fn     func(Event)
	cancel func(error)
	state  listenerState
}

// syncPoint is the materialization and dispatch unit for one distinct
// (path, params) pair actually being listened to. It combines the
// server-confirmed value with visible pending writes into a filtered view
// and owns the listeners registered against that view.
type syncPoint struct {
	path   tree.Path
	params query.Params

	// tag identifies this view's listen on the wire across reconnects.
	tag string

	listeners []*listener

	// refs counts non-listener holds, e.g. transactions awaiting a fresh
	// server read.
	refs int

	// view is the filtered materialized current view; nil while unresolved.
	view *tree.Node

	// serverNode and serverReady track server state for bounded views, whose
	// tagged data is authoritative for this view only and must not leak into
	// the shared cache.
	serverNode  *tree.Node
	serverReady bool

	listening bool
}

func syncPointKey(path tree.Path, params query.Params) string {
	return path.String() + "|" + params.String()
}

func (sp *syncPoint) key() string {
	return syncPointKey(sp.path, sp.params)
}

func (sp *syncPoint) isDefault() bool {
	return sp.params.IsDefault()
}

func (sp *syncPoint) empty() bool {
	return len(sp.listeners) == 0 && sp.refs == 0
}

func (sp *syncPoint) removeListener(l *listener) {
	l.state = stateCancelled
	for i, cand := range sp.listeners {
		if cand == l {
			sp.listeners = append(sp.listeners[:i], sp.listeners[i+1:]...)
			return
		}
	}
}

// deliver fires events at the given listeners in order, honoring per-event
// type subscription, cancellation, and single-delivery listeners. It
// iterates a private copy of targets so that detaching a single-delivery
// listener mid-batch cannot shift the slice under the loop, and returns the
// handles of listeners detached while firing so the caller can drop their
// registrations.
func (sp *syncPoint) deliver(events []Event, targets []*listener) []uint64 {
	targets = append([]*listener(nil), targets...)
	var detached []uint64
	for _, e := range events {
		for _, l := range targets {
			if l.state != stateActive || l.etype != e.Type {
				continue
			}
			l.fn(e)
			if l.once {
				sp.removeListener(l)
				detached = append(detached, l.handle)
			}
		}
	}
	return detached
}
