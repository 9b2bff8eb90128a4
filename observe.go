package treesync

import (
	"github.com/treesync/treesync.go/internal/repo"
)

// EventType selects which changes at a location an observer is told about.
type EventType int

const (
	// EventValue fires with the full value at the location after any
	// change beneath it, and once with the current value on attach.
	EventValue EventType = iota
	// EventChildAdded fires for each existing child on attach and for
	// every child that appears afterwards.
	EventChildAdded
	// EventChildChanged fires when a child's value changes.
	EventChildChanged
	// EventChildMoved fires when a child's position among its siblings
	// changes without its value changing.
	EventChildMoved
	// EventChildRemoved fires when a child disappears.
	EventChildRemoved
)

func (t EventType) String() string {
	return repo.EventType(t).String()
}

// Handle identifies a registered observer for removal. Handles are unique
// across the Client.
type Handle uint64

// ObserveFunc receives a snapshot of the affected location. For child
// events prevKey names the sibling immediately before the child in
// priority order, or "" when the child is first.
type ObserveFunc func(snap *Snapshot, prevKey string)

// Observe registers fn for events of the given type at this Ref. The
// observer's initial state is delivered asynchronously once known: a
// value observer gets one EventValue, a child-added observer one event
// per current child. Observing a location opens a server listen for it
// if none is active.
func (r *Ref) Observe(etype EventType, fn ObserveFunc) Handle {
	return r.observe(etype, false, fn, nil)
}

// ObserveWithCancel is Observe with a cancellation callback that runs if
// the server revokes the listen, after which fn will never run again.
func (r *Ref) ObserveWithCancel(etype EventType, fn ObserveFunc, cancel func(error)) Handle {
	return r.observe(etype, false, fn, cancel)
}

// ObserveSingle delivers exactly one event of the given type and then
// detaches.
func (r *Ref) ObserveSingle(etype EventType, fn ObserveFunc) {
	r.observe(etype, true, fn, nil)
}

// ObserveSingleWithCancel is ObserveSingle with a cancellation callback.
func (r *Ref) ObserveSingleWithCancel(etype EventType, fn ObserveFunc, cancel func(error)) {
	r.observe(etype, true, fn, cancel)
}

func (r *Ref) observe(etype EventType, once bool, fn ObserveFunc, cancel func(error)) Handle {
	ref := r
	handle := r.client.repo.Observe(r.path, r.params, repo.EventType(etype), once, func(e repo.Event) {
		snapRef := ref
		key := ref.Key()
		if e.Type != repo.EventValue {
			key = e.Key
			snapRef = &Ref{client: ref.client, path: ref.path.Child(e.Key)}
		}
		fn(&Snapshot{ref: snapRef, key: key, node: e.Node}, e.PrevKey)
	}, cancel)
	return Handle(handle)
}

// RemoveObserver detaches the observer registered under handle. Events
// already queued for it are discarded. Unknown handles are ignored.
func (r *Ref) RemoveObserver(handle Handle) {
	r.client.repo.RemoveObserver(uint64(handle))
}

// RemoveAllObservers detaches every observer at this Ref's location,
// across all query parameters.
func (r *Ref) RemoveAllObservers() {
	r.client.repo.RemoveAllObservers(r.path)
}
