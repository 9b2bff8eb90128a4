package repo

import (
	"github.com/treesync/treesync.go/pkg/tree"
)

// EventType enumerates the change notifications a listener can subscribe to.
type EventType int

const (
	EventValue EventType = iota
	EventChildAdded
	EventChildChanged
	EventChildMoved
	EventChildRemoved
)

func (t EventType) String() string {
	switch t {
	case EventValue:
		return "value"
	case EventChildAdded:
		return "child_added"
	case EventChildChanged:
		return "child_changed"
	case EventChildMoved:
		return "child_moved"
	case EventChildRemoved:
		return "child_removed"
	default:
		return "unknown"
	}
}

// Event is one ordered change notification for a view.
type Event struct {
	Type EventType

	// Path is the view's location.
	Path tree.Path

	// Key is the affected child key; empty for value events.
	Key string

	// Node is the child snapshot, or the whole view snapshot for value
	// events.
	Node *tree.Node

	// PrevKey is the key of the previous sibling in the new view under the
	// default child order, or empty when the child is first.
	PrevKey string
}

// prevKeyIn returns the previous sibling of key in view order.
func prevKeyIn(view *tree.Node, key string) string {
	prev := ""
	for _, c := range view.Children() {
		if c.Key == key {
			return prev
		}
		prev = c.Key
	}
	return prev
}

// initialEvents produces the event sequence delivered when a view first
// resolves: one child-added per child in order, then the value event.
func initialEvents(path tree.Path, view *tree.Node) []Event {
	events := make([]Event, 0, view.ChildCount()+1)
	prev := ""
	for _, c := range view.Children() {
		events = append(events, Event{
			Type:    EventChildAdded,
			Path:    path,
			Key:     c.Key,
			Node:    c.Node,
			PrevKey: prev,
		})
		prev = c.Key
	}
	events = append(events, Event{Type: EventValue, Path: path, Node: view})
	return events
}

// diffEvents computes the ordered notifications for a view transition:
// removals, then changes, then additions, then moves, each group ordered by
// the child comparator, with the value event last. Identical views produce
// no events.
func diffEvents(path tree.Path, oldView, newView *tree.Node) []Event {
	if oldView.Equal(newView) {
		return nil
	}

	oldChildren := oldView.Children()
	newChildren := newView.Children()

	oldByKey := make(map[string]*tree.Node, len(oldChildren))
	for _, c := range oldChildren {
		oldByKey[c.Key] = c.Node
	}
	newByKey := make(map[string]*tree.Node, len(newChildren))
	for _, c := range newChildren {
		newByKey[c.Key] = c.Node
	}

	var events []Event

	for _, c := range oldChildren {
		if _, kept := newByKey[c.Key]; !kept {
			events = append(events, Event{
				Type: EventChildRemoved,
				Path: path,
				Key:  c.Key,
				Node: c.Node,
			})
		}
	}

	for _, c := range newChildren {
		old, existed := oldByKey[c.Key]
		if existed && !old.Equal(c.Node) {
			events = append(events, Event{
				Type:    EventChildChanged,
				Path:    path,
				Key:     c.Key,
				Node:    c.Node,
				PrevKey: prevKeyIn(newView, c.Key),
			})
		}
	}

	for _, c := range newChildren {
		if _, existed := oldByKey[c.Key]; !existed {
			events = append(events, Event{
				Type:    EventChildAdded,
				Path:    path,
				Key:     c.Key,
				Node:    c.Node,
				PrevKey: prevKeyIn(newView, c.Key),
			})
		}
	}

	for _, c := range newChildren {
		old, existed := oldByKey[c.Key]
		if existed && !old.Priority().Equal(c.Node.Priority()) {
			events = append(events, Event{
				Type:    EventChildMoved,
				Path:    path,
				Key:     c.Key,
				Node:    c.Node,
				PrevKey: prevKeyIn(newView, c.Key),
			})
		}
	}

	events = append(events, Event{Type: EventValue, Path: path, Node: newView})
	return events
}
