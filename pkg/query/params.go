// Package query models the bounds of a view over a location's children:
// optional start and end positions in priority order, an optional child-name
// tiebreak on either bound, and a result-count limit anchored at either end.
//
// Params is an immutable value; every transform returns a derived copy. This
// replaces subclass-style query builders with plain value composition.
package query

import (
	"fmt"
	"strings"

	"github.com/treesync/treesync.go/pkg/tree"
)

// Anchor selects which end of the ordered child sequence a limit keeps.
type Anchor int

const (
	AnchorNone Anchor = iota
	AnchorFirst
	AnchorLast
)

// Params describes the bounds of one view. The zero value is the default
// view: all children, unbounded, unlimited.
type Params struct {
	hasStart      bool
	startPriority *tree.Node
	startKey      string
	hasStartKey   bool

	hasEnd      bool
	endPriority *tree.Node
	endKey      string
	hasEndKey   bool

	limit  int
	anchor Anchor
}

// StartingAt returns p bounded below by the given priority, inclusive.
func (p Params) StartingAt(priority *tree.Node) Params {
	p.hasStart = true
	p.startPriority = priority
	p.hasStartKey = false
	p.startKey = ""
	return p
}

// StartingAtKey returns p bounded below by (priority, key), inclusive. The
// key breaks ties between children sharing the start priority.
func (p Params) StartingAtKey(priority *tree.Node, key string) Params {
	p.hasStart = true
	p.startPriority = priority
	p.hasStartKey = true
	p.startKey = key
	return p
}

// EndingAt returns p bounded above by the given priority, inclusive.
func (p Params) EndingAt(priority *tree.Node) Params {
	p.hasEnd = true
	p.endPriority = priority
	p.hasEndKey = false
	p.endKey = ""
	return p
}

// EndingAtKey returns p bounded above by (priority, key), inclusive.
func (p Params) EndingAtKey(priority *tree.Node, key string) Params {
	p.hasEnd = true
	p.endPriority = priority
	p.hasEndKey = true
	p.endKey = key
	return p
}

// LimitToFirst returns p keeping at most n children from the start of the
// bounded range.
func (p Params) LimitToFirst(n int) Params {
	p.limit = n
	p.anchor = AnchorFirst
	return p
}

// LimitToLast returns p keeping at most n children from the end of the
// bounded range.
func (p Params) LimitToLast(n int) Params {
	p.limit = n
	p.anchor = AnchorLast
	return p
}

// IsDefault reports whether p imposes no bounds and no limit.
func (p Params) IsDefault() bool {
	return !p.hasStart && !p.hasEnd && p.limit == 0
}

// Matches reports whether a child with the given key and priority falls
// within the start and end bounds.
func (p Params) Matches(key string, priority *tree.Node) bool {
	if p.hasStart {
		if p.hasStartKey {
			if tree.ComparePriorityKey(priority, key, p.startPriority, p.startKey) < 0 {
				return false
			}
		} else if tree.ComparePriorityKey(priority, "", p.startPriority, "") < 0 {
			// No key tiebreak: any child at the start priority is included,
			// which the empty key's minimal sort position guarantees.
			return false
		}
	}
	if p.hasEnd {
		if p.hasEndKey {
			if tree.ComparePriorityKey(priority, key, p.endPriority, p.endKey) > 0 {
				return false
			}
		} else if tree.ComparePriorityKey(priority, "", p.endPriority, "") > 0 {
			return false
		}
	}
	return true
}

// Apply materializes the view of node under p: children outside the bounds
// are dropped, then the limit keeps the anchored n. The node's own value and
// priority are preserved.
func (p Params) Apply(node *tree.Node) *tree.Node {
	if p.IsDefault() || !node.HasChildren() {
		return node
	}

	out := node
	for _, c := range node.Children() {
		if !p.Matches(c.Key, c.Node.Priority()) {
			out = out.WithChild(c.Key, tree.Empty)
		}
	}

	if p.limit > 0 && out.ChildCount() > p.limit {
		children := out.Children()
		var drop []tree.Child
		if p.anchor == AnchorLast {
			drop = children[:len(children)-p.limit]
		} else {
			drop = children[p.limit:]
		}
		// Copy before mutating out, which rebuilds the child slice.
		dropped := make([]string, 0, len(drop))
		for _, c := range drop {
			dropped = append(dropped, c.Key)
		}
		for _, key := range dropped {
			out = out.WithChild(key, tree.Empty)
		}
	}
	return out
}

// Export renders p as a wire-friendly map of bound components. Transports
// attach it to listen requests; the shape mirrors the builder surface.
func (p Params) Export() map[string]any {
	if p.IsDefault() {
		return nil
	}
	m := make(map[string]any)
	if p.hasStart {
		m["sp"] = p.startPriority.Value()
		if p.hasStartKey {
			m["sk"] = p.startKey
		}
	}
	if p.hasEnd {
		m["ep"] = p.endPriority.Value()
		if p.hasEndKey {
			m["ek"] = p.endKey
		}
	}
	if p.limit > 0 {
		m["l"] = p.limit
		if p.anchor == AnchorLast {
			m["vf"] = "r"
		} else {
			m["vf"] = "l"
		}
	}
	return m
}

// Equal reports whether two Params describe the same view.
func (p Params) Equal(other Params) bool {
	return p.String() == other.String()
}

// String renders p as a canonical identity string, used to key views.
func (p Params) String() string {
	if p.IsDefault() {
		return "default"
	}

	var b strings.Builder
	if p.hasStart {
		fmt.Fprintf(&b, "sp=%v;", p.startPriority.Value())
		if p.hasStartKey {
			fmt.Fprintf(&b, "sk=%s;", p.startKey)
		}
	}
	if p.hasEnd {
		fmt.Fprintf(&b, "ep=%v;", p.endPriority.Value())
		if p.hasEndKey {
			fmt.Fprintf(&b, "ek=%s;", p.endKey)
		}
	}
	if p.limit > 0 {
		anchor := "f"
		if p.anchor == AnchorLast {
			anchor = "l"
		}
		fmt.Fprintf(&b, "l=%d;a=%s;", p.limit, anchor)
	}
	return b.String()
}
