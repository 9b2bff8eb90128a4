package tree

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/treesync/treesync.go/pkg/constants"
)

// Kind enumerates the value kinds a Node can hold.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindMap
)

// Node is an immutable value in the synchronized tree: null, a scalar, or an
// ordered mapping of key to child Node. Every non-null node may carry a
// priority, itself a number or string Node. All mutating operations return a
// new Node and leave the receiver untouched, so Nodes can be shared freely
// across views and snapshots.
type Node struct {
	kind     Kind
	boolVal  bool
	numVal   float64
	strVal   string
	children []Child
	priority *Node
}

// Child pairs a key with its Node. Children of a map Node are stored in the
// deterministic priority-then-key order; see CompareChildren.
type Child struct {
	Key  string
	Node *Node
}

// Empty is the null Node. It carries no priority and has no children; every
// removed location collapses to Empty.
var Empty = &Node{}

// Bool returns a boolean leaf Node.
func Bool(v bool) *Node {
	return &Node{kind: KindBool, boolVal: v}
}

// Number returns a numeric leaf Node. All numbers are IEEE-754 doubles.
func Number(v float64) *Node {
	return &Node{kind: KindNumber, numVal: v}
}

// String returns a string leaf Node.
func String(v string) *Node {
	return &Node{kind: KindString, strVal: v}
}

// ValueOf converts a caller-supplied Go value into a Node. Accepted types are
// nil, bool, string, any integer or float type, map[string]any, []any
// (converted to a map keyed "0", "1", ...), and *Node itself. Within a map
// the reserved keys ".value" and ".priority" denote a prioritized leaf, the
// inverse of Export. Any other type fails with ErrInvalidValue.
func ValueOf(v any) (*Node, error) {
	switch val := v.(type) {
	case nil:
		return Empty, nil
	case *Node:
		if val == nil {
			return Empty, nil
		}
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(float64(val)), nil
	case int:
		return Number(float64(val)), nil
	case int8:
		return Number(float64(val)), nil
	case int16:
		return Number(float64(val)), nil
	case int32:
		return Number(float64(val)), nil
	case int64:
		return Number(float64(val)), nil
	case uint:
		return Number(float64(val)), nil
	case uint8:
		return Number(float64(val)), nil
	case uint16:
		return Number(float64(val)), nil
	case uint32:
		return Number(float64(val)), nil
	case uint64:
		return Number(float64(val)), nil
	case []any:
		m := make(map[string]any, len(val))
		for i, elem := range val {
			if elem == nil {
				continue
			}
			m[strconv.Itoa(i)] = elem
		}
		return mapOf(m)
	case map[string]any:
		return mapOf(val)
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: map key %v is not a string", constants.ErrInvalidValue, k)
			}
			m[key] = elem
		}
		return mapOf(m)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", constants.ErrInvalidValue, v)
	}
}

// PriorityOf converts a caller-supplied priority into a Node. Only nil,
// numbers, and strings are valid priorities. Container types are rejected
// on their raw type: an empty map or slice collapses to Null under ValueOf
// and would otherwise slip through as a missing priority.
func PriorityOf(v any) (*Node, error) {
	switch v.(type) {
	case map[string]any, map[any]any, []any:
		return nil, fmt.Errorf("%w: priority must be nil, a number, or a string", constants.ErrInvalidPriority)
	}
	n, err := ValueOf(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrInvalidPriority, v)
	}
	switch n.kind {
	case KindNull, KindNumber, KindString:
		return n, nil
	default:
		return nil, fmt.Errorf("%w: priority must be nil, a number, or a string", constants.ErrInvalidPriority)
	}
}

// MustValue is ValueOf for values known to be valid. It panics otherwise.
func MustValue(v any) *Node {
	n, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return n
}

func mapOf(m map[string]any) (*Node, error) {
	var priority *Node
	if rawPri, ok := m[".priority"]; ok {
		p, err := PriorityOf(rawPri)
		if err != nil {
			return nil, err
		}
		if !p.IsEmpty() {
			priority = p
		}
	}

	if rawVal, ok := m[".value"]; ok {
		leaf, err := ValueOf(rawVal)
		if err != nil {
			return nil, err
		}
		return leaf.WithPriority(priority), nil
	}

	children := make([]Child, 0, len(m))
	for key, rawChild := range m {
		if key == ".priority" {
			continue
		}
		if err := ValidateKey(key); err != nil {
			return nil, err
		}
		child, err := ValueOf(rawChild)
		if err != nil {
			return nil, err
		}
		if child.IsEmpty() {
			continue
		}
		children = append(children, Child{Key: key, Node: child})
	}
	if len(children) == 0 {
		return Empty, nil
	}
	sort.Slice(children, func(i, j int) bool {
		return CompareChildren(children[i], children[j]) < 0
	})
	return &Node{kind: KindMap, children: children, priority: priority}, nil
}

// Kind returns the value kind of n.
func (n *Node) Kind() Kind {
	return n.kind
}

// IsEmpty reports whether n is the null Node.
func (n *Node) IsEmpty() bool {
	return n.kind == KindNull
}

// Bool returns the boolean payload, or false for non-boolean nodes.
func (n *Node) Bool() bool {
	return n.boolVal
}

// Num returns the numeric payload, or 0 for non-numeric nodes.
func (n *Node) Num() float64 {
	return n.numVal
}

// Str returns the string payload, or "" for non-string nodes.
func (n *Node) Str() string {
	return n.strVal
}

// Priority returns the node's priority, or Empty when none is set.
func (n *Node) Priority() *Node {
	if n.priority == nil {
		return Empty
	}
	return n.priority
}

// WithPriority returns n carrying the given priority. Passing nil or Empty
// clears the priority. The null Node never carries a priority.
func (n *Node) WithPriority(priority *Node) *Node {
	if priority != nil && priority.IsEmpty() {
		priority = nil
	}
	if n.IsEmpty() || n.Priority().Equal(priorityOrEmpty(priority)) {
		return n
	}
	clone := *n
	clone.priority = priority
	return &clone
}

func priorityOrEmpty(p *Node) *Node {
	if p == nil {
		return Empty
	}
	return p
}

// HasChildren reports whether n is a map with at least one child.
func (n *Node) HasChildren() bool {
	return len(n.children) > 0
}

// ChildCount returns the number of immediate children.
func (n *Node) ChildCount() int {
	return len(n.children)
}

// Children returns the immediate children in priority-then-key order. The
// returned slice must not be mutated.
func (n *Node) Children() []Child {
	return n.children
}

// Child returns the immediate child with the given key, or Empty.
func (n *Node) Child(key string) *Node {
	for _, c := range n.children {
		if c.Key == key {
			return c.Node
		}
	}
	return Empty
}

// Get returns the node at the given relative path, or Empty.
func (n *Node) Get(path Path) *Node {
	if path.IsRoot() {
		return n
	}
	return n.Child(path.Front()).Get(path.Pop())
}

// WithChild returns n with the given immediate child replaced. An Empty
// child removes the key; a map whose last child is removed collapses to
// Empty. Replacing a child of a scalar leaf turns the leaf into a map.
func (n *Node) WithChild(key string, child *Node) *Node {
	if n.Child(key).Equal(child) {
		return n
	}

	out := make([]Child, 0, len(n.children)+1)
	for _, c := range n.children {
		if c.Key != key {
			out = append(out, c)
		}
	}
	if !child.IsEmpty() {
		entry := Child{Key: key, Node: child}
		at := sort.Search(len(out), func(i int) bool {
			return CompareChildren(out[i], entry) >= 0
		})
		out = append(out, Child{})
		copy(out[at+1:], out[at:])
		out[at] = entry
	}

	if len(out) == 0 {
		return Empty
	}
	return &Node{kind: KindMap, children: out, priority: n.priority}
}

// Set returns n with the node at the given relative path replaced by v.
// Setting Empty removes the subtree; intermediate scalar leaves are replaced
// by maps as needed.
func (n *Node) Set(path Path, v *Node) *Node {
	if path.IsRoot() {
		return v
	}
	key := path.Front()
	return n.WithChild(key, n.Child(key).Set(path.Pop(), v))
}

// SetPriorityAt returns n with the priority at the given relative path
// replaced. Priorities cannot be attached to empty locations, so this is a
// no-op when the target does not exist.
func (n *Node) SetPriorityAt(path Path, priority *Node) *Node {
	target := n.Get(path)
	if target.IsEmpty() {
		return n
	}
	return n.Set(path, target.WithPriority(priority))
}

// Equal reports deep equality of value, priority, and child order.
func (n *Node) Equal(other *Node) bool {
	if n == other {
		return true
	}
	if n == nil || other == nil || n.kind != other.kind {
		return false
	}
	if !n.Priority().scalarEqual(other.Priority()) {
		return false
	}
	switch n.kind {
	case KindNull:
		return true
	case KindBool:
		return n.boolVal == other.boolVal
	case KindNumber:
		return n.numVal == other.numVal
	case KindString:
		return n.strVal == other.strVal
	case KindMap:
		if len(n.children) != len(other.children) {
			return false
		}
		for i, c := range n.children {
			o := other.children[i]
			if c.Key != o.Key || !c.Node.Equal(o.Node) {
				return false
			}
		}
		return true
	}
	return false
}

func (n *Node) scalarEqual(other *Node) bool {
	if n.kind != other.kind {
		return false
	}
	switch n.kind {
	case KindNumber:
		return n.numVal == other.numVal
	case KindString:
		return n.strVal == other.strVal
	default:
		return n.kind == KindNull
	}
}
