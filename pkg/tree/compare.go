package tree

import "strings"

// Children of a map are ordered by a single deterministic comparator, the
// source of truth for iteration order, query bound inclusion, and
// previous-sibling computation:
//
//  1. children with no priority sort first, ordered by key;
//  2. children with numeric priorities come next, ordered by priority value
//     (IEEE-754 double, small to large) then by key;
//  3. children with string priorities come last, ordered by priority bytes
//     then by key.

func priorityClass(p *Node) int {
	switch p.kind {
	case KindNumber:
		return 1
	case KindString:
		return 2
	default:
		return 0
	}
}

// ComparePriorityKey orders (priority, key) pairs per the child comparator.
func ComparePriorityKey(aPri *Node, aKey string, bPri *Node, bKey string) int {
	aPri, bPri = priorityOrEmpty(aPri), priorityOrEmpty(bPri)

	if ac, bc := priorityClass(aPri), priorityClass(bPri); ac != bc {
		if ac < bc {
			return -1
		}
		return 1
	}

	switch priorityClass(aPri) {
	case 1:
		if aPri.numVal != bPri.numVal {
			if aPri.numVal < bPri.numVal {
				return -1
			}
			return 1
		}
	case 2:
		if c := strings.Compare(aPri.strVal, bPri.strVal); c != 0 {
			return c
		}
	}
	return strings.Compare(aKey, bKey)
}

// CompareChildren orders two named children per the child comparator.
func CompareChildren(a, b Child) int {
	return ComparePriorityKey(a.Node.Priority(), a.Key, b.Node.Priority(), b.Key)
}
