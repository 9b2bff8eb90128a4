package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treesync/treesync.go/pkg/tree"
)

func viewOf(t *testing.T, pairs ...any) *tree.Node {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	node := tree.Empty
	for i := 0; i < len(pairs); i += 2 {
		child, err := tree.ValueOf(pairs[i+1])
		require.NoError(t, err)
		node = node.WithChild(pairs[i].(string), child)
	}
	return node
}

func kinds(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestInitialEvents(t *testing.T) {
	view := viewOf(t, "a", 1, "b", 2)
	events := initialEvents(tree.RootPath, view)

	require.Len(t, events, 3)
	assert.Equal(t, []EventType{EventChildAdded, EventChildAdded, EventValue}, kinds(events))
	assert.Equal(t, "a", events[0].Key)
	assert.Equal(t, "", events[0].PrevKey)
	assert.Equal(t, "b", events[1].Key)
	assert.Equal(t, "a", events[1].PrevKey)
	assert.True(t, view.Equal(events[2].Node))
}

func TestInitialEventsScalar(t *testing.T) {
	events := initialEvents(tree.RootPath, tree.String("leaf"))
	require.Len(t, events, 1)
	assert.Equal(t, EventValue, events[0].Type)
}

func TestDiffEventsIdenticalViews(t *testing.T) {
	view := viewOf(t, "a", 1)
	assert.Nil(t, diffEvents(tree.RootPath, view, view))
	assert.Nil(t, diffEvents(tree.RootPath, view, viewOf(t, "a", 1)))
}

func TestDiffEventsGroupsAndOrder(t *testing.T) {
	oldView := viewOf(t, "gone", 0, "kept", 1, "changed", 2)
	newView := viewOf(t, "kept", 1, "changed", 99, "fresh", 3)

	events := diffEvents(tree.RootPath, oldView, newView)
	require.Len(t, events, 4)
	assert.Equal(t, []EventType{EventChildRemoved, EventChildChanged, EventChildAdded, EventValue}, kinds(events))
	assert.Equal(t, "gone", events[0].Key)
	assert.Equal(t, "changed", events[1].Key)
	assert.Equal(t, "fresh", events[2].Key)

	// PrevKey reflects position in the new view.
	assert.Equal(t, "", events[1].PrevKey)
	assert.Equal(t, "changed", events[2].PrevKey)
}

func TestDiffEventsMove(t *testing.T) {
	pri := func(v float64, p float64) *tree.Node {
		return tree.Number(v).WithPriority(tree.Number(p))
	}
	oldView := tree.Empty.WithChild("a", pri(1, 1)).WithChild("b", pri(2, 2))
	newView := tree.Empty.WithChild("a", pri(1, 3)).WithChild("b", pri(2, 2))

	events := diffEvents(tree.RootPath, oldView, newView)
	types := kinds(events)
	assert.Contains(t, types, EventChildMoved)
	assert.Equal(t, EventValue, types[len(types)-1])

	for _, e := range events {
		if e.Type == EventChildMoved {
			assert.Equal(t, "a", e.Key)
			assert.Equal(t, "b", e.PrevKey)
		}
	}
}
