package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treesync/treesync.go/internal/mock"
	"github.com/treesync/treesync.go/pkg/constants"
	"github.com/treesync/treesync.go/pkg/logger"
	"github.com/treesync/treesync.go/pkg/query"
	"github.com/treesync/treesync.go/pkg/tree"
)

func newTestRepo(t *testing.T) (*Repo, *mock.Connection) {
	t.Helper()
	conn := mock.New()
	r := New(conn, logger.Nop(), 0)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(r.Close)
	return r, conn
}

func path(t *testing.T, s string) tree.Path {
	t.Helper()
	p, err := tree.ParsePath(s)
	require.NoError(t, err)
	return p
}

// serverPut plays the server: it answers the most recent listen for p with
// node as tagged authoritative data.
func serverPut(t *testing.T, r *Repo, conn *mock.Connection, p tree.Path, v any) {
	t.Helper()
	var tag string
	for _, l := range conn.Listens() {
		if l.Path.Equal(p) {
			tag = l.Tag
		}
	}
	require.NotEmpty(t, tag, "no listen for %s", p)
	conn.Delegate().OnServerUpdate(p, tree.MustValue(v), false, tag)
	r.Flush()
}

// collect observes one event type at p and returns the slice the events
// accumulate into. The slice is safe to read after Flush.
func collect(r *Repo, p tree.Path, params query.Params, etype EventType) *[]Event {
	events := &[]Event{}
	r.Observe(p, params, etype, false, func(e Event) {
		*events = append(*events, e)
	}, nil)
	return events
}

func TestObserveDeliversServerValue(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "users/fred")

	events := collect(r, p, query.Params{}, EventValue)
	r.Flush()
	require.Len(t, conn.Listens(), 1)
	assert.Empty(t, *events, "no event before the view resolves")

	serverPut(t, r, conn, p, map[string]any{"name": "Fred"})

	require.Len(t, *events, 1)
	assert.Equal(t, map[string]any{"name": "Fred"}, (*events)[0].Node.Value())
}

func TestOptimisticWriteFiresBeforeAck(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "score")

	events := collect(r, p, query.Params{}, EventValue)
	r.SetValue(p, tree.Number(10), nil)
	r.Flush()

	// The overwrite resolves the view without any server data.
	require.Len(t, *events, 1)
	assert.Equal(t, float64(10), (*events)[0].Node.Value())

	// The ack folds the write into the server cache without a second event.
	writes := conn.Writes()
	require.Len(t, writes, 1)
	conn.Delegate().OnWriteResult(writes[0].ID, nil)
	r.Flush()
	assert.Len(t, *events, 1)
}

func TestWriteRevertRestoresServerValue(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "config")

	events := collect(r, p, query.Params{}, EventValue)
	r.Flush()
	serverPut(t, r, conn, p, "server")

	var writeErr error
	r.SetValue(p, tree.String("local"), func(err error) { writeErr = err })
	r.Flush()
	require.Len(t, *events, 2)
	assert.Equal(t, "local", (*events)[1].Node.Value())

	writes := conn.Writes()
	require.Len(t, writes, 1)
	conn.Delegate().OnWriteResult(writes[0].ID, constants.ErrPermissionDenied)
	r.Flush()

	require.Len(t, *events, 3)
	assert.Equal(t, "server", (*events)[2].Node.Value())
	assert.ErrorIs(t, writeErr, constants.ErrPermissionDenied)
}

func TestMergeOverridesOnlyNamedChildren(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "profile")

	events := collect(r, p, query.Params{}, EventValue)
	r.Flush()
	serverPut(t, r, conn, p, map[string]any{"name": "Fred", "age": float64(40)})

	r.Merge(p, map[string]*tree.Node{"age": tree.Number(41)}, nil)
	r.Flush()

	require.Len(t, *events, 2)
	assert.Equal(t, map[string]any{"name": "Fred", "age": float64(41)}, (*events)[1].Node.Value())

	// Reverting the merge falls back to the server value for the named
	// child only.
	writes := conn.Writes()
	require.Len(t, writes, 1)
	conn.Delegate().OnWriteResult(writes[0].ID, constants.ErrPermissionDenied)
	r.Flush()
	require.Len(t, *events, 3)
	assert.Equal(t, map[string]any{"name": "Fred", "age": float64(40)}, (*events)[2].Node.Value())
}

func TestNewerWriteShadowsRevertedOlder(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "v")

	events := collect(r, p, query.Params{}, EventValue)
	r.SetValue(p, tree.String("first"), nil)
	r.SetValue(p, tree.String("second"), nil)
	r.Flush()
	require.Len(t, *events, 2)

	// Reverting the older write changes nothing visible; the newer write
	// still covers the path.
	writes := conn.Writes()
	require.Len(t, writes, 2)
	conn.Delegate().OnWriteResult(writes[0].ID, constants.ErrPermissionDenied)
	r.Flush()
	require.Len(t, *events, 2)
	assert.Equal(t, "second", (*events)[1].Node.Value())
}

func TestChildEventsWithPrevKey(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "items")

	added := collect(r, p, query.Params{}, EventChildAdded)
	removed := collect(r, p, query.Params{}, EventChildRemoved)
	r.Flush()
	serverPut(t, r, conn, p, map[string]any{"a": 1, "b": 2})

	require.Len(t, *added, 2)
	assert.Equal(t, "a", (*added)[0].Key)
	assert.Equal(t, "", (*added)[0].PrevKey)
	assert.Equal(t, "b", (*added)[1].Key)
	assert.Equal(t, "a", (*added)[1].PrevKey)

	serverPut(t, r, conn, p, map[string]any{"b": 2, "c": 3})
	require.Len(t, *added, 3)
	assert.Equal(t, "c", (*added)[2].Key)
	assert.Equal(t, "b", (*added)[2].PrevKey)
	require.Len(t, *removed, 1)
	assert.Equal(t, "a", (*removed)[0].Key)
}

func TestIdempotentOverwriteProducesNoEvent(t *testing.T) {
	r, conn := newTestRepo(t)
	conn.AutoAckWrites = true
	p := path(t, "x")

	events := collect(r, p, query.Params{}, EventValue)
	r.SetValue(p, tree.Number(1), nil)
	r.Flush()
	require.Len(t, *events, 1)

	r.SetValue(p, tree.Number(1), nil)
	r.Flush()
	assert.Len(t, *events, 1)
}

func TestRemoveObserverStopsDelivery(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "feed")

	var events []Event
	handle := r.Observe(p, query.Params{}, EventValue, false, func(e Event) {
		events = append(events, e)
	}, nil)
	r.Flush()
	serverPut(t, r, conn, p, "one")
	require.Len(t, events, 1)

	r.RemoveObserver(handle)
	r.Flush()
	require.Len(t, conn.Unlistens(), 1)

	// Server data already in flight when the observer was removed must not
	// be delivered.
	conn.Delegate().OnServerUpdate(p, tree.String("two"), false, "")
	r.Flush()
	assert.Len(t, events, 1)
}

func TestRemoveAllObservers(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "multi")

	a := collect(r, p, query.Params{}, EventValue)
	b := collect(r, p, query.Params{}.LimitToFirst(1), EventValue)
	r.Flush()
	require.Len(t, conn.Listens(), 2)

	r.RemoveAllObservers(p)
	r.Flush()
	require.Len(t, conn.Unlistens(), 2)

	conn.Delegate().OnServerUpdate(p, tree.String("late"), false, "")
	r.Flush()
	assert.Empty(t, *a)
	assert.Empty(t, *b)
}

func TestObserveSingleDetachesAfterFirstEvent(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "once")

	var events []Event
	r.Observe(p, query.Params{}, EventValue, true, func(e Event) {
		events = append(events, e)
	}, nil)
	r.Flush()
	serverPut(t, r, conn, p, "first")
	require.Len(t, events, 1)

	// The single-shot listen is withdrawn and later data is ignored.
	require.Len(t, conn.Unlistens(), 1)
	conn.Delegate().OnServerUpdate(p, tree.String("second"), false, "")
	r.Flush()
	assert.Len(t, events, 1)
}

func TestOnceListenerDetachKeepsBatchDelivery(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "fanout")

	// The single-shot listener registers first so its mid-batch removal
	// shifts the listener slice under the surviving one.
	var onceKeys []string
	r.Observe(p, query.Params{}, EventChildAdded, true, func(e Event) {
		onceKeys = append(onceKeys, e.Key)
	}, nil)
	var keys []string
	r.Observe(p, query.Params{}, EventChildAdded, false, func(e Event) {
		keys = append(keys, e.Key)
	}, nil)
	r.Flush()
	serverPut(t, r, conn, p, nil)

	conn.Delegate().OnServerUpdate(p, tree.MustValue(map[string]any{"a": 1, "b": 2}), false, "")
	r.Flush()

	assert.Equal(t, []string{"a"}, onceKeys)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestObserveSingleReleasesHandle(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "oncehandle")

	r.Observe(p, query.Params{}, EventValue, true, func(Event) {}, nil)
	r.Flush()
	serverPut(t, r, conn, p, "v")

	var registered int
	r.post(func() { registered = len(r.handles) })
	r.Flush()
	assert.Zero(t, registered)
}

func TestObserversShareOneListen(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "shared")

	a := collect(r, p, query.Params{}, EventValue)
	b := collect(r, p, query.Params{}, EventValue)
	r.Flush()
	require.Len(t, conn.Listens(), 1)

	serverPut(t, r, conn, p, "v")
	assert.Len(t, *a, 1)
	assert.Len(t, *b, 1)
}

func TestLateObserverGetsCachedInitialState(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "cached")

	first := collect(r, p, query.Params{}, EventValue)
	r.Flush()
	serverPut(t, r, conn, p, "v")
	require.Len(t, *first, 1)

	// A second observer of the resolved view gets its initial state at once,
	// with no additional listen.
	second := collect(r, p, query.Params{}, EventValue)
	r.Flush()
	require.Len(t, *second, 1)
	assert.Equal(t, "v", (*second)[0].Node.Value())
	assert.Len(t, conn.Listens(), 1)
}

func TestListenRevokedCancelsObservers(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "secret")

	var cancelErr error
	var events []Event
	r.Observe(p, query.Params{}, EventValue, false, func(e Event) {
		events = append(events, e)
	}, func(err error) { cancelErr = err })
	r.Flush()

	listens := conn.Listens()
	require.Len(t, listens, 1)
	conn.Delegate().OnListenRevoked(p, query.Params{}, listens[0].Tag, nil)
	r.Flush()

	assert.ErrorIs(t, cancelErr, constants.ErrPermissionDenied)
	conn.Delegate().OnServerUpdate(p, tree.String("x"), false, "")
	r.Flush()
	assert.Empty(t, events)
}

func TestBoundedViewKeepsTaggedDataPrivate(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "ranked")
	params := query.Params{}.LimitToFirst(2)

	bounded := collect(r, p, params, EventValue)
	r.Flush()
	listens := conn.Listens()
	require.Len(t, listens, 1)

	conn.Delegate().OnServerUpdate(p, tree.MustValue(map[string]any{"a": 1, "b": 2}), false, listens[0].Tag)
	r.Flush()
	require.Len(t, *bounded, 1)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, (*bounded)[0].Node.Value())

	// A default observer at the same path cannot be served from the bounded
	// view's data; it needs its own listen and server answer.
	full := collect(r, p, query.Params{}, EventValue)
	r.Flush()
	assert.Empty(t, *full)
	assert.Len(t, conn.Listens(), 2)
}

func TestBoundedViewAppliesLimit(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "top")
	params := query.Params{}.LimitToFirst(2)

	events := collect(r, p, params, EventValue)
	r.Flush()
	listens := conn.Listens()
	require.Len(t, listens, 1)

	conn.Delegate().OnServerUpdate(p, tree.MustValue(map[string]any{"a": 1, "b": 2, "c": 3}), false, listens[0].Tag)
	r.Flush()

	require.Len(t, *events, 1)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, (*events)[0].Node.Value())
}

func TestUntaggedDeltaReachesBoundedView(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "live")
	params := query.Params{}.LimitToFirst(10)

	events := collect(r, p, params, EventValue)
	r.Flush()
	listens := conn.Listens()
	require.Len(t, listens, 1)
	conn.Delegate().OnServerUpdate(p, tree.MustValue(map[string]any{"a": 1}), false, listens[0].Tag)
	r.Flush()
	require.Len(t, *events, 1)

	// A broadcast delta under the path advances the bounded view too.
	conn.Delegate().OnServerUpdate(p.Child("b"), tree.Number(2), false, "")
	r.Flush()
	require.Len(t, *events, 2)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, (*events)[1].Node.Value())
}

func TestReconnectReplaysListensAndWrites(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "replay")

	collect(r, p, query.Params{}, EventValue)
	r.SetValue(p, tree.String("pending"), nil)
	r.Flush()
	require.Len(t, conn.Listens(), 1)
	require.Len(t, conn.Writes(), 1)

	conn.Delegate().OnConnectionStatus(false)
	conn.Delegate().OnConnectionStatus(true)
	r.Flush()

	listens := conn.Listens()
	require.Len(t, listens, 2)
	assert.Equal(t, listens[0].Tag, listens[1].Tag, "listen tag is stable across reconnects")

	writes := conn.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, writes[0].ID, writes[1].ID)
}

func TestEvictedSnapshotServesReobserve(t *testing.T) {
	r, conn := newTestRepo(t)
	p := path(t, "warm")

	handle := r.Observe(p, query.Params{}, EventValue, false, func(Event) {}, nil)
	r.Flush()
	serverPut(t, r, conn, p, "warmval")

	r.RemoveObserver(handle)
	r.Flush()
	require.Len(t, conn.Unlistens(), 1)

	// Re-observing is served from the evicted snapshot immediately; the
	// listen is still re-established for freshness.
	events := collect(r, p, query.Params{}, EventValue)
	r.Flush()
	require.Len(t, *events, 1)
	assert.Equal(t, "warmval", (*events)[0].Node.Value())
	assert.Len(t, conn.Listens(), 2)
}

func TestCloseCancelsPendingWrites(t *testing.T) {
	conn := mock.New()
	r := New(conn, logger.Nop(), 0)
	require.NoError(t, conn.Connect(context.Background()))
	p := path(t, "closing")

	var writeErr error
	r.SetValue(p, tree.String("v"), func(err error) { writeErr = err })
	r.Flush()

	r.Close()
	assert.ErrorIs(t, writeErr, constants.ErrWriteCanceled)
}
