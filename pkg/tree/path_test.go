package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treesync/treesync.go/pkg/constants"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		segments []string
		wantErr  bool
	}{
		{name: "empty is root", input: "", segments: nil},
		{name: "bare slash is root", input: "/", segments: nil},
		{name: "single segment", input: "users", segments: []string{"users"}},
		{name: "leading and trailing slashes", input: "/users/fred/", segments: []string{"users", "fred"}},
		{name: "nested", input: "users/fred/name", segments: []string{"users", "fred", "name"}},
		{name: "dollar key rejected", input: "users/$fred", wantErr: true},
		{name: "dot key rejected", input: "a/.b", wantErr: true},
		{name: "hash key rejected", input: "a#b", wantErr: true},
		{name: "control char rejected", input: "a\x01b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, constants.ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.segments), p.Depth())
			if len(tt.segments) > 0 {
				assert.Equal(t, tt.segments[0], p.Front())
				assert.Equal(t, tt.segments[len(tt.segments)-1], p.Key())
			}
		})
	}
}

func TestPathNavigation(t *testing.T) {
	p, err := ParsePath("a/b/c")
	require.NoError(t, err)

	assert.Equal(t, "/a/b/c", p.String())
	assert.Equal(t, "c", p.Key())
	assert.Equal(t, "a", p.Front())
	assert.Equal(t, "/a/b", p.Parent().String())
	assert.Equal(t, "/b/c", p.Pop().String())
	assert.Equal(t, "/a/b/c/d", p.Child("d").String())
	assert.True(t, RootPath.IsRoot())
	assert.Equal(t, "/", RootPath.String())
	assert.Equal(t, "", RootPath.Key())
}

func TestPathContainsAndRelative(t *testing.T) {
	root := RootPath
	ab, _ := ParsePath("a/b")
	abc, _ := ParsePath("a/b/c")
	ax, _ := ParsePath("a/x")

	assert.True(t, root.Contains(abc))
	assert.True(t, ab.Contains(abc))
	assert.True(t, ab.Contains(ab))
	assert.False(t, abc.Contains(ab))
	assert.False(t, ax.Contains(abc))

	rel, ok := abc.RelativeTo(ab)
	require.True(t, ok)
	assert.Equal(t, "/c", rel.String())

	_, ok = ab.RelativeTo(abc)
	assert.False(t, ok)

	rel, ok = ab.RelativeTo(ab)
	require.True(t, ok)
	assert.True(t, rel.IsRoot())
}

func TestPathCompare(t *testing.T) {
	a, _ := ParsePath("a")
	ab, _ := ParsePath("a/b")
	b, _ := ParsePath("b")

	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, a.Compare(ab))
	assert.Equal(t, 1, ab.Compare(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.True(t, ab.Equal(ab))
	assert.False(t, ab.Equal(b))
}
