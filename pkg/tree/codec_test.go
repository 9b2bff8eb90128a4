package tree

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExport(t *testing.T) {
	plain := MustValue(map[string]any{"a": 1, "b": "x"})
	assert.Equal(t, map[string]any{"a": float64(1), "b": "x"}, plain.Export())

	leaf := String("v").WithPriority(Number(7))
	assert.Equal(t, map[string]any{".value": "v", ".priority": float64(7)}, leaf.Export())

	prioritized := MustValue(map[string]any{"a": 1}).WithPriority(String("p"))
	assert.Equal(t, map[string]any{"a": float64(1), ".priority": "p"}, prioritized.Export())
}

func TestExportValueOfRoundTrip(t *testing.T) {
	node := MustValue(map[string]any{
		"leaf": map[string]any{".value": 3, ".priority": "mid"},
		"map": map[string]any{
			".priority": 1,
			"nested":    true,
		},
		"plain": "s",
	})

	back, err := ValueOf(node.Export())
	require.NoError(t, err)
	assert.True(t, node.Equal(back))
}

func TestCBORRoundTrip(t *testing.T) {
	node := MustValue(map[string]any{
		"users": map[string]any{
			"fred": map[string]any{".value": "f", ".priority": 2},
			"ann":  map[string]any{".value": "a", ".priority": 1},
		},
		"count": 2,
	})

	data, err := cbor.Marshal(node)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	assert.True(t, node.Equal(&decoded))
}

func TestHash(t *testing.T) {
	a := MustValue(map[string]any{"x": 1, "y": "s"})
	b := MustValue(map[string]any{"y": "s", "x": 1})
	c := MustValue(map[string]any{"x": 2, "y": "s"})

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())

	// Priorities are part of the digest.
	assert.NotEqual(t, a.Hash(), a.WithPriority(Number(1)).Hash())
	// Empty and scalar digests differ.
	assert.NotEqual(t, Empty.Hash(), Number(0).Hash())
}
