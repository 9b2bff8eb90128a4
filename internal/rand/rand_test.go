package rand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	a := RequestID(16)
	b := RequestID(16)

	require.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.Empty(t, RequestID(0))

	for _, r := range a {
		assert.Contains(t, charset, string(r))
	}
}
