package provbatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixNamer(t *testing.T) {
	namer, err := PrefixNamer("loadtest", 9)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := namer(i)
		require.NoError(t, err)

		require.True(t, strings.HasPrefix(id, "loadtest-"), "unexpected ID %q", id)
		suffix := strings.TrimPrefix(id, "loadtest-")
		assert.Len(t, suffix, 9)
		assert.Equal(t, strings.ToLower(suffix), suffix, "suffix must be lowercase")

		seen[id] = struct{}{}
	}
	// Random 9-character suffixes should not collide in 100 draws.
	assert.Len(t, seen, 100)
}

func TestPrefixNamerValidation(t *testing.T) {
	_, err := PrefixNamer("", 8)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = PrefixNamer("x", 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
