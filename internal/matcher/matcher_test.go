package matcher

import (
	"testing"

	"github.com/luci/swarmsched/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubsetHashesIncludesEmptyAndFullSet(t *testing.T) {
	dims := map[string][]string{"os": {"Linux"}, "pool": {"default"}}
	hashes, err := subsetHashes(dims, 1024)
	require.NoError(t, err)
	assert.Len(t, hashes, 4) // (1+1) * (1+1) combinations

	assert.Contains(t, hashes, fingerprint.DimensionsHash(map[string]string{}))
	assert.Contains(t, hashes, fingerprint.DimensionsHash(map[string]string{"os": "Linux", "pool": "default"}))
	assert.Contains(t, hashes, fingerprint.DimensionsHash(map[string]string{"os": "Linux"}))
	assert.Contains(t, hashes, fingerprint.DimensionsHash(map[string]string{"pool": "default"}))
}

func TestSubsetHashesCoversEveryValueOfAMultiValuedKey(t *testing.T) {
	// A bot advertising os ∈ {Linux, Ubuntu, Ubuntu-20.04} must be able to
	// match a task requiring any one of those three values (spec.md §4.3).
	dims := map[string][]string{"os": {"Linux", "Ubuntu", "Ubuntu-20.04"}}
	hashes, err := subsetHashes(dims, 1024)
	require.NoError(t, err)
	assert.Len(t, hashes, 4) // not-included, plus one per value

	assert.Contains(t, hashes, fingerprint.DimensionsHash(map[string]string{}))
	assert.Contains(t, hashes, fingerprint.DimensionsHash(map[string]string{"os": "Linux"}))
	assert.Contains(t, hashes, fingerprint.DimensionsHash(map[string]string{"os": "Ubuntu"}))
	assert.Contains(t, hashes, fingerprint.DimensionsHash(map[string]string{"os": "Ubuntu-20.04"}))
}

func TestSubsetHashesRejectsOversizedPowerset(t *testing.T) {
	dims := make(map[string][]string, 12)
	for i := 0; i < 12; i++ {
		dims[string(rune('a'+i))] = []string{"v"}
	}
	_, err := subsetHashes(dims, 1024) // 2^12 = 4096 > 1024
	assert.ErrorIs(t, err, ErrTooManyDimensions)
}

func TestSubsetHashesNoDimensions(t *testing.T) {
	hashes, err := subsetHashes(map[string][]string{}, 1024)
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	assert.Equal(t, fingerprint.DimensionsHash(map[string]string{}), hashes[0])
}
