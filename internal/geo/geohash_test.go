package geo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeGeohashDeterministic(t *testing.T) {
	first, err := EncodeGeohash(45.5, -122.7, DefaultGeohashPrecision)
	require.NoError(t, err)

	second, err := EncodeGeohash(45.5, -122.7, DefaultGeohashPrecision)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, DefaultGeohashPrecision)
}

func TestEncodeGeohashKnownCells(t *testing.T) {
	hash, err := EncodeGeohash(45.5, -122.7, 5)
	require.NoError(t, err)
	assert.Equal(t, "c20dz", hash)

	hash, err = EncodeGeohash(34.0522, -118.2437, 5)
	require.NoError(t, err)
	assert.Equal(t, "9q5ct", hash)
}

func TestEncodeGeohashPrefixProperty(t *testing.T) {
	short, err := EncodeGeohash(45.5, -122.7, 5)
	require.NoError(t, err)

	long, err := EncodeGeohash(45.5, -122.7, 8)
	require.NoError(t, err)

	assert.Equal(t, "c20dzgh8", long)
	assert.True(t, strings.HasPrefix(long, short))
}

func TestEncodeGeohashRejectsBadInput(t *testing.T) {
	_, err := EncodeGeohash(45.5, -122.7, 0)
	assert.Error(t, err)

	_, err = EncodeGeohash(91, 0, 5)
	assert.Error(t, err)

	_, err = EncodeGeohash(0, -181, 5)
	assert.Error(t, err)
}

func TestPrefixRange(t *testing.T) {
	tests := []struct {
		prefix string
		lower  string
		upper  string
	}{
		{"9q5c", "9q5c", "9q5d"},
		{"dr", "dr", "ds"},
		// '9' is followed by 'b' in the geohash alphabet, not ':'.
		{"9", "9", "b"},
		// A trailing 'z' carries into the previous position.
		{"c20dz", "c20dz", "c20e"},
		{"bz", "bz", "c"},
	}

	for _, tt := range tests {
		lower, upper, err := PrefixRange(tt.prefix)
		require.NoError(t, err, tt.prefix)
		assert.Equal(t, tt.lower, lower, tt.prefix)
		assert.Equal(t, tt.upper, upper, tt.prefix)
	}
}

func TestPrefixRangeUnboundedAbove(t *testing.T) {
	lower, upper, err := PrefixRange("zz")
	require.NoError(t, err)
	assert.Equal(t, "zz", lower)
	assert.Empty(t, upper)
}

func TestPrefixRangeRejectsInvalidPrefix(t *testing.T) {
	_, _, err := PrefixRange("")
	assert.Error(t, err)

	// 'a' is not part of the geohash alphabet.
	_, _, err = PrefixRange("9a")
	assert.Error(t, err)
}

func TestPrefixRangeCoversEncodedHashes(t *testing.T) {
	hash, err := EncodeGeohash(45.5, -122.7, 8)
	require.NoError(t, err)

	lower, upper, err := PrefixRange("c20dz")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, hash, lower)
	assert.Less(t, hash, upper)

	other, err := EncodeGeohash(34.0522, -118.2437, 8)
	require.NoError(t, err)
	assert.False(t, other >= lower && other < upper)
}
