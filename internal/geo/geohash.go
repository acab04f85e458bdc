package geo

import (
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"

	apperrors "github.com/bandmate/bandmate/internal/errors"
)

// DefaultGeohashPrecision is the cell size stored on location records.
// Five characters is roughly a 5km x 5km cell, coarse enough that nearby
// postal codes share prefixes.
const DefaultGeohashPrecision = 5

// geohashAlphabet is the standard geohash base-32 alphabet. It is
// ascending in code-point order but NOT contiguous (a, i, l and o are
// absent), so computing range bounds needs alphabet-aware increments
// rather than raw byte arithmetic.
const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash encodes a coordinate into a geohash of the given
// precision. Longer precisions refine the same cell, so the result at a
// shorter precision is always a prefix of the longer one.
func EncodeGeohash(lat, lng float64, precision int) (string, error) {
	if precision <= 0 {
		return "", apperrors.NewInvalidArgumentError("precision", "geohash precision must be positive")
	}
	if lat < -90 || lat > 90 {
		return "", apperrors.NewInvalidArgumentError("lat", "latitude must be within [-90, 90]")
	}
	if lng < -180 || lng > 180 {
		return "", apperrors.NewInvalidArgumentError("lng", "longitude must be within [-180, 180]")
	}
	return geohash.EncodeWithPrecision(lat, lng, precision), nil
}

// PrefixRange returns the half-open string range [lower, upper) covering
// every geohash that starts with prefix. An empty upper bound means the
// range is unbounded above (the prefix is entirely made of the last
// alphabet symbol). The upper bound increments within the geohash
// alphabet with carry, never with raw code-point arithmetic.
func PrefixRange(prefix string) (lower, upper string, err error) {
	if prefix == "" {
		return "", "", apperrors.NewInvalidArgumentError("geohashPrefix", "geohash prefix must not be empty")
	}
	for _, r := range prefix {
		if !strings.ContainsRune(geohashAlphabet, r) {
			return "", "", apperrors.NewInvalidArgumentError("geohashPrefix", "geohash prefix contains invalid characters")
		}
	}

	upperBytes := []byte(prefix)
	for i := len(upperBytes) - 1; i >= 0; i-- {
		idx := strings.IndexByte(geohashAlphabet, upperBytes[i])
		if idx < len(geohashAlphabet)-1 {
			upperBytes[i] = geohashAlphabet[idx+1]
			return prefix, string(upperBytes[:i+1]), nil
		}
		// Last symbol of the alphabet: carry into the previous position.
	}

	// All positions were 'z'; nothing sorts above the prefix range.
	return prefix, "", nil
}
