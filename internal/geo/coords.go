package geo

import "math"

// unsetEpsilon bounds the dead zone around (0, 0). Coordinates inside it
// are treated as never having been set, not as a point in the Gulf of
// Guinea.
const unsetEpsilon = 1e-6

// Coordinate is a latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsSet reports whether the coordinate carries real data.
func (c Coordinate) IsSet() bool {
	return math.Abs(c.Lat) >= unsetEpsilon || math.Abs(c.Lng) >= unsetEpsilon
}

// CoordsFromDocument extracts a coordinate pair from a stored location
// sub-document, tolerating both missing fields and the (0, 0) sentinel.
func CoordsFromDocument(loc interface{}) (Coordinate, bool) {
	m, ok := loc.(map[string]interface{})
	if !ok {
		return Coordinate{}, false
	}
	lat, latOK := m["lat"].(float64)
	lng, lngOK := m["lng"].(float64)
	if !latOK || !lngOK {
		return Coordinate{}, false
	}
	c := Coordinate{Lat: lat, Lng: lng}
	if !c.IsSet() {
		return Coordinate{}, false
	}
	return c, true
}
