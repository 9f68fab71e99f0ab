package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned for non-finite or out-of-range coordinates.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Validate reports whether c is a finite, in-range position.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%w: must be finite numbers", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// DistanceTo returns the great-circle distance to o in meters.
func (c Coordinate) DistanceTo(o Coordinate) float64 {
	return Haversine(c.Lat, c.Lng, o.Lat, o.Lng)
}

// Midpoint returns the planar midpoint of c and o. Good enough for segments
// of a few kilometers, which is all a street network contains.
func Midpoint(c, o Coordinate) Coordinate {
	return Coordinate{Lat: (c.Lat + o.Lat) / 2, Lng: (c.Lng + o.Lng) / 2}
}

// Box returns the [lat, lng] min and max corners of the square of the given
// half-width in meters centered on c.
func (c Coordinate) Box(meters float64) (minPt, maxPt [2]float64) {
	dLat, dLng := MetersToDegrees(c.Lat, meters)
	return [2]float64{c.Lat - dLat, c.Lng - dLng}, [2]float64{c.Lat + dLat, c.Lng + dLng}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lng)
}
