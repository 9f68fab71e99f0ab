package geo

import (
	"errors"
	"math"
	"testing"
)

func TestCoordinateValidate(t *testing.T) {
	tests := []struct {
		name string
		c    Coordinate
		ok   bool
	}{
		{"valid", Coordinate{Lat: 12.97, Lng: 77.59}, true},
		{"poles and antimeridian", Coordinate{Lat: -90, Lng: 180}, true},
		{"lat too high", Coordinate{Lat: 91, Lng: 0}, false},
		{"lng too low", Coordinate{Lat: 0, Lng: -181}, false},
		{"NaN", Coordinate{Lat: math.NaN(), Lng: 0}, false},
		{"Inf", Coordinate{Lat: 0, Lng: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidCoordinate) {
				t.Errorf("Validate() = %v, want ErrInvalidCoordinate", err)
			}
		})
	}
}

func TestCoordinateBoxContainsRadius(t *testing.T) {
	c := Coordinate{Lat: 12.97, Lng: 77.59}
	minPt, maxPt := c.Box(500)

	north := Coordinate{Lat: maxPt[0], Lng: c.Lng}
	east := Coordinate{Lat: c.Lat, Lng: maxPt[1]}
	if d := c.DistanceTo(north); math.Abs(d-500) > 5 {
		t.Errorf("north edge at %f m, want ~500", d)
	}
	if d := c.DistanceTo(east); math.Abs(d-500) > 5 {
		t.Errorf("east edge at %f m, want ~500", d)
	}
	if minPt[0] >= c.Lat || minPt[1] >= c.Lng {
		t.Errorf("min corner %v not below %v", minPt, c)
	}
}

func TestMidpoint(t *testing.T) {
	m := Midpoint(Coordinate{Lat: 1, Lng: 2}, Coordinate{Lat: 3, Lng: 6})
	if m != (Coordinate{Lat: 2, Lng: 4}) {
		t.Errorf("Midpoint = %v", m)
	}
}
