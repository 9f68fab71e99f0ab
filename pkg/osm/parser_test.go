package osm

import (
	"testing"

	"github.com/paulmach/osm"
)

func TestIsWalkable(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{
			name: "residential road",
			tags: osm.Tags{{Key: "highway", Value: "residential"}},
			want: true,
		},
		{
			name: "footway",
			tags: osm.Tags{{Key: "highway", Value: "footway"}},
			want: true,
		},
		{
			name: "motorway",
			tags: osm.Tags{{Key: "highway", Value: "motorway"}},
			want: false,
		},
		{
			name: "cycleway without foot access",
			tags: osm.Tags{{Key: "highway", Value: "cycleway"}},
			want: false,
		},
		{
			name: "cycleway with foot=yes",
			tags: osm.Tags{
				{Key: "highway", Value: "cycleway"},
				{Key: "foot", Value: "yes"},
			},
			want: true,
		},
		{
			name: "private access",
			tags: osm.Tags{
				{Key: "highway", Value: "service"},
				{Key: "access", Value: "private"},
			},
			want: false,
		},
		{
			name: "private access but foot designated",
			tags: osm.Tags{
				{Key: "highway", Value: "service"},
				{Key: "access", Value: "private"},
				{Key: "foot", Value: "designated"},
			},
			want: true,
		},
		{
			name: "foot=no",
			tags: osm.Tags{
				{Key: "highway", Value: "primary"},
				{Key: "foot", Value: "no"},
			},
			want: false,
		},
		{
			name: "no highway tag",
			tags: osm.Tags{{Key: "name", Value: "Brigade Road"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWalkable(tt.tags); got != tt.want {
				t.Errorf("isWalkable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFootOneWay(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{"vehicle oneway ignored", osm.Tags{{Key: "oneway", Value: "yes"}}, false},
		{"oneway:foot=yes", osm.Tags{{Key: "oneway:foot", Value: "yes"}}, true},
		{"oneway:foot=no", osm.Tags{{Key: "oneway:foot", Value: "no"}}, false},
		{"untagged", osm.Tags{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isFootOneWay(tt.tags); got != tt.want {
				t.Errorf("isFootOneWay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBBox(t *testing.T) {
	var zero BBox
	if !zero.IsZero() {
		t.Error("zero BBox should report IsZero")
	}
	b := BBox{MinLat: 12.8, MaxLat: 13.1, MinLng: 77.4, MaxLng: 77.8}
	if !b.Contains(12.97, 77.59) {
		t.Error("central Bangalore should be inside")
	}
	if b.Contains(13.5, 77.59) {
		t.Error("point north of the box should be outside")
	}
}
