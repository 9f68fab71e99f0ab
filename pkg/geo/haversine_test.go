package geo

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name             string
		lat1, lon1       float64
		lat2, lon2       float64
		wantMeters       float64
		tolerancePercent float64
	}{
		{
			name: "MG Road to Koramangala",
			lat1: 12.9756, lon1: 77.6050,
			lat2: 12.9352, lon2: 77.6245,
			wantMeters:       4_960,
			tolerancePercent: 2,
		},
		{
			name: "Same point",
			lat1: 12.9716, lon1: 77.5946,
			lat2: 12.9716, lon2: 77.5946,
			wantMeters:       0,
			tolerancePercent: 0,
		},
		{
			name: "London to Paris",
			lat1: 51.5074, lon1: -0.1278,
			lat2: 48.8566, lon2: 2.3522,
			wantMeters:       343_500,
			tolerancePercent: 1,
		},
		{
			name: "One kilometer north",
			lat1: 0, lon1: 0,
			lat2: 0.008993216, lon2: 0,
			wantMeters:       1_000,
			tolerancePercent: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if tt.wantMeters == 0 {
				if got != 0 {
					t.Errorf("expected 0, got %f", got)
				}
				return
			}
			diff := math.Abs(got-tt.wantMeters) / tt.wantMeters * 100
			if diff > tt.tolerancePercent {
				t.Errorf("Haversine = %f m, want ~%f m (diff %.1f%%)", got, tt.wantMeters, diff)
			}
		})
	}
}

func TestEquirectangularDist(t *testing.T) {
	lat1, lon1 := 12.9716, 77.5946
	lat2, lon2 := 12.9800, 77.6050

	h := Haversine(lat1, lon1, lat2, lon2)
	e := EquirectangularDist(lat1, lon1, lat2, lon2)

	diffPercent := math.Abs(h-e) / h * 100
	if diffPercent > 0.5 {
		t.Errorf("EquirectangularDist differs from Haversine by %.2f%% (haversine=%f, equirect=%f)", diffPercent, h, e)
	}
}

func TestPointToSegmentDist(t *testing.T) {
	tests := []struct {
		name       string
		pLat, pLon float64
		aLat, aLon float64
		bLat, bLon float64
		wantRatio  float64
		maxDistM   float64
	}{
		{
			name: "Point at start of segment",
			pLat: 12.97, pLon: 77.59,
			aLat: 12.97, aLon: 77.59,
			bLat: 12.98, bLon: 77.59,
			wantRatio: 0.0,
			maxDistM:  1,
		},
		{
			name: "Point at end of segment",
			pLat: 12.98, pLon: 77.59,
			aLat: 12.97, aLon: 77.59,
			bLat: 12.98, bLon: 77.59,
			wantRatio: 1.0,
			maxDistM:  1,
		},
		{
			name: "Point beside the middle",
			pLat: 12.975, pLon: 77.591,
			aLat: 12.97, aLon: 77.59,
			bLat: 12.98, bLon: 77.59,
			wantRatio: 0.5,
			maxDistM:  120,
		},
		{
			name: "Degenerate segment",
			pLat: 12.97, pLon: 77.591,
			aLat: 12.97, aLon: 77.59,
			bLat: 12.97, bLon: 77.59,
			wantRatio: 0.0,
			maxDistM:  120,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, ratio := PointToSegmentDist(tt.pLat, tt.pLon, tt.aLat, tt.aLon, tt.bLat, tt.bLon)
			if dist > tt.maxDistM {
				t.Errorf("dist = %f m, want <= %f m", dist, tt.maxDistM)
			}
			if math.Abs(ratio-tt.wantRatio) > 0.05 {
				t.Errorf("ratio = %f, want ~%f", ratio, tt.wantRatio)
			}
		})
	}
}

func TestMetersToDegrees(t *testing.T) {
	dLat, dLng := MetersToDegrees(0, 1000)
	if math.Abs(dLat-0.008993) > 1e-5 || math.Abs(dLng-dLat) > 1e-9 {
		t.Errorf("equator: dLat=%f dLng=%f", dLat, dLng)
	}

	_, dLng = MetersToDegrees(60, 1000)
	if math.Abs(dLng-2*dLat) > 1e-5 {
		t.Errorf("60N: dLng=%f, want ~%f", dLng, 2*dLat)
	}

	_, dLng = MetersToDegrees(90, 1000)
	if dLng != 360 {
		t.Errorf("pole: dLng=%f, want 360", dLng)
	}
}

func BenchmarkHaversine(b *testing.B) {
	for b.Loop() {
		Haversine(12.9716, 77.5946, 12.9352, 77.6245)
	}
}
