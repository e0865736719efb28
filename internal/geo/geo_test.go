package geo

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		wantKm    float64
		tolerance float64
	}{
		{"same point", Point{52.52, 13.405}, Point{52.52, 13.405}, 0, 1e-9},
		{"berlin to hamburg", Point{52.52, 13.405}, Point{53.5511, 9.9937}, 255.2, 1.5},
		{"one degree latitude", Point{0, 0}, Point{1, 0}, 111.19, 0.1},
		{"equator quarter turn", Point{0, 0}, Point{0, 90}, 10007.5, 5},
		{"short hop ~111m", Point{48.0, 11.0}, Point{48.001, 11.0}, 0.11119, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %v, want %v ± %v", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKmSymmetry(t *testing.T) {
	a := Point{59.3293, 18.0686}
	b := Point{55.6761, 12.5683}
	if d1, d2 := DistanceKm(a, b), DistanceKm(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestBearingDeg(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		want      float64
		tolerance float64
	}{
		{"due north", Point{0, 0}, Point{1, 0}, 0, 0.01},
		{"due east", Point{0, 0}, Point{0, 1}, 90, 0.01},
		{"due south", Point{1, 0}, Point{0, 0}, 180, 0.01},
		{"due west", Point{0, 1}, Point{0, 0}, 270, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BearingDeg(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("BearingDeg() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"valid", Point{52.52, 13.405}, true},
		{"nan lat", Point{math.NaN(), 13.405}, false},
		{"inf lng", Point{52.52, math.Inf(1)}, false},
		{"lat out of range", Point{91, 0}, false},
		{"lng out of range", Point{0, -181}, false},
		{"poles", Point{-90, 180}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.p); got != tt.want {
				t.Errorf("IsValid(%+v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}
