package geo

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestHaversineKm(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineKm(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineOneDegreeAtEquator(t *testing.T) {
	d := HaversineKm(0, 0, 0, 1)
	if math.Abs(d-111.19) > 0.01 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func genCoordinate(t *rapid.T, label string) Coordinate {
	return Coordinate{
		Lat: rapid.Float64Range(-90, 90).Draw(t, label+"-lat"),
		Lng: rapid.Float64Range(-180, 180).Draw(t, label+"-lng"),
	}
}

func TestHaversineProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genCoordinate(t, "a")
		b := genCoordinate(t, "b")

		if d := Distance(a, a); d != 0 {
			t.Fatalf("distance to self: %v", d)
		}
		ab, ba := Distance(a, b), Distance(b, a)
		if math.Abs(ab-ba) > 1e-9 {
			t.Fatalf("asymmetric: %v vs %v", ab, ba)
		}
		if ab < 0 || ab > math.Pi*earthRadiusKm+1e-6 {
			t.Fatalf("out of range: %v", ab)
		}
	})
}

func TestAccumulatorProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 50).Draw(t, "n")
		var acc Accumulator
		var points []Coordinate
		prevTotal := 0.0
		for i := 0; i < n; i++ {
			c := genCoordinate(t, "p")
			delta := acc.Add(c)
			if i == 0 && delta != 0 {
				t.Fatalf("first sample contributed %v", delta)
			}
			if acc.TotalKm() < prevTotal {
				t.Fatalf("total decreased: %v -> %v", prevTotal, acc.TotalKm())
			}
			prevTotal = acc.TotalKm()
			points = append(points, c)
		}

		want := 0.0
		for i := 1; i < len(points); i++ {
			want += Distance(points[i-1], points[i])
		}
		if math.Abs(want-acc.TotalKm()) > 1e-6 {
			t.Fatalf("total %v != pairwise sum %v", acc.TotalKm(), want)
		}
		last, ok := acc.Last()
		if !ok || last != points[len(points)-1] {
			t.Fatalf("unexpected last sample")
		}
	})
}

func TestCoordinateValid(t *testing.T) {
	cases := []struct {
		c    Coordinate
		want bool
	}{
		{Coordinate{40, -74}, true},
		{Coordinate{91, 0}, false},
		{Coordinate{0, -181}, false},
		{Coordinate{math.NaN(), 0}, false},
		{Coordinate{0, math.Inf(1)}, false},
	}
	for _, tc := range cases {
		if got := tc.c.Valid(); got != tc.want {
			t.Fatalf("%v: got %v want %v", tc.c, got, tc.want)
		}
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatDistance(5.2, Kilometers); got != "5.20 km" {
		t.Fatalf("km: %q", got)
	}
	if got := FormatDistance(1.609344, Miles); got != "1.00 mi" {
		t.Fatalf("mi: %q", got)
	}
	if got := FormatDuration(1800); got != "30:00" {
		t.Fatalf("duration: %q", got)
	}
	if got := FormatDuration(3725); got != "01:02:05" {
		t.Fatalf("duration: %q", got)
	}
	if got := FormatDuration(-5); got != "00:00" {
		t.Fatalf("duration: %q", got)
	}
}
