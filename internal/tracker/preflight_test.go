package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"backend-runbarbie/internal/shared/geo"
)

type weatherFunc func(context.Context, geo.Coordinate) (Weather, error)

func (f weatherFunc) Current(ctx context.Context, at geo.Coordinate) (Weather, error) {
	return f(ctx, at)
}

type placesFunc func(context.Context, geo.Coordinate, float64) ([]Place, error)

func (f placesFunc) Nearby(ctx context.Context, at geo.Coordinate, radiusKm float64) ([]Place, error) {
	return f(ctx, at, radiusKm)
}

func TestHeatAdvisoryThresholds(t *testing.T) {
	cases := []struct {
		name string
		w    Weather
		warn bool
	}{
		{"mild", Weather{TemperatureC: 24, UVIndex: 5}, false},
		{"just below", Weather{TemperatureC: 31.9, UVIndex: 7.9}, false},
		{"hot", Weather{TemperatureC: 32, UVIndex: 2}, true},
		{"high uv", Weather{TemperatureC: 20, UVIndex: 8}, true},
		{"both", Weather{TemperatureC: 38, UVIndex: 11}, true},
	}
	for _, tc := range cases {
		got := HeatAdvisory(tc.w)
		if (got != "") != tc.warn {
			t.Fatalf("%s: warn=%v, got %q", tc.name, tc.warn, got)
		}
	}
	if msg := HeatAdvisory(Weather{TemperatureC: 38, UVIndex: 11}); !strings.Contains(msg, "38°C") || !strings.Contains(msg, "UV index is 11") {
		t.Fatalf("advisory should name both conditions: %q", msg)
	}
}

func TestAdvisoryLooksUpWeather(t *testing.T) {
	here := geo.Coordinate{Lat: 1.29, Lng: 103.85}
	p := NewPreflight(weatherFunc(func(_ context.Context, at geo.Coordinate) (Weather, error) {
		if at != here {
			t.Fatalf("unexpected lookup position %+v", at)
		}
		return Weather{TemperatureC: 33}, nil
	}), nil)

	msg, err := p.Advisory(context.Background(), here)
	if err != nil || msg == "" {
		t.Fatalf("expected advisory, got %q, %v", msg, err)
	}

	boom := errors.New("weather api down")
	p = NewPreflight(weatherFunc(func(context.Context, geo.Coordinate) (Weather, error) {
		return Weather{}, boom
	}), nil)
	if _, err := p.Advisory(context.Background(), here); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestSuggestSafeRoutesSortsAndFilters(t *testing.T) {
	here := geo.Coordinate{Lat: 0, Lng: 0}
	p := NewPreflight(nil, placesFunc(func(_ context.Context, _ geo.Coordinate, radius float64) ([]Place, error) {
		if radius != 5 {
			t.Fatalf("unexpected radius %v", radius)
		}
		return []Place{
			{Name: "far park", Location: geo.Coordinate{Lat: 0, Lng: 0.04}},
			{Name: "outside", Location: geo.Coordinate{Lat: 0, Lng: 0.2}},
			{Name: "track", Location: geo.Coordinate{Lat: 0.01, Lng: 0}},
			{Name: "river path", Location: geo.Coordinate{Lat: 0, Lng: 0.02}},
		}, nil
	}))

	got, err := p.SuggestSafeRoutes(context.Background(), here, 5)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	names := make([]string, len(got))
	for i, place := range got {
		names[i] = place.Name
	}
	if strings.Join(names, ",") != "track,river path,far park" {
		t.Fatalf("unexpected order %v", names)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].DistanceKm > got[i].DistanceKm {
			t.Fatalf("distances not ascending: %+v", got)
		}
	}
}

func TestSuggestSafeRoutesError(t *testing.T) {
	boom := errors.New("places api down")
	p := NewPreflight(nil, placesFunc(func(context.Context, geo.Coordinate, float64) ([]Place, error) {
		return nil, boom
	}))
	if _, err := p.SuggestSafeRoutes(context.Background(), geo.Coordinate{}, 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
