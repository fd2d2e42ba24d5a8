package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"backend-runbarbie/internal/shared/geo"
)

const (
	HeatThresholdC = 32.0
	UVThreshold    = 8.0
)

type Weather struct {
	TemperatureC float64
	UVIndex      float64
}

type WeatherProvider interface {
	Current(ctx context.Context, at geo.Coordinate) (Weather, error)
}

type Place struct {
	Name       string
	Location   geo.Coordinate
	DistanceKm float64
}

type PlacesProvider interface {
	Nearby(ctx context.Context, at geo.Coordinate, radiusKm float64) ([]Place, error)
}

// HeatAdvisory returns a warning for the runner, or "" when conditions are
// fine.
func HeatAdvisory(w Weather) string {
	var reasons []string
	if w.TemperatureC >= HeatThresholdC {
		reasons = append(reasons, fmt.Sprintf("temperature is %.0f°C", w.TemperatureC))
	}
	if w.UVIndex >= UVThreshold {
		reasons = append(reasons, fmt.Sprintf("UV index is %.0f", w.UVIndex))
	}
	if len(reasons) == 0 {
		return ""
	}
	return "Take care: " + strings.Join(reasons, " and ") + ". Hydrate and consider a shorter route."
}

type Preflight struct {
	weather WeatherProvider
	places  PlacesProvider
}

func NewPreflight(weather WeatherProvider, places PlacesProvider) *Preflight {
	return &Preflight{weather: weather, places: places}
}

// Advisory looks up the weather at here and returns HeatAdvisory for it.
func (p *Preflight) Advisory(ctx context.Context, here geo.Coordinate) (string, error) {
	w, err := p.weather.Current(ctx, here)
	if err != nil {
		return "", fmt.Errorf("weather lookup: %w", err)
	}
	return HeatAdvisory(w), nil
}

// SuggestSafeRoutes returns nearby places ordered by great-circle distance
// from here. Places beyond radiusKm are dropped whatever the provider sent.
func (p *Preflight) SuggestSafeRoutes(ctx context.Context, here geo.Coordinate, radiusKm float64) ([]Place, error) {
	found, err := p.places.Nearby(ctx, here, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("places lookup: %w", err)
	}
	out := make([]Place, 0, len(found))
	for _, place := range found {
		place.DistanceKm = geo.Distance(here, place.Location)
		if place.DistanceKm > radiusKm {
			continue
		}
		out = append(out, place)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}
