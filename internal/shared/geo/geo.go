package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether c is a finite point inside the lat/lng ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// HaversineKm returns the great-circle distance between two points on a
// sphere of Earth's mean radius.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a slightly past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func Distance(a, b Coordinate) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Accumulator keeps a running distance over a stream of samples. It does
// not smooth GPS jitter, so a stationary device still accrues noise.
type Accumulator struct {
	last    Coordinate
	hasLast bool
	totalKm float64
}

// Add records a sample and returns the distance it contributed. The first
// sample contributes zero.
func (a *Accumulator) Add(c Coordinate) float64 {
	if !a.hasLast {
		a.last, a.hasLast = c, true
		return 0
	}
	delta := Distance(a.last, c)
	a.totalKm += delta
	a.last = c
	return delta
}

func (a *Accumulator) TotalKm() float64 { return a.totalKm }

func (a *Accumulator) Last() (Coordinate, bool) { return a.last, a.hasLast }

type Unit string

const (
	Kilometers Unit = "km"
	Miles      Unit = "mi"
)

const kmPerMile = 1.609344

// FormatDistance renders km in the preferred unit with two decimals.
// Unknown units fall back to kilometers.
func FormatDistance(km float64, unit Unit) string {
	if unit == Miles {
		return fmt.Sprintf("%.2f mi", km/kmPerMile)
	}
	return fmt.Sprintf("%.2f km", km)
}

// FormatDuration renders seconds as MM:SS, or HH:MM:SS past an hour.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
