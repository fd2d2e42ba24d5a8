package places

import "time"

type Kind string

const (
	KindPark  Kind = "park"
	KindTrack Kind = "track"
	KindTrail Kind = "trail"
	KindPath  Kind = "path"
)

// Place is a runner-submitted spot considered safe to run. DistanceKm is only
// set on search results.
type Place struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Lit        bool      `json:"lit"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
	DistanceKm float64   `json:"distanceKm,omitempty"`
}

type CreateRequest struct {
	Name string   `json:"name"`
	Kind Kind     `json:"kind"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
	Lit  bool     `json:"lit"`
}
