package runs

import (
	"time"

	"backend-runbarbie/internal/shared/geo"
)

type PathPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

type LastLocation struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Session is one row of run_sessions. EndedAt is nil while the run is open.
type Session struct {
	ID                string        `json:"id"`
	UserID            string        `json:"userId"`
	StartedAt         time.Time     `json:"startedAt"`
	EndedAt           *time.Time    `json:"endedAt"`
	DistanceKm        float64       `json:"distanceKm"`
	DurationSeconds   int64         `json:"durationSeconds"`
	Path              []PathPoint   `json:"path"`
	LastLocation      *LastLocation `json:"lastLocation"`
	ShareLiveLocation bool          `json:"shareLiveLocation"`
	EmergencyContact  string        `json:"emergencyContact"`
	SOSTriggeredAt    *time.Time    `json:"sosTriggeredAt"`
}

type StartRequest struct {
	ShareLiveLocation bool   `json:"shareLiveLocation"`
	EmergencyContact  string `json:"emergencyContact"`
}

type StartResponse struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
}

type LocationRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type EndRequest struct {
	DistanceKm      *float64 `json:"distanceKm"`
	DurationSeconds *int64   `json:"durationSeconds"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// SOSResponse carries what the phone needs to place the emergency call and
// text. Location is null and MapsURL is LocationUnavailable when the run has
// no recorded position.
type SOSResponse struct {
	OK               bool            `json:"ok"`
	EmergencyContact string          `json:"emergencyContact"`
	Location         *geo.Coordinate `json:"location"`
	MapsURL          string          `json:"mapsUrl"`
	Username         string          `json:"username"`
}

// HistoryEntry is the projection returned by History.
type HistoryEntry struct {
	ID              string      `json:"id"`
	StartedAt       time.Time   `json:"startedAt"`
	EndedAt         time.Time   `json:"endedAt"`
	DistanceKm      float64     `json:"distanceKm"`
	DurationSeconds int64       `json:"durationSeconds"`
	Path            []PathPoint `json:"path"`
	SOSTriggeredAt  *time.Time  `json:"sosTriggeredAt"`
}

// HistoryResponse is the body of GET /runs/history.
type HistoryResponse struct {
	Runs []HistoryEntry `json:"runs"`
}

type LiveLocationResponse struct {
	Active    bool       `json:"active"`
	Lat       *float64   `json:"lat,omitempty"`
	Lng       *float64   `json:"lng,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// LiveLocationEvent is the payload of the live-location realtime event.
type LiveLocationEvent struct {
	UserID    string    `json:"userId"`
	RunID     string    `json:"runId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SOSEvent is the payload of the sos-triggered realtime event.
type SOSEvent struct {
	RunID       string          `json:"runId"`
	Location    *geo.Coordinate `json:"location"`
	MapsURL     string          `json:"mapsUrl"`
	TriggeredAt time.Time       `json:"triggeredAt"`
}
