package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend-runbarbie/internal/db"
	"backend-runbarbie/internal/logger"
	"backend-runbarbie/internal/shared/geo"
	"backend-runbarbie/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound covers a missing run, a run owned by someone else and a run
// that already ended. Callers cannot tell these apart.
var ErrNotFound = errors.New("no active run found")

const (
	// PathCap is the number of path points kept per run. Appending beyond
	// it drops the oldest points first.
	PathCap = 500

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100

	LocationUnavailable = "Location unavailable"
)

// UserDirectory resolves the display name sent back with an SOS.
type UserDirectory interface {
	Username(ctx context.Context, userID string) (string, error)
}

type Service struct {
	db           db.Querier
	pub          stream.Publisher
	users        UserDirectory
	log          *logger.Logger
	now          func() time.Time
	historyLimit int
}

func NewService(q db.Querier, pub stream.Publisher, users UserDirectory, log *logger.Logger) *Service {
	return &Service{
		db:           q,
		pub:          pub,
		users:        users,
		log:          logger.OrNop(log).With("component", "runs"),
		now:          time.Now,
		historyLimit: DefaultHistoryLimit,
	}
}

// SetDefaultHistoryLimit changes the page size used when History is called
// without a limit.
func (s *Service) SetDefaultHistoryLimit(n int) {
	s.historyLimit = ClampLimit(n, DefaultHistoryLimit)
}

// Start closes every open run of userID and opens a new one. The per-user
// advisory lock serializes concurrent starts so only one run stays open.
func (s *Service) Start(ctx context.Context, userID string, req StartRequest) (StartResponse, error) {
	resp := StartResponse{RunID: uuid.NewString(), StartedAt: s.now().UTC()}

	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
			return fmt.Errorf("lock runs: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE run_sessions SET ended_at=$2
			WHERE user_id=$1 AND ended_at IS NULL
		`, userID, resp.StartedAt)
		if err != nil {
			return fmt.Errorf("close open runs: %w", err)
		}
		if tag.RowsAffected() > 0 {
			s.log.Info("closed stale runs", "user_id", userID, "count", tag.RowsAffected())
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO run_sessions (id, user_id, started_at, share_live_location, emergency_contact)
			VALUES ($1,$2,$3,$4,$5)
		`, resp.RunID, userID, resp.StartedAt, req.ShareLiveLocation, req.EmergencyContact); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
	if err != nil {
		return StartResponse{}, err
	}
	return resp, nil
}

// UpdateLocation appends a point to the open run and overwrites its last
// location. Shared runs publish a live-location event after commit.
func (s *Service) UpdateLocation(ctx context.Context, userID, runID string, c geo.Coordinate) error {
	_, err := stream.WriteThrough(ctx, s.pub, func(ctx context.Context) (LastLocation, []stream.Event, error) {
		last := LastLocation{Lat: c.Lat, Lng: c.Lng, UpdatedAt: s.now().UTC()}
		var shared bool

		err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
			var raw []byte
			err := tx.QueryRow(ctx, `
				SELECT path, share_live_location FROM run_sessions
				WHERE id=$1 AND user_id=$2 AND ended_at IS NULL
				FOR UPDATE
			`, runID, userID).Scan(&raw, &shared)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("load run: %w", err)
			}

			path, err := decodePath(raw)
			if err != nil {
				return err
			}
			path = TrimPath(append(path, PathPoint{Lat: c.Lat, Lng: c.Lng, Timestamp: last.UpdatedAt}), PathCap)

			pathJSON, err := json.Marshal(path)
			if err != nil {
				return err
			}
			lastJSON, err := json.Marshal(last)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE run_sessions SET path=$3, last_location=$4
				WHERE id=$1 AND user_id=$2
			`, runID, userID, pathJSON, lastJSON); err != nil {
				return fmt.Errorf("save location: %w", err)
			}
			return nil
		})
		if err != nil {
			return LastLocation{}, nil, err
		}

		var events []stream.Event
		if shared {
			events = append(events, stream.Event{
				Name: stream.EventLiveLocation,
				Room: stream.LiveRoom(userID),
				Data: LiveLocationEvent{UserID: userID, RunID: runID, Lat: last.Lat, Lng: last.Lng, UpdatedAt: last.UpdatedAt},
			})
		}
		return last, events, nil
	})
	return err
}

// End closes the run with the totals computed on the device.
func (s *Service) End(ctx context.Context, userID, runID string, distanceKm float64, durationSeconds int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE run_sessions SET ended_at=$3, distance_km=$4, duration_seconds=$5
		WHERE id=$1 AND user_id=$2 AND ended_at IS NULL
	`, runID, userID, s.now().UTC(), distanceKm, durationSeconds)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TriggerSOS stamps sos_triggered_at on every call and returns the contact
// and best known position of the runner.
func (s *Service) TriggerSOS(ctx context.Context, userID, runID string) (SOSResponse, error) {
	return stream.WriteThrough(ctx, s.pub, func(ctx context.Context) (SOSResponse, []stream.Event, error) {
		triggeredAt := s.now().UTC()

		var (
			contact string
			lastRaw []byte
			pathRaw []byte
		)
		err := s.db.QueryRow(ctx, `
			UPDATE run_sessions SET sos_triggered_at=$3
			WHERE id=$1 AND user_id=$2 AND ended_at IS NULL
			RETURNING emergency_contact, last_location, path
		`, runID, userID, triggeredAt).Scan(&contact, &lastRaw, &pathRaw)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return SOSResponse{}, nil, ErrNotFound
			}
			return SOSResponse{}, nil, fmt.Errorf("trigger sos: %w", err)
		}

		loc, err := sosLocation(lastRaw, pathRaw)
		if err != nil {
			return SOSResponse{}, nil, err
		}

		resp := SOSResponse{
			OK:               true,
			EmergencyContact: contact,
			Location:         loc,
			MapsURL:          MapsURL(loc),
		}
		if s.users != nil {
			name, err := s.users.Username(ctx, userID)
			if err != nil {
				s.log.Warn("sos username lookup failed", "user_id", userID, "error", err)
			}
			resp.Username = name
		}
		s.log.Warn("sos triggered", "user_id", userID, "run_id", runID, "has_location", loc != nil)

		events := []stream.Event{{
			Name: stream.EventSOSTriggered,
			Room: stream.UserRoom(userID),
			Data: SOSEvent{RunID: runID, Location: loc, MapsURL: resp.MapsURL, TriggeredAt: triggeredAt},
		}}
		return resp, events, nil
	})
}

// History lists ended runs of userID, most recently ended first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	limit = ClampLimit(limit, s.historyLimit)

	rows, err := s.db.Query(ctx, `
		SELECT id, started_at, ended_at, distance_km, duration_seconds, path, sos_triggered_at
		FROM run_sessions
		WHERE user_id=$1 AND ended_at IS NOT NULL
		ORDER BY ended_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e   HistoryEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.StartedAt, &e.EndedAt, &e.DistanceKm, &e.DurationSeconds, &raw, &e.SOSTriggeredAt); err != nil {
			return nil, err
		}
		if e.Path, err = decodePath(raw); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LiveLocation reports the open, shared run of targetUserID. Any other state
// yields {active:false} so callers learn nothing about unshared runs.
func (s *Service) LiveLocation(ctx context.Context, targetUserID string) (LiveLocationResponse, error) {
	var (
		startedAt time.Time
		raw       []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT started_at, last_location FROM run_sessions
		WHERE user_id=$1 AND ended_at IS NULL AND share_live_location
		ORDER BY started_at DESC
		LIMIT 1
	`, targetUserID).Scan(&startedAt, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LiveLocationResponse{}, nil
		}
		return LiveLocationResponse{}, fmt.Errorf("query live location: %w", err)
	}

	last, err := decodeLast(raw)
	if err != nil {
		return LiveLocationResponse{}, err
	}
	if last == nil {
		return LiveLocationResponse{}, nil
	}
	return LiveLocationResponse{
		Active:    true,
		Lat:       &last.Lat,
		Lng:       &last.Lng,
		UpdatedAt: &last.UpdatedAt,
		StartedAt: &startedAt,
	}, nil
}

// TrimPath keeps the newest max points of path and drops the rest from the
// front. The returned slice does not alias the dropped prefix.
func TrimPath(path []PathPoint, max int) []PathPoint {
	if max <= 0 {
		return []PathPoint{}
	}
	if len(path) <= max {
		return path
	}
	kept := make([]PathPoint, max)
	copy(kept, path[len(path)-max:])
	return kept
}

// ClampLimit applies def to non-positive limits and caps at MaxHistoryLimit.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return limit
}

// MapsURL links to loc on Google Maps, or returns LocationUnavailable.
func MapsURL(loc *geo.Coordinate) string {
	if loc == nil {
		return LocationUnavailable
	}
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v", loc.Lat, loc.Lng)
}

func sosLocation(lastRaw, pathRaw []byte) (*geo.Coordinate, error) {
	last, err := decodeLast(lastRaw)
	if err != nil {
		return nil, err
	}
	if last != nil {
		return &geo.Coordinate{Lat: last.Lat, Lng: last.Lng}, nil
	}
	path, err := decodePath(pathRaw)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, nil
	}
	p := path[len(path)-1]
	return &geo.Coordinate{Lat: p.Lat, Lng: p.Lng}, nil
}

func decodePath(raw []byte) ([]PathPoint, error) {
	path := []PathPoint{}
	if len(raw) == 0 {
		return path, nil
	}
	if err := json.Unmarshal(raw, &path); err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}
	if path == nil {
		path = []PathPoint{}
	}
	return path, nil
}

func decodeLast(raw []byte) (*LastLocation, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var last LastLocation
	if err := json.Unmarshal(raw, &last); err != nil {
		return nil, fmt.Errorf("decode last location: %w", err)
	}
	return &last, nil
}
