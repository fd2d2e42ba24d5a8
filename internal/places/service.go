package places

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"backend-runbarbie/internal/db"
	"backend-runbarbie/internal/logger"
	"backend-runbarbie/internal/shared/geo"

	"github.com/google/uuid"
)

var (
	ErrNameRequired = errors.New("name required")
	ErrInvalidKind  = errors.New("invalid place kind")
	ErrInvalidPoint = errors.New("invalid coordinate")
)

const (
	DefaultRadiusKm = 5.0
	MaxRadiusKm     = 25.0
	kmPerDegreeLat  = 111.32
)

var kinds = map[Kind]bool{KindPark: true, KindTrack: true, KindTrail: true, KindPath: true}

type Service struct {
	db  db.Querier
	log *logger.Logger
	now func() time.Time
}

func NewService(q db.Querier, log *logger.Logger) *Service {
	return &Service{db: q, log: logger.OrNop(log).With("component", "places"), now: time.Now}
}

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (Place, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Place{}, ErrNameRequired
	}
	if req.Kind == "" {
		req.Kind = KindPath
	}
	if !kinds[req.Kind] {
		return Place{}, ErrInvalidKind
	}
	if req.Lat == nil || req.Lng == nil || !(geo.Coordinate{Lat: *req.Lat, Lng: *req.Lng}).Valid() {
		return Place{}, ErrInvalidPoint
	}

	p := Place{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      req.Kind,
		Lat:       *req.Lat,
		Lng:       *req.Lng,
		Lit:       req.Lit,
		CreatedBy: userID,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO places (id, name, kind, lat, lng, lit, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, p.Name, string(p.Kind), p.Lat, p.Lng, p.Lit, p.CreatedBy, p.CreatedAt)
	if err != nil {
		return Place{}, err
	}
	s.log.Info("place created", "place_id", p.ID, "user_id", userID)
	return p, nil
}

// ClampRadius applies the default to non-positive radii and caps the rest.
func ClampRadius(radiusKm float64) float64 {
	if radiusKm <= 0 || math.IsNaN(radiusKm) {
		return DefaultRadiusKm
	}
	return math.Min(radiusKm, MaxRadiusKm)
}

// Nearby returns places within radiusKm of here, closest first. The database
// narrows candidates to a bounding box; the exact cut uses haversine.
func (s *Service) Nearby(ctx context.Context, here geo.Coordinate, radiusKm float64) ([]Place, error) {
	if !here.Valid() {
		return nil, ErrInvalidPoint
	}
	radiusKm = ClampRadius(radiusKm)
	minLat, maxLat, minLng, maxLng := boundingBox(here, radiusKm)

	rows, err := s.db.Query(ctx, `
		SELECT id, name, kind, lat, lng, lit, created_by, created_at
		FROM places
		WHERE lat BETWEEN $1 AND $2 AND lng BETWEEN $3 AND $4
	`, minLat, maxLat, minLng, maxLng)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Place{}
	for rows.Next() {
		var (
			p    Place
			kind string
		)
		if err := rows.Scan(&p.ID, &p.Name, &kind, &p.Lat, &p.Lng, &p.Lit, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Kind = Kind(kind)
		p.DistanceKm = geo.Distance(here, geo.Coordinate{Lat: p.Lat, Lng: p.Lng})
		if p.DistanceKm > radiusKm {
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

// boundingBox does not wrap the antimeridian; near the poles or the date line
// it widens to the full longitude range.
func boundingBox(c geo.Coordinate, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radiusKm / kmPerDegreeLat
	minLat = math.Max(c.Lat-dLat, -90)
	maxLat = math.Min(c.Lat+dLat, 90)

	cosLat := math.Cos(c.Lat * math.Pi / 180)
	if cosLat < 0.01 {
		return minLat, maxLat, -180, 180
	}
	dLng := radiusKm / (kmPerDegreeLat * cosLat)
	minLng, maxLng = c.Lng-dLng, c.Lng+dLng
	if minLng < -180 || maxLng > 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLng, maxLng
}
