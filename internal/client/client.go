// Package client talks to the run endpoints of the API on behalf of the
// phone-side tracker and SOS dispatcher.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"backend-runbarbie/internal/places"
	"backend-runbarbie/internal/runs"
	"backend-runbarbie/internal/shared/geo"
	"backend-runbarbie/internal/tracker"

	"github.com/gofiber/fiber/v2"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx response. Message is the server's "error" field, or
// the raw body when it did not send one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == fiber.StatusNotFound
}

type Client struct {
	baseURL string
	timeout time.Duration

	mu    sync.RWMutex
	token string
}

func New(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), timeout: defaultTimeout}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Start(ctx context.Context, req runs.StartRequest) (runs.StartResponse, error) {
	var out runs.StartResponse
	err := c.do(ctx, fiber.MethodPost, "/runs/start", req, &out)
	return out, err
}

func (c *Client) UpdateLocation(ctx context.Context, runID string, at geo.Coordinate) error {
	body := map[string]float64{"lat": at.Lat, "lng": at.Lng}
	return c.do(ctx, fiber.MethodPatch, "/runs/"+url.PathEscape(runID)+"/location", body, nil)
}

func (c *Client) End(ctx context.Context, runID string, distanceKm float64, durationSeconds int64) error {
	body := runs.EndRequest{DistanceKm: &distanceKm, DurationSeconds: &durationSeconds}
	return c.do(ctx, fiber.MethodPatch, "/runs/"+url.PathEscape(runID)+"/end", body, nil)
}

func (c *Client) TriggerSOS(ctx context.Context, runID string) (runs.SOSResponse, error) {
	var out runs.SOSResponse
	err := c.do(ctx, fiber.MethodPost, "/runs/"+url.PathEscape(runID)+"/sos", nil, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, limit int) ([]runs.HistoryEntry, error) {
	path := "/runs/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out runs.HistoryResponse
	err := c.do(ctx, fiber.MethodGet, path, nil, &out)
	return out.Runs, err
}

func (c *Client) LiveLocation(ctx context.Context, userID string) (runs.LiveLocationResponse, error) {
	var out runs.LiveLocationResponse
	err := c.do(ctx, fiber.MethodGet, "/runs/live/"+url.PathEscape(userID), nil, &out)
	return out, err
}

func (c *Client) NearbyPlaces(ctx context.Context, at geo.Coordinate, radiusKm float64) ([]places.Place, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(at.Lng, 'f', -1, 64))
	if radiusKm > 0 {
		q.Set("radiusKm", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	}
	var out []places.Place
	err := c.do(ctx, fiber.MethodGet, "/places/nearby?"+q.Encode(), nil, &out)
	return out, err
}

// Nearby lets the client serve as the tracker's places provider.
func (c *Client) Nearby(ctx context.Context, at geo.Coordinate, radiusKm float64) ([]tracker.Place, error) {
	found, err := c.NearbyPlaces(ctx, at, radiusKm)
	if err != nil {
		return nil, err
	}
	out := make([]tracker.Place, 0, len(found))
	for _, p := range found {
		out = append(out, tracker.Place{
			Name:       p.Name,
			Location:   geo.Coordinate{Lat: p.Lat, Lng: p.Lng},
			DistanceKm: p.DistanceKm,
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var agent *fiber.Agent
	target := c.baseURL + path
	switch method {
	case fiber.MethodGet:
		agent = fiber.Get(target)
	case fiber.MethodPost:
		agent = fiber.Post(target)
	case fiber.MethodPatch:
		agent = fiber.Patch(target)
	default:
		return fmt.Errorf("unsupported method %s", method)
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		agent.JSON(body)
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			fiber.ReleaseAgent(agent)
			return context.DeadlineExceeded
		}
	}
	agent.Timeout(timeout)

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return err
	}
	code, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(errs...))
	}

	if code < 200 || code >= 300 {
		return decodeError(code, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(code int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: code, Message: msg}
}
