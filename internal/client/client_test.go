package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"backend-runbarbie/internal/runs"
	"backend-runbarbie/internal/shared/geo"
	"backend-runbarbie/internal/tracker"

	"github.com/gofiber/fiber/v2"
)

type recorded struct {
	auth string
	body []byte
}

func newTestServer(t *testing.T, register func(app *fiber.App, seen chan<- recorded)) (string, <-chan recorded) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	seen := make(chan recorded, 8)
	register(app, seen)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String(), seen
}

func record(c *fiber.Ctx, seen chan<- recorded) {
	seen <- recorded{auth: c.Get(fiber.HeaderAuthorization), body: append([]byte(nil), c.Body()...)}
}

func TestStartSendsTokenAndDecodes(t *testing.T) {
	base, seen := newTestServer(t, func(app *fiber.App, seen chan<- recorded) {
		app.Post("/runs/start", func(c *fiber.Ctx) error {
			record(c, seen)
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{"runId": "run-1", "startedAt": "2024-05-01T06:30:00Z"})
		})
	})

	c := New(base + "/")
	c.SetToken("tok")
	resp, err := c.Start(context.Background(), runs.StartRequest{ShareLiveLocation: true, EmergencyContact: "+15550100"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if resp.RunID != "run-1" || !resp.StartedAt.Equal(time.Date(2024, 5, 1, 6, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected response %+v", resp)
	}

	got := <-seen
	if got.auth != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", got.auth)
	}
	if string(got.body) != `{"shareLiveLocation":true,"emergencyContact":"+15550100"}` {
		t.Fatalf("unexpected body %s", got.body)
	}
}

func TestUpdateLocationAndEnd(t *testing.T) {
	base, seen := newTestServer(t, func(app *fiber.App, seen chan<- recorded) {
		app.Patch("/runs/:id/location", func(c *fiber.Ctx) error {
			record(c, seen)
			return c.JSON(fiber.Map{"ok": true})
		})
		app.Patch("/runs/:id/end", func(c *fiber.Ctx) error {
			record(c, seen)
			return c.JSON(fiber.Map{"ok": true})
		})
	})

	c := New(base)
	if err := c.UpdateLocation(context.Background(), "run-1", geo.Coordinate{Lat: 1.5, Lng: 2.5}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := <-seen; string(got.body) != `{"lat":1.5,"lng":2.5}` {
		t.Fatalf("unexpected location body %s", got.body)
	}

	if err := c.End(context.Background(), "run-1", 5.2, 1800); err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := <-seen; string(got.body) != `{"distanceKm":5.2,"durationSeconds":1800}` {
		t.Fatalf("unexpected end body %s", got.body)
	}
}

func TestNotFoundIsAPIError(t *testing.T) {
	base, _ := newTestServer(t, func(app *fiber.App, _ chan<- recorded) {
		app.Post("/runs/:id/sos", func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active run found"})
		})
	})

	_, err := New(base).TriggerSOS(context.Background(), "gone")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "no active run found" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPlainErrorBody(t *testing.T) {
	base, _ := newTestServer(t, func(app *fiber.App, _ chan<- recorded) {
		app.Get("/runs/history", func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusBadGateway).SendString("upstream down")
		})
	})

	_, err := New(base).History(context.Background(), 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != fiber.StatusBadGateway || apiErr.Message != "upstream down" {
		t.Fatalf("unexpected error %v", err)
	}
	if IsNotFound(err) {
		t.Fatalf("502 is not a not-found")
	}
}

func TestHistoryAndLiveLocation(t *testing.T) {
	base, _ := newTestServer(t, func(app *fiber.App, _ chan<- recorded) {
		app.Get("/runs/history", func(c *fiber.Ctx) error {
			if c.Query("limit") != "5" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit"})
			}
			return c.JSON(fiber.Map{"runs": []fiber.Map{{"id": "run-1", "distanceKm": 5.2, "durationSeconds": 1800, "path": []fiber.Map{}}}})
		})
		app.Get("/runs/live/:userId", func(c *fiber.Ctx) error {
			if c.Params("userId") != "user-2" {
				return c.JSON(fiber.Map{"active": false})
			}
			return c.JSON(fiber.Map{"active": true, "lat": 1.0, "lng": 2.0})
		})
	})

	c := New(base)
	entries, err := c.History(context.Background(), 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "run-1" || entries[0].DurationSeconds != 1800 {
		t.Fatalf("unexpected entries %+v", entries)
	}

	live, err := c.LiveLocation(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	if !live.Active || live.Lat == nil || *live.Lat != 1.0 {
		t.Fatalf("unexpected live %+v", live)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New("http://127.0.0.1:1").UpdateLocation(ctx, "run-1", geo.Coordinate{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = New("http://"+addr).End(ctx, "run-1", 1, 1)
	if err == nil {
		t.Fatalf("expected transport error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("transport failures are not api errors")
	}
}

func TestBadBaseURL(t *testing.T) {
	if _, err := New("ftp://example.com").History(context.Background(), 0); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestNearbyFeedsPreflight(t *testing.T) {
	base, _ := newTestServer(t, func(app *fiber.App, _ chan<- recorded) {
		app.Get("/places/nearby", func(c *fiber.Ctx) error {
			if c.Query("lat") != "1.5" || c.Query("lng") != "2.5" || c.Query("radiusKm") != "3" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query"})
			}
			return c.JSON([]fiber.Map{
				{"id": "p-2", "name": "Park", "lat": 1.51, "lng": 2.5},
				{"id": "p-1", "name": "Track", "lat": 1.501, "lng": 2.5},
			})
		})
	})

	var _ tracker.PlacesProvider = (*Client)(nil)
	var _ tracker.RunAPI = (*Client)(nil)

	pre := tracker.NewPreflight(nil, New(base))
	got, err := pre.SuggestSafeRoutes(context.Background(), geo.Coordinate{Lat: 1.5, Lng: 2.5}, 3)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Track" || got[1].Name != "Park" {
		t.Fatalf("unexpected suggestions %+v", got)
	}
}
