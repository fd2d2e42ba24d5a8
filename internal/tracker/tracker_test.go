package tracker

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"backend-runbarbie/internal/runs"
	"backend-runbarbie/internal/settings"
	"backend-runbarbie/internal/shared/geo"

	"go.uber.org/goleak"
)

var errNetwork = errors.New("network down")

type fakeProvider struct {
	mu      sync.Mutex
	err     error
	opts    WatchOptions
	handler func(geo.Coordinate)
	stopped bool
}

func (p *fakeProvider) Watch(_ context.Context, opts WatchOptions, handler func(geo.Coordinate)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.opts = opts
	p.handler = handler
	p.stopped = false
	return func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
	}, nil
}

func (p *fakeProvider) emit(c geo.Coordinate) {
	p.mu.Lock()
	h, stopped := p.handler, p.stopped
	p.mu.Unlock()
	if h != nil && !stopped {
		h(c)
	}
}

func (p *fakeProvider) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type endCall struct {
	runID    string
	km       float64
	duration int64
}

type fakeAPI struct {
	mu        sync.Mutex
	startErr  error
	updateErr error
	block     bool
	starts    []runs.StartRequest
	updates   []geo.Coordinate
	ends      []endCall
	updated   chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updated: make(chan struct{}, 16)}
}

func (a *fakeAPI) Start(_ context.Context, req runs.StartRequest) (runs.StartResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts = append(a.starts, req)
	if a.startErr != nil {
		return runs.StartResponse{}, a.startErr
	}
	return runs.StartResponse{RunID: "run-1", StartedAt: time.Date(2024, 5, 1, 6, 30, 0, 0, time.UTC)}, nil
}

func (a *fakeAPI) UpdateLocation(ctx context.Context, _ string, at geo.Coordinate) error {
	a.mu.Lock()
	block, err := a.block, a.updateErr
	a.updates = append(a.updates, at)
	a.mu.Unlock()
	a.updated <- struct{}{}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (a *fakeAPI) End(_ context.Context, runID string, km float64, duration int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ends = append(a.ends, endCall{runID: runID, km: km, duration: duration})
	return nil
}

func (a *fakeAPI) waitUpdates(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-a.updated:
		case <-time.After(time.Second):
			t.Fatalf("expected %d location updates, got %d", n, i)
		}
	}
}

func TestStartSubscribesBalancedTenMeters(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeProvider{}
	api := newFakeAPI()
	tr := New(api, provider, nil)

	resp, err := tr.Start(context.Background(), StartOptions{EmergencyContact: "+15550100"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop()
	if resp.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", resp.RunID)
	}
	if provider.opts.Accuracy != AccuracyBalanced || provider.opts.DistanceIntervalM != 10 {
		t.Fatalf("unexpected watch options %+v", provider.opts)
	}
	if len(api.starts) != 1 || api.starts[0].EmergencyContact != "+15550100" {
		t.Fatalf("unexpected start calls %+v", api.starts)
	}
	if _, err := tr.Start(context.Background(), StartOptions{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected already running, got %v", err)
	}
}

func TestPermissionDeniedFailsBeforeServerCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeProvider{err: ErrPermissionDenied}
	api := newFakeAPI()
	tr := New(api, provider, nil)

	if _, err := tr.Start(context.Background(), StartOptions{}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if len(api.starts) != 0 {
		t.Fatalf("no run may be created without permission")
	}
	if tr.Snapshot().Running {
		t.Fatalf("tracker must stay idle")
	}

	provider.err = nil
	if _, err := tr.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("start after grant: %v", err)
	}
	tr.Stop()
}

func TestServerFailureStopsSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeProvider{}
	api := newFakeAPI()
	api.startErr = errNetwork
	tr := New(api, provider, nil)

	if _, err := tr.Start(context.Background(), StartOptions{}); !errors.Is(err, errNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !provider.isStopped() {
		t.Fatalf("subscription must be torn down")
	}
	if tr.Snapshot().Running {
		t.Fatalf("tracker must stay idle")
	}
}

func TestSamplesAccumulateAndForwardWhenSharing(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeProvider{}
	api := newFakeAPI()
	api.updateErr = errNetwork
	tr := New(api, provider, nil)

	if _, err := tr.Start(context.Background(), StartOptions{ShareLiveLocation: true}); err != nil {
		t.Fatalf("start: %v", err)
	}
	points := []geo.Coordinate{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0, Lng: 0.02}}
	for _, p := range points {
		provider.emit(p)
	}
	provider.emit(geo.Coordinate{Lat: 200, Lng: 0})
	api.waitUpdates(t, len(points))

	snap := tr.Snapshot()
	want := geo.Distance(points[0], points[1]) + geo.Distance(points[1], points[2])
	if snap.Points != 3 || math.Abs(snap.DistanceKm-want) > 1e-9 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Last == nil || *snap.Last != points[2] {
		t.Fatalf("unexpected last %+v", snap.Last)
	}
	tr.Stop()

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.updates) != 3 {
		t.Fatalf("failed updates must not be retried, got %d calls", len(api.updates))
	}
}

func TestPrivateRunDoesNotForward(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeProvider{}
	api := newFakeAPI()
	tr := New(api, provider, nil)

	if _, err := tr.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	provider.emit(geo.Coordinate{Lat: 1, Lng: 1})
	tr.Stop()

	if len(api.updates) != 0 {
		t.Fatalf("private run forwarded %d updates", len(api.updates))
	}
	if tr.Snapshot().Points != 1 {
		t.Fatalf("sample should still be recorded locally")
	}
}

func TestStopCancelsInFlightUpdates(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeProvider{}
	api := newFakeAPI()
	api.block = true
	tr := New(api, provider, nil, WithUpdateTimeout(time.Minute))

	if _, err := tr.Start(context.Background(), StartOptions{ShareLiveLocation: true}); err != nil {
		t.Fatalf("start: %v", err)
	}
	provider.emit(geo.Coordinate{Lat: 1, Lng: 1})
	api.waitUpdates(t, 1)

	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stop blocked on an in-flight update")
	}
	if !provider.isStopped() {
		t.Fatalf("subscription must be torn down")
	}
	provider.emit(geo.Coordinate{Lat: 2, Lng: 2})
	if tr.Snapshot().Points != 1 {
		t.Fatalf("samples after stop must be ignored")
	}
}

func TestEndSendsLocalTotals(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeProvider{}
	api := newFakeAPI()
	tr := New(api, provider, nil, WithTickInterval(5*time.Millisecond))

	if _, err := tr.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	provider.emit(geo.Coordinate{Lat: 0, Lng: 0})
	provider.emit(geo.Coordinate{Lat: 0, Lng: 0.05})

	deadline := time.Now().Add(time.Second)
	for tr.Snapshot().DurationSeconds < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("duration ticker did not advance")
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap, err := tr.End(context.Background())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(api.ends) != 1 {
		t.Fatalf("expected one end call, got %d", len(api.ends))
	}
	call := api.ends[0]
	if call.runID != "run-1" || call.km != snap.DistanceKm || call.duration != snap.DurationSeconds {
		t.Fatalf("end call %+v does not match snapshot %+v", call, snap)
	}
	if snap.Running {
		t.Fatalf("tracker still running after end")
	}

	after := tr.Snapshot().DurationSeconds
	time.Sleep(20 * time.Millisecond)
	if tr.Snapshot().DurationSeconds != after {
		t.Fatalf("ticker kept running after end")
	}
	if _, err := tr.End(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected not running, got %v", err)
	}
}

func TestRestartResetsTotals(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeProvider{}
	tr := New(newFakeAPI(), provider, nil)

	if _, err := tr.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	provider.emit(geo.Coordinate{Lat: 0, Lng: 0})
	provider.emit(geo.Coordinate{Lat: 1, Lng: 0})
	tr.Stop()

	if _, err := tr.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer tr.Stop()
	snap := tr.Snapshot()
	if snap.DistanceKm != 0 || snap.Points != 0 || snap.Last != nil || len(tr.Path()) != 0 {
		t.Fatalf("expected fresh totals, got %+v", snap)
	}
}

func TestOptionsFromSettings(t *testing.T) {
	opts := OptionsFrom(settings.Settings{ShareLiveLocation: true, EmergencyContact: "+15550100"})
	if !opts.ShareLiveLocation || opts.EmergencyContact != "+15550100" {
		t.Fatalf("unexpected options %+v", opts)
	}
}
