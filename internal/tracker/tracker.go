// Package tracker samples the runner's position during a run, keeps the
// local distance and duration totals, and mirrors the run to the API.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend-runbarbie/internal/logger"
	"backend-runbarbie/internal/runs"
	"backend-runbarbie/internal/settings"
	"backend-runbarbie/internal/shared/geo"
)

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrAlreadyRunning   = errors.New("a run is already being tracked")
	ErrNotRunning       = errors.New("no run is being tracked")
)

type Accuracy int

const (
	AccuracyLow Accuracy = iota
	AccuracyBalanced
	AccuracyHigh
)

// MovementThresholdM is the distance the runner must cover before the
// provider reports a new sample.
const MovementThresholdM = 10

const (
	defaultTick          = time.Second
	defaultUpdateTimeout = 10 * time.Second
)

type WatchOptions struct {
	Accuracy          Accuracy
	DistanceIntervalM float64
}

// LocationProvider is the platform location service. Watch returns
// ErrPermissionDenied when the user refused access. The returned stop func
// must not call back into the handler after it returns.
type LocationProvider interface {
	Watch(ctx context.Context, opts WatchOptions, handler func(geo.Coordinate)) (stop func(), err error)
}

// RunAPI is the subset of the REST client the tracker drives.
type RunAPI interface {
	Start(ctx context.Context, req runs.StartRequest) (runs.StartResponse, error)
	UpdateLocation(ctx context.Context, runID string, at geo.Coordinate) error
	End(ctx context.Context, runID string, distanceKm float64, durationSeconds int64) error
}

type StartOptions struct {
	ShareLiveLocation bool
	EmergencyContact  string
}

// OptionsFrom reads the run-start preferences from the local settings.
func OptionsFrom(s settings.Settings) StartOptions {
	return StartOptions{ShareLiveLocation: s.ShareLiveLocation, EmergencyContact: s.EmergencyContact}
}

type Snapshot struct {
	RunID           string
	Running         bool
	StartedAt       time.Time
	DurationSeconds int64
	DistanceKm      float64
	Points          int
	Last            *geo.Coordinate
}

type state int

const (
	stateIdle state = iota
	stateStarting
	stateRunning
)

type Tracker struct {
	api      RunAPI
	provider LocationProvider
	log      *logger.Logger

	tick          time.Duration
	updateTimeout time.Duration

	mu        sync.Mutex
	state     state
	runID     string
	startedAt time.Time
	share     bool
	ticks     int64
	acc       geo.Accumulator
	path      []geo.Coordinate
	runCtx    context.Context
	cancel    context.CancelFunc
	stopWatch func()
	wg        sync.WaitGroup
}

type Option func(*Tracker)

// WithTickInterval changes how often the duration counter advances. Each
// tick counts as one second.
func WithTickInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.tick = d
		}
	}
}

func WithUpdateTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.updateTimeout = d
		}
	}
}

func New(api RunAPI, provider LocationProvider, log *logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		api:           api,
		provider:      provider,
		log:           logger.OrNop(log),
		tick:          defaultTick,
		updateTimeout: defaultUpdateTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start subscribes to the location provider and only then creates the run on
// the server, so a denied permission never leaves an orphan run behind.
func (t *Tracker) Start(ctx context.Context, opts StartOptions) (runs.StartResponse, error) {
	t.mu.Lock()
	if t.state != stateIdle {
		t.mu.Unlock()
		return runs.StartResponse{}, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.Background())
	t.state = stateStarting
	t.runID = ""
	t.startedAt = time.Time{}
	t.share = opts.ShareLiveLocation
	t.ticks = 0
	t.acc = geo.Accumulator{}
	t.path = nil
	t.runCtx = runCtx
	t.cancel = cancel
	t.mu.Unlock()

	stopWatch, err := t.provider.Watch(runCtx, WatchOptions{Accuracy: AccuracyBalanced, DistanceIntervalM: MovementThresholdM}, t.onSample)
	if err != nil {
		t.abort()
		if errors.Is(err, ErrPermissionDenied) {
			return runs.StartResponse{}, err
		}
		return runs.StartResponse{}, fmt.Errorf("watch location: %w", err)
	}

	resp, err := t.api.Start(ctx, runs.StartRequest{
		ShareLiveLocation: opts.ShareLiveLocation,
		EmergencyContact:  opts.EmergencyContact,
	})
	if err != nil {
		stopWatch()
		t.abort()
		return runs.StartResponse{}, fmt.Errorf("start run: %w", err)
	}

	t.mu.Lock()
	t.state = stateRunning
	t.runID = resp.RunID
	t.startedAt = resp.StartedAt
	t.stopWatch = stopWatch
	t.wg.Add(1)
	go t.countDuration(runCtx)
	t.mu.Unlock()

	t.log.Info("run tracking started", "runId", resp.RunID, "share", opts.ShareLiveLocation)
	return resp, nil
}

func (t *Tracker) abort() {
	t.mu.Lock()
	cancel := t.cancel
	t.state = stateIdle
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Tracker) countDuration(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			t.ticks++
			t.mu.Unlock()
		}
	}
}

func (t *Tracker) onSample(c geo.Coordinate) {
	if !c.Valid() {
		t.log.Debug("discarding invalid sample", "lat", c.Lat, "lng", c.Lng)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateIdle {
		return
	}
	t.acc.Add(c)
	t.path = append(t.path, c)

	// Samples that arrive before the server assigned an id stay local.
	if !t.share || t.state != stateRunning {
		return
	}
	t.wg.Add(1)
	go t.forward(t.runCtx, t.runID, c)
}

func (t *Tracker) forward(ctx context.Context, runID string, c geo.Coordinate) {
	defer t.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, t.updateTimeout)
	defer cancel()
	if err := t.api.UpdateLocation(ctx, runID, c); err != nil {
		t.log.Warn("location update dropped", "runId", runID, "error", err)
	}
}

// halt tears down the subscription, the ticker and in-flight updates. It
// reports the run id and whether a run was active.
func (t *Tracker) halt() (string, bool) {
	t.mu.Lock()
	if t.state != stateRunning {
		t.mu.Unlock()
		return "", false
	}
	t.state = stateIdle
	stopWatch, cancel := t.stopWatch, t.cancel
	t.stopWatch, t.cancel = nil, nil
	runID := t.runID
	t.mu.Unlock()

	stopWatch()
	cancel()
	t.wg.Wait()
	return runID, true
}

// Stop ends local tracking without telling the server. Totals stay readable
// through Snapshot until the next Start.
func (t *Tracker) Stop() {
	if runID, ok := t.halt(); ok {
		t.log.Info("run tracking stopped", "runId", runID)
	}
}

// End stops tracking and sends the locally computed totals.
func (t *Tracker) End(ctx context.Context) (Snapshot, error) {
	runID, ok := t.halt()
	if !ok {
		return t.Snapshot(), ErrNotRunning
	}
	snap := t.Snapshot()
	if err := t.api.End(ctx, runID, snap.DistanceKm, snap.DurationSeconds); err != nil {
		return snap, fmt.Errorf("end run: %w", err)
	}
	t.log.Info("run ended", "runId", runID, "distanceKm", snap.DistanceKm, "durationSeconds", snap.DurationSeconds)
	return snap, nil
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		RunID:           t.runID,
		Running:         t.state == stateRunning,
		StartedAt:       t.startedAt,
		DurationSeconds: t.ticks,
		DistanceKm:      t.acc.TotalKm(),
		Points:          len(t.path),
	}
	if last, ok := t.acc.Last(); ok {
		s.Last = &last
	}
	return s
}

// Path returns a copy of the samples recorded for the current run.
func (t *Tracker) Path() []geo.Coordinate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]geo.Coordinate(nil), t.path...)
}
