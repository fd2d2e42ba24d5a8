package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"backend-runbarbie/internal/shared/geo"
	"backend-runbarbie/internal/tracker"

	"gopkg.in/yaml.v3"
)

// track is a recorded route in YAML:
//
//	points:
//	  - {lat: 1.3521, lng: 103.8198}
type track struct {
	Points []geo.Coordinate `yaml:"points"`
}

func loadTrack(path string) ([]geo.Coordinate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	var t track
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse track: %w", err)
	}
	if len(t.Points) == 0 {
		return nil, fmt.Errorf("track %s has no points", path)
	}
	return t.Points, nil
}

// replayProvider plays back a fixed route as if it came from the device.
// finished is closed once every point has been delivered.
type replayProvider struct {
	points   []geo.Coordinate
	interval time.Duration
	finished chan struct{}
}

func newReplayProvider(points []geo.Coordinate, interval time.Duration) *replayProvider {
	return &replayProvider{points: points, interval: interval, finished: make(chan struct{})}
}

func (p *replayProvider) Watch(ctx context.Context, _ tracker.WatchOptions, handler func(geo.Coordinate)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for _, pt := range p.points {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				handler(pt)
			}
		}
		close(p.finished)
	}()
	return func() {
		cancel()
		wg.Wait()
	}, nil
}
