// Package sos turns an SOS press into an emergency call and a location text.
package sos

import (
	"context"
	"errors"
	"fmt"

	"backend-runbarbie/internal/logger"
	"backend-runbarbie/internal/runs"
	"backend-runbarbie/internal/settings"
)

var (
	ErrDisabled    = errors.New("sos is disabled in settings")
	ErrNoContact   = errors.New("no emergency contact configured")
	ErrUnknownTest = errors.New("unknown sos test kind")
)

// Intents are the native call and SMS composers.
type Intents interface {
	Dial(number string) error
	ComposeSMS(number, body string) error
}

type API interface {
	TriggerSOS(ctx context.Context, runID string) (runs.SOSResponse, error)
}

// SettingsLoader returns the current local settings.
type SettingsLoader func() (settings.Settings, error)

// FileSettings loads settings from path on every call.
func FileSettings(path string) SettingsLoader {
	return func() (settings.Settings, error) { return settings.Load(path) }
}

type TestKind string

const (
	TestCall TestKind = "call"
	TestText TestKind = "text"
)

// Message is the SMS body sent to the emergency contact.
func Message(mapsURL string) string {
	return "SOS! I need help. My location: " + mapsURL
}

const testMessage = "This is a test of my RunBarbie SOS alert. No action needed."

type Dispatcher struct {
	api      API
	intents  Intents
	settings SettingsLoader
	log      *logger.Logger
}

func NewDispatcher(api API, intents Intents, load SettingsLoader, log *logger.Logger) *Dispatcher {
	return &Dispatcher{api: api, intents: intents, settings: load, log: logger.OrNop(log)}
}

func (d *Dispatcher) current() settings.Settings {
	if d.settings == nil {
		return settings.Default()
	}
	s, err := d.settings()
	if err != nil {
		d.log.Warn("settings unavailable, using defaults", "error", err)
		return settings.Default()
	}
	return s
}

// Trigger records the SOS on the server and places the emergency call. The
// call is made even when the server cannot be reached. A text goes to the
// emergency contact only when the server returned both a contact and a real
// location link. The returned error joins every failure that occurred.
func (d *Dispatcher) Trigger(ctx context.Context, runID string) (runs.SOSResponse, error) {
	s := d.current()

	resp, apiErr := d.api.TriggerSOS(ctx, runID)
	if apiErr != nil {
		d.log.Error("sos not recorded", "runId", runID, "error", apiErr)
		apiErr = fmt.Errorf("trigger sos: %w", apiErr)
	}

	var dialErr error
	if err := d.intents.Dial(s.Dialable()); err != nil {
		d.log.Error("emergency dial failed", "error", err)
		dialErr = fmt.Errorf("dial: %w", err)
	}

	var smsErr error
	if apiErr == nil && resp.EmergencyContact != "" && resp.MapsURL != "" && resp.MapsURL != runs.LocationUnavailable {
		if err := d.intents.ComposeSMS(resp.EmergencyContact, Message(resp.MapsURL)); err != nil {
			d.log.Error("sos text failed", "error", err)
			smsErr = fmt.Errorf("compose sms: %w", err)
		}
	}

	return resp, errors.Join(apiErr, dialErr, smsErr)
}

// Test exercises the call or text path against the configured emergency
// contact. It uses local settings only and never contacts the server.
func (d *Dispatcher) Test(kind TestKind) error {
	s := d.current()
	if !s.SOSEnabled {
		return ErrDisabled
	}
	if s.EmergencyContact == "" {
		return ErrNoContact
	}
	switch kind {
	case TestCall:
		return d.intents.Dial(s.EmergencyContact)
	case TestText:
		return d.intents.ComposeSMS(s.EmergencyContact, testMessage)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTest, kind)
	}
}
