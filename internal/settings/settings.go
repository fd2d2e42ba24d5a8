// Package settings persists the phone-side preferences read at run start.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"backend-runbarbie/internal/shared/geo"

	"gopkg.in/yaml.v3"
)

const DefaultEmergencyNumber = "911"

type Settings struct {
	ShareLiveLocation bool     `yaml:"share_live_location"`
	EmergencyContact  string   `yaml:"emergency_contact"`
	EmergencyNumber   string   `yaml:"emergency_number,omitempty"`
	SOSEnabled        bool     `yaml:"sos_enabled"`
	DistanceUnit      geo.Unit `yaml:"distance_unit"`
}

func Default() Settings {
	return Settings{
		SOSEnabled:      true,
		DistanceUnit:    geo.Kilometers,
		EmergencyNumber: DefaultEmergencyNumber,
	}
}

// Dialable returns the number the SOS call goes to.
func (s Settings) Dialable() string {
	if n := strings.TrimSpace(s.EmergencyNumber); n != "" {
		return n
	}
	return DefaultEmergencyNumber
}

// Load reads path. A missing file yields Default(); fields absent from the
// file keep their default values.
func Load(path string) (Settings, error) {
	s := Default()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Default(), fmt.Errorf("parse settings: %w", err)
	}
	if s.DistanceUnit != geo.Miles {
		s.DistanceUnit = geo.Kilometers
	}
	return s, nil
}

// Save writes s to a temp file in the same directory and renames it over
// path so readers never see a partial file.
func Save(path string, s Settings) error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
