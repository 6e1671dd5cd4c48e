package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shelfscan/internal/apiclient"
)

const (
	// Defaults point at the hosted deployment. Both are user-overridable and
	// the override survives restarts.
	DefaultDataHost = "https://api.shelfscan.example.com"
	DefaultJobsHost = "https://infer.shelfscan.example.com"

	settingsFile = "settings.json"
)

// Settings resolves the two API hosts: one for auth/store/planogram data, one
// for job operations. The /v1 prefix is appended by callers, never stored.
type Settings struct {
	dir string

	DataHost string `json:"data_host"`
	JobsHost string `json:"jobs_host"`

	// custom is true when the values came from a saved override file.
	custom bool
}

// Dir returns the default settings directory under the user config dir.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "shelfscan"), nil
}

// Load reads persisted settings from dir, falling back to defaults when no
// override file exists.
func Load(dir string) (*Settings, error) {
	s := &Settings{
		dir:      dir,
		DataHost: DefaultDataHost,
		JobsHost: DefaultJobsHost,
	}

	raw, err := os.ReadFile(filepath.Join(dir, settingsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.custom = true
	return s, nil
}

// Set validates, normalizes and persists a host override. An empty string
// keeps the current value for that host.
func (s *Settings) Set(dataHost, jobsHost string) error {
	if dataHost == "" && jobsHost == "" {
		return &apiclient.ValidationError{Field: "host", Reason: "at least one host must be given"}
	}
	if dataHost != "" {
		h, err := normalizeHost(dataHost)
		if err != nil {
			return err
		}
		s.DataHost = h
	}
	if jobsHost != "" {
		h, err := normalizeHost(jobsHost)
		if err != nil {
			return err
		}
		s.JobsHost = h
	}
	if err := s.save(); err != nil {
		return err
	}
	s.custom = true
	return nil
}

// Reset removes the override file and restores defaults.
func (s *Settings) Reset() error {
	if err := os.Remove(filepath.Join(s.dir, settingsFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove settings: %w", err)
	}
	s.DataHost = DefaultDataHost
	s.JobsHost = DefaultJobsHost
	s.custom = false
	return nil
}

// Custom reports whether a saved override is in effect.
func (s *Settings) Custom() bool { return s.custom }

func (s *Settings) save() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, settingsFile), raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func normalizeHost(raw string) (string, error) {
	h := strings.TrimRight(strings.TrimSpace(raw), "/")
	if h == "" {
		return "", &apiclient.ValidationError{Field: "host", Reason: "must not be empty"}
	}
	if !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
		h = "https://" + h
	}
	return h, nil
}
