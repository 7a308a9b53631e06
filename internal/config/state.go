package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/coopdoor/internal/door"
)

const stateFile = "state.yaml"

// DoorState is what coopctl remembers about the door between runs: the
// last known state and the last sequence number put on the air.
type DoorState struct {
	State       string    `yaml:"state"`
	Unconfirmed bool      `yaml:"unconfirmed"`
	LastSeq     uint16    `yaml:"last_seq"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// StatePath returns the state file kept beside the config file at
// configPath (the default location when empty)
func StatePath(configPath string) (string, error) {
	p, err := resolvePath(configPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(p), stateFile), nil
}

// LoadState reads the door state. A missing file returns nil and no error.
func LoadState(path string) (*DoorState, error) {
	fileMutex.Lock()
	data, err := os.ReadFile(path)
	fileMutex.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var s DoorState
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &s, nil
}

// Save writes the door state atomically
func (s *DoorState) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save state file: %w", err)
	}
	return nil
}

// Resting returns the remembered state if the door was confirmed at rest.
// Moving or unconfirmed doors report false: nothing is known for sure.
func (s *DoorState) Resting() (door.State, bool) {
	if s == nil || s.Unconfirmed {
		return door.Closed, false
	}
	st, err := door.ParseState(s.State)
	if err != nil || s.State == "" {
		return door.Closed, false
	}
	return st, true
}

// Record captures st and the last sequence number used
func (s *DoorState) Record(st door.Status, lastSeq uint16) {
	s.State = st.State.String()
	s.Unconfirmed = st.Unconfirmed
	s.LastSeq = lastSeq
	s.UpdatedAt = time.Now().UTC()
}
