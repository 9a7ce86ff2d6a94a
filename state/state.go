// Package state persists the last observed reading between runs in a small
// JSON file, so that alerts fire on threshold crossings only.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
)

const lastHumidityKey = "last_humidity"

// State is the record carried from one run to the next. Keys other than
// last_humidity are kept as-is so that they survive a load/save cycle.
// A fractional last_humidity is rounded to the nearest percent.
type State struct {
	LastHumidity *int
	extra        map[string]json.RawMessage
}

func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.extra)+1)
	for k, v := range s.extra {
		out[k] = v
	}
	delete(out, lastHumidityKey)
	if s.LastHumidity != nil {
		raw, err := json.Marshal(*s.LastHumidity)
		if err != nil {
			return nil, err
		}
		out[lastHumidityKey] = raw
	}
	return json.Marshal(out)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*s = State{}
	if raw, ok := fields[lastHumidityKey]; ok {
		delete(fields, lastHumidityKey)
		if string(raw) != "null" {
			var f float64
			if err := json.Unmarshal(raw, &f); err != nil {
				return fmt.Errorf("%s: %w", lastHumidityKey, err)
			}
			v := int(math.Round(f))
			s.LastHumidity = &v
		}
	}
	if len(fields) > 0 {
		s.extra = fields
	}
	return nil
}

// WithHumidity returns a copy of s recording humidity as the last reading.
func (s State) WithHumidity(humidity int) State {
	s.LastHumidity = &humidity
	return s
}

// Store reads and writes State to a single file on disk.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted state. A missing file yields an empty State;
// any other failure is returned.
func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state file %s: %w", s.path, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	return st, nil
}

// Save replaces the state file with st. The file is written next to the
// target and renamed into place.
func (s *Store) Save(st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state file %s: %w", s.path, err)
	}
	return nil
}
