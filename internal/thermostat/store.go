package thermostat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store persists the stored setpoint across restarts.
type Store interface {
	Load() (value float64, ok bool, err error)
	Save(value float64) error
}

type storeFile struct {
	StoredTemperature *float64 `yaml:"stored_temperature"`
}

// FileStore keeps the setpoint in a small YAML file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the setpoint. A missing file is not an error.
func (s *FileStore) Load() (float64, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read setpoint: %w", err)
	}

	var f storeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, false, fmt.Errorf("parse setpoint %s: %w", s.path, err)
	}
	if f.StoredTemperature == nil {
		return 0, false, nil
	}
	return *f.StoredTemperature, true, nil
}

// Save replaces the file atomically.
func (s *FileStore) Save(value float64) error {
	data, err := yaml.Marshal(storeFile{StoredTemperature: &value})
	if err != nil {
		return fmt.Errorf("encode setpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".setpoint-*")
	if err != nil {
		return fmt.Errorf("save setpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save setpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save setpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save setpoint: %w", err)
	}
	return nil
}
