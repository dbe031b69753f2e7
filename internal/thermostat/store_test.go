package thermostat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setpoint.yaml")
	s := NewFileStore(path)

	if _, ok, err := s.Load(); err != nil || ok {
		t.Fatalf("Load on missing file: got (ok=%v, err=%v), want (false, nil)", ok, err)
	}

	if err := s.Save(21.5); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v, ok, err := s.Load()
	if err != nil || !ok || v != 21.5 {
		t.Errorf("Load: got (%v, %v, %v), want (21.5, true, nil)", v, ok, err)
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setpoint.yaml")
	if err := os.WriteFile(path, []byte("stored_temperature: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := NewFileStore(path).Load(); err == nil {
		t.Error("expected parse error")
	}
}
