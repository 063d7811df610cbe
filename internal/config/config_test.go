package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pueue.ini")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxProcesses != DefaultMaxProcesses {
		t.Fatalf("expected default maxProcesses, got %d", cfg.MaxProcesses)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.MaxProcesses != DefaultMaxProcesses || reloaded.LogTime != DefaultLogTime {
		t.Fatalf("defaults did not round-trip: %+v", reloaded)
	}
}

func TestUpdateMaxProcessesPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pueue.ini")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := cfg.Update("maxProcesses", "4"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if cfg.MaxProcesses != 4 {
		t.Fatalf("expected maxProcesses=4, got %d", cfg.MaxProcesses)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.MaxProcesses != 4 {
		t.Fatalf("update did not persist: %+v", reloaded)
	}
}

func TestUpdateRejectsUnknownOption(t *testing.T) {
	cfg := &Config{path: filepath.Join(t.TempDir(), "pueue.ini")}
	if err := cfg.Update("bogus", "1"); err == nil {
		t.Fatalf("expected unknown option to be rejected")
	}
}

func TestUpdateRejectsInvalidValue(t *testing.T) {
	cfg := &Config{path: filepath.Join(t.TempDir(), "pueue.ini")}
	if err := cfg.Update("maxProcesses", "not-a-number"); err == nil {
		t.Fatalf("expected invalid maxProcesses to be rejected")
	}
	if err := cfg.Update("stopAtError", "maybe"); err == nil {
		t.Fatalf("expected invalid bool to be rejected")
	}
}

func TestLoadRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pueue.ini")
	if err := os.WriteFile(path, []byte("[default\nmaxProcesses = \x00\x01garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxProcesses != DefaultMaxProcesses {
		t.Fatalf("expected defaults after corrupt file, got %+v", cfg)
	}
}
