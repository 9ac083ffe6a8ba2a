package validation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewPathHandlers(t *testing.T) {
	if ph := NewSecurePathHandler(); ph.validator.AllowRelativePaths {
		t.Error("Expected secure path handler to disallow relative paths")
	}
	if ph := NewPermissivePathHandler(); len(ph.validator.AllowedBaseDirs) != 0 {
		t.Error("Expected permissive path handler to have no base directory restrictions")
	}
}

func TestDefaultPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	ph := NewSecurePathHandler()

	tests := []struct {
		name string
		fn   func(string) (string, error)
		want string
	}{
		{"db", ph.DBPath, filepath.Join(home, ".rdt", "rdt.db")},
		{"config", ph.ConfigPath, filepath.Join(home, ".config", "rdt", "config.toml")},
		{"log", ph.LogPath, filepath.Join(home, ".rdt", "rdt.log")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn("")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDBPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ph := NewSecurePathHandler()

	got, err := ph.DBPath(":memory:")
	if err != nil || got != ":memory:" {
		t.Errorf("In-memory path should pass through, got %q, %v", got, err)
	}

	if _, err := ph.DBPath("/etc/rdt.db"); err == nil {
		t.Error("Secure handler should reject paths outside its directories")
	}

	custom := filepath.Join(os.TempDir(), "rdt-test.db")
	if _, err := ph.DBPath(custom); err != nil {
		t.Errorf("Temp dir should be allowed: %v", err)
	}

	if _, err := NewPermissivePathHandler().DBPath("/srv/rdt/rdt.db"); err != nil {
		t.Errorf("Permissive handler should allow any directory: %v", err)
	}
}

func TestEnsureDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".rdt")
	got, err := NewSecurePathHandler().EnsureDirectory(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != dir {
		t.Errorf("Expected %s, got %s", dir, got)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Error("Directory should have been created")
	}
}
