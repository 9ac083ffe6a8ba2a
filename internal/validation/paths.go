package validation

import (
	"os"
	"path/filepath"
)

// PathHandler resolves the application's file locations.
type PathHandler struct {
	validator *FilePathValidator
}

func NewSecurePathHandler() *PathHandler {
	return &PathHandler{validator: NewFilePathValidator()}
}

func NewPermissivePathHandler() *PathHandler {
	return &PathHandler{validator: NewPermissiveFilePathValidator()}
}

func defaultPath(parts ...string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{homeDir}, parts...)...), nil
}

// DBPath validates the draft database path. An in-memory database is
// passed through unchanged.
func (ph *PathHandler) DBPath(userPath string) (string, error) {
	if userPath == ":memory:" {
		return userPath, nil
	}
	if userPath == "" {
		p, err := defaultPath(".rdt", "rdt.db")
		if err != nil {
			return "", err
		}
		userPath = p
	}
	return ph.validator.ValidateFile(userPath)
}

// ConfigPath validates a config file path.
func (ph *PathHandler) ConfigPath(userPath string) (string, error) {
	if userPath == "" {
		p, err := defaultPath(".config", "rdt", "config.toml")
		if err != nil {
			return "", err
		}
		userPath = p
	}
	return ph.validator.ValidateFile(userPath)
}

// LogPath validates the debug log path.
func (ph *PathHandler) LogPath(userPath string) (string, error) {
	if userPath == "" {
		p, err := defaultPath(".rdt", "rdt.log")
		if err != nil {
			return "", err
		}
		userPath = p
	}
	return ph.validator.ValidateFile(userPath)
}

// EnsureDirectory creates dir after validating it.
func (ph *PathHandler) EnsureDirectory(dir string) (string, error) {
	return ph.validator.ValidateDirectory(dir, true)
}
