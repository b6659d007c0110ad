// Package config persists user settings as a YAML file under the
// user's home directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"subgen/internal/domain"
	"subgen/internal/language"
	"subgen/internal/subtitle"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// YAMLStore persists settings in a single YAML file on disk.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a YAML-backed settings store.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".subgen", "settings.yaml")
}

// Load reads settings from disk, or returns defaults when the file is
// missing. Fields absent from the file fall back to their defaults, so
// settings written by older versions keep working.
func (s *YAMLStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, err
	}

	cfg := DefaultSettings()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("parse settings file %s: %w", s.path, err)
	}

	return cfg, nil
}

// Save validates and writes settings, creating parent directories.
func (s *YAMLStore) Save(cfg domain.Settings) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ModelID:       "base",
		ModelsDir:     filepath.Join(homeDir, ".subgen", "models"),
		Language:      "English",
		Format:        string(domain.FormatSRT),
		MaxLineLength: subtitle.DefaultMaxLineLength,
		LogLevel:      "info",
	}
}

// Validate rejects settings the pipeline cannot run with.
func Validate(cfg domain.Settings) error {
	if cfg.ModelID == "" {
		return errors.New("config: model id is required")
	}
	if cfg.ModelsDir == "" {
		return errors.New("config: models directory is required")
	}
	if !domain.SubtitleFormat(cfg.Format).Valid() {
		return fmt.Errorf("config: unsupported subtitle format %q", cfg.Format)
	}
	if _, ok := language.Resolve(cfg.Language); !ok {
		return fmt.Errorf("config: unsupported language %q", cfg.Language)
	}
	if cfg.MaxLineLength < 0 {
		return fmt.Errorf("config: max line length must not be negative, got %d", cfg.MaxLineLength)
	}
	return nil
}
