package main

import (
	"fmt"
	"log/slog"
	"os"

	"subgen/internal/config"
	"subgen/internal/domain"
	"subgen/internal/logging"
)

// commandContext lazily loads settings and the logger shared by all
// subcommands.
type commandContext struct {
	settingsPath *string

	settings *domain.Settings
	log      *slog.Logger
}

func newCommandContext(settingsPath *string) *commandContext {
	return &commandContext{settingsPath: settingsPath}
}

// ensureSettings loads settings once per invocation.
func (c *commandContext) ensureSettings() (domain.Settings, error) {
	if c.settings != nil {
		return *c.settings, nil
	}

	path := config.DefaultPath()
	if c.settingsPath != nil && *c.settingsPath != "" {
		path = *c.settingsPath
	}

	settings, err := config.NewYAMLStore(path).Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	c.settings = &settings
	return settings, nil
}

// logger builds the process logger from loaded settings. Falls back to
// info level when settings cannot be loaded.
func (c *commandContext) logger(levelOverride string) *slog.Logger {
	if c.log != nil {
		return c.log
	}

	level := levelOverride
	if level == "" {
		if settings, err := c.ensureSettings(); err == nil {
			level = settings.LogLevel
		}
	}

	log, err := logging.New(os.Stderr, logging.Options{Level: level})
	if err != nil {
		log = logging.Default(level)
	}
	c.log = log
	return log
}
