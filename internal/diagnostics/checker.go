// Package diagnostics validates the external tools and filesystem
// paths a generation job depends on, before any job starts.
package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"subgen/internal/domain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath    func(string) (string, error)
	mkdirAll    func(string, os.FileMode) error
	createTemp  func(string, string) (*os.File, error)
	remove      func(string) error
	probeDevice func() domain.DeviceKind
	catalog     func(modelsDir string) []domain.ModelOption
}

// NewChecker builds a checker using real OS dependencies. probeDevice
// and catalog let the caller plug in the engine without the packages
// depending on each other.
func NewChecker(probeDevice func() domain.DeviceKind, catalog func(modelsDir string) []domain.ModelOption) *Checker {
	return &Checker{
		lookPath:    exec.LookPath,
		mkdirAll:    os.MkdirAll,
		createTemp:  os.CreateTemp,
		remove:      os.Remove,
		probeDevice: probeDevice,
		catalog:     catalog,
	}
}

// Run executes all startup checks and returns a combined report.
// Informational items never mark the report as failed.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg"),
		c.checkTool("ffprobe"),
		c.checkTool("whisper-cli"),
		c.checkModelsDir(settings.ModelsDir),
		c.checkModel(settings.ModelsDir, settings.ModelID),
		c.checkDevice(),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH before generating subtitles.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkModelsDir validates model directory existence and write access.
// Model downloads land here, so it must be creatable and writable.
func (c *Checker) checkModelsDir(modelsDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "models_dir",
		Name: "Models directory",
	}

	if strings.TrimSpace(modelsDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Models directory is empty."
		item.Hint = "Set a directory where model weights can be stored."
		return item
	}

	if err := c.mkdirAll(modelsDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create models directory: %s", modelsDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(modelsDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Models directory is not writable: %s", modelsDir)
		item.Hint = "Choose a writable directory for model downloads."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", modelsDir)
	return item
}

// checkModel reports whether the configured model's weights are
// already on disk. A missing file is informational: weights are
// downloaded automatically on first use.
func (c *Checker) checkModel(modelsDir, modelID string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "model_" + modelID,
		Name: "Model weights",
	}

	for _, option := range c.catalog(modelsDir) {
		if option.ID != modelID {
			continue
		}
		if option.Downloaded {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Model %q found: %s", modelID, option.LocalPath)
			return item
		}
		item.Status = domain.DiagnosticStatusInfo
		item.Message = fmt.Sprintf("Model %q not downloaded yet (%s).", modelID, option.SizeLabel)
		item.Hint = "Weights are downloaded automatically before the first transcription."
		return item
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("Unknown model selected: %q", modelID)
	item.Hint = "Pick a model from the settings dialog."
	return item
}

// checkDevice reports the inference device. This is informational:
// CPU-only hosts are fully supported.
func (c *Checker) checkDevice() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:     "inference_device",
		Name:   "Inference device",
		Status: domain.DiagnosticStatusInfo,
	}

	switch c.probeDevice() {
	case domain.DeviceGPU:
		item.Message = "NVIDIA GPU detected; transcription will use GPU inference."
	default:
		item.Message = "No GPU detected; transcription will run on CPU."
	}
	return item
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	probeDevice func() domain.DeviceKind,
	catalog func(modelsDir string) []domain.ModelOption,
) *Checker {
	return &Checker{
		lookPath:    lookPath,
		mkdirAll:    mkdirAll,
		createTemp:  createTemp,
		remove:      remove,
		probeDevice: probeDevice,
		catalog:     catalog,
	}
}
