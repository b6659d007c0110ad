// Package bootstrap wires configuration, diagnostics, job tracking,
// and the generation pipeline into the desktop application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"subgen/internal/config"
	"subgen/internal/diagnostics"
	"subgen/internal/domain"
	"subgen/internal/engine"
	"subgen/internal/execx"
	"subgen/internal/extract"
	"subgen/internal/jobs"
	"subgen/internal/language"
	"subgen/internal/logging"
	"subgen/internal/pipeline"
	"subgen/internal/subtitle"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v;*.ts;*.wmv",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, jobs, pipeline, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Diagnostics domain.DiagnosticReport

	// Pipeline overrides per-job pipeline construction when set.
	Pipeline pipelineRunner

	assets  fs.FS
	checker *diagnostics.Checker
	log     *slog.Logger

	mu          sync.Mutex
	activeJobID string
	cancel      context.CancelFunc
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// pipelineRunner isolates the generation pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	store := config.NewYAMLStore(config.DefaultPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	log := logging.Default(settings.LogLevel)
	checker := diagnostics.NewChecker(
		func() domain.DeviceKind { return engine.DetectDevice(log) },
		engine.Catalog,
	)
	report := checker.Run(settings)

	return &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		log:         log,
		events:      jobs.NewEventBus(1000),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Subtitle Generator",
		Width:       1080,
		Height:      720,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	report := a.checker.Run(settings)
	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = report
	a.mu.Unlock()
	return report, nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	report := a.checker.Run(normalized)
	a.mu.Lock()
	a.Settings = normalized
	a.Diagnostics = report
	a.mu.Unlock()

	return normalized, nil
}

// GetLanguages lists the language labels offered in the UI.
func (a *App) GetLanguages() []string {
	return language.Labels()
}

// GetModels lists available models with download state.
func (a *App) GetModels() ([]domain.ModelOption, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return engine.Catalog(settings.ModelsDir), nil
}

// DownloadModel fetches model weights ahead of the first transcription.
func (a *App) DownloadModel(modelID string) (domain.ModelOption, error) {
	model, ok := engine.LookupModel(modelID)
	if !ok {
		return domain.ModelOption{}, fmt.Errorf("unknown model: %q", modelID)
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.ModelOption{}, fmt.Errorf("load settings: %w", err)
	}

	localPath, err := engine.EnsureModel(context.Background(), settings.ModelsDir, model, a.log)
	if err != nil {
		return domain.ModelOption{}, err
	}

	model.Downloaded = true
	model.LocalPath = localPath
	return model, nil
}

// PickVideoFile opens a native file dialog for video selection.
func (a *App) PickVideoFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video file",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the folder containing path in the file
// manager. With an empty path it falls back to the last written
// subtitle file.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.Jobs.Current().OutputPath
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartGeneration creates a job and runs it asynchronously. A second
// call while a job is active fails fast without touching the running
// job.
func (a *App) StartGeneration(videoPath, languageName, format string) (domain.Job, error) {
	a.mu.Lock()
	failingChecks := a.Diagnostics.HasFailures
	a.mu.Unlock()
	if failingChecks {
		return domain.Job{}, fmt.Errorf("required tools or paths are missing; resolve the failing diagnostics first")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	if strings.TrimSpace(languageName) == "" {
		languageName = settings.Language
	}
	if strings.TrimSpace(format) == "" {
		format = settings.Format
	}
	subtitleFormat := domain.SubtitleFormat(strings.ToLower(strings.TrimSpace(format)))
	if !subtitleFormat.Valid() {
		return domain.Job{}, fmt.Errorf("unsupported subtitle format: %q", format)
	}
	if !language.Supported(languageName) {
		return domain.Job{}, fmt.Errorf("unsupported language: %q", languageName)
	}

	job := domain.Job{
		ID:        uuid.NewString(),
		VideoPath: strings.TrimSpace(videoPath),
		Language:  languageName,
		Format:    subtitleFormat,
	}
	if err := a.Jobs.Start(job); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.activeJobID = job.ID
	a.cancel = cancel
	a.Settings = settings
	a.mu.Unlock()

	a.publishEvent(jobs.Event{
		JobID:    job.ID,
		Type:     jobs.EventTypeLog,
		Message:  "Job started",
		Progress: 0,
	})

	go a.runGenerationJob(ctx, job, settings)
	return a.Jobs.Current(), nil
}

// CancelGeneration requests cancellation of the running job. The
// terminal cancelled event is published by the job goroutine once the
// pipeline has unwound and cleaned up.
func (a *App) CancelGeneration() error {
	a.mu.Lock()
	cancel := a.cancel
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningJob
	}

	if err := a.Jobs.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return err
	}
	cancel()

	if activeJobID != "" {
		a.publishEvent(jobs.Event{
			JobID:   activeJobID,
			Type:    jobs.EventTypeLog,
			Message: "Cancellation requested",
		})
	}
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// runGenerationJob executes the pipeline and maps outcomes to job events.
func (a *App) runGenerationJob(ctx context.Context, job domain.Job, settings domain.Settings) {
	runner := a.Pipeline
	if runner == nil {
		runner = a.buildPipeline(settings)
	}

	req := pipeline.Request{
		VideoPath: job.VideoPath,
		Language:  job.Language,
		Format:    job.Format,
		OnProgress: func(u pipeline.Update) {
			if err := a.Jobs.Transition(u.Stage); err != nil {
				return
			}
			a.publishEvent(jobs.Event{
				JobID:    job.ID,
				Type:     jobs.EventTypeProgress,
				Stage:    u.Stage,
				Progress: u.Progress,
				Message:  u.Message,
			})
		},
	}

	result, err := runner.Run(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_ = a.Jobs.Transition(domain.JobStatusCancelled)
			a.publishEvent(jobs.Event{
				JobID:   job.ID,
				Type:    jobs.EventTypeProgress,
				Stage:   domain.JobStatusCancelled,
				Message: "Job cancelled",
			})
			a.clearActiveJob(job.ID)
			return
		}

		if cmdLog, ok := commandLogFrom(err); ok {
			a.publishEvent(jobs.Event{
				JobID:    job.ID,
				Type:     jobs.EventTypeLog,
				Message:  "Failed command",
				Command:  cmdLog.Command,
				Args:     cmdLog.Args,
				ExitCode: cmdLog.ExitCode,
				Stderr:   cmdLog.Stderr,
			})
		}
		_ = a.Jobs.Transition(domain.JobStatusFailed)
		a.publishEvent(jobs.Event{
			JobID:   job.ID,
			Type:    jobs.EventTypeError,
			Stage:   domain.JobStatusFailed,
			Message: err.Error(),
		})
		a.clearActiveJob(job.ID)
		return
	}

	a.Jobs.SetOutputPath(result.OutputPath)
	_ = a.Jobs.Transition(domain.JobStatusDone)
	a.publishEvent(jobs.Event{
		JobID:      job.ID,
		Type:       jobs.EventTypeResult,
		Stage:      domain.JobStatusDone,
		Progress:   1.0,
		Message:    fmt.Sprintf("Subtitles written (%d cues, language %s)", result.Segments, result.Language),
		OutputPath: result.OutputPath,
	})
	a.clearActiveJob(job.ID)
}

// buildPipeline assembles the production pipeline for one job.
func (a *App) buildPipeline(settings domain.Settings) pipelineRunner {
	return pipeline.New(
		extract.New(a.log),
		engine.New(settings.ModelID, settings.ModelsDir, a.log),
		subtitle.New(a.log, subtitle.Options{MaxLineLength: settings.MaxLineLength}),
		a.log,
	)
}

// commandLogFrom extracts the failed external command, when the error
// carries one.
func commandLogFrom(err error) (execx.CommandLog, bool) {
	var extractErr *extract.Error
	if errors.As(err, &extractErr) && extractErr.CommandLog.Command != "" {
		return extractErr.CommandLog, true
	}
	var engineErr *engine.Error
	if errors.As(err, &engineErr) && engineErr.CommandLog.Command != "" {
		return engineErr.CommandLog, true
	}
	return execx.CommandLog{}, false
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		a.cancel = nil
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and fills defaults for cleared fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()

	settings.ModelID = strings.TrimSpace(settings.ModelID)
	settings.ModelsDir = strings.TrimSpace(settings.ModelsDir)
	settings.Language = strings.TrimSpace(settings.Language)
	settings.Format = strings.ToLower(strings.TrimSpace(settings.Format))
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))

	if settings.ModelID == "" {
		settings.ModelID = defaults.ModelID
	}
	if settings.ModelsDir == "" {
		settings.ModelsDir = defaults.ModelsDir
	}
	if settings.Language == "" {
		settings.Language = "auto"
	}
	if settings.Format == "" {
		settings.Format = defaults.Format
	}
	if settings.MaxLineLength <= 0 {
		settings.MaxLineLength = defaults.MaxLineLength
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
