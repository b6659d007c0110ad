package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"subgen/internal/domain"
	"subgen/internal/engine"
	"subgen/internal/execx"
	"subgen/internal/jobs"
	"subgen/internal/pipeline"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save is a no-op for tests.
func (s *fakeStore) Save(domain.Settings) error {
	return nil
}

// fakePipeline allows injecting custom run behavior per test.
type fakePipeline struct {
	run func(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Run delegates to injected function.
func (p *fakePipeline) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	if p.run == nil {
		return pipeline.Result{}, nil
	}
	return p.run(ctx, req)
}

func testSettings() domain.Settings {
	return domain.Settings{
		ModelID:       "base",
		ModelsDir:     "/tmp/models",
		Language:      "English",
		Format:        "srt",
		MaxLineLength: 42,
	}
}

func testApp(run func(ctx context.Context, req pipeline.Request) (pipeline.Result, error)) *App {
	return &App{
		Store:    &fakeStore{settings: testSettings()},
		Jobs:     jobs.NewManager(),
		Pipeline: &fakePipeline{run: run},
		events:   jobs.NewEventBus(100),
	}
}

// TestStartGenerationEnforcesSingleRunningJob checks single-job guard.
func TestStartGenerationEnforcesSingleRunningJob(t *testing.T) {
	app := testApp(func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		<-ctx.Done()
		return pipeline.Result{}, ctx.Err()
	})

	first, err := app.StartGeneration("/tmp/input.mp4", "", "")
	if err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if _, err := app.StartGeneration("/tmp/input-2.mp4", "", ""); !errors.Is(err, jobs.ErrJobInProgress) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrJobInProgress)
	}
	if app.CurrentJob().ID != first.ID {
		t.Fatalf("running job replaced by rejected start")
	}

	if err := app.CancelGeneration(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusCancelled)
	waitForTerminalEvent(t, app)
	assertOneTerminalEvent(t, app.JobEvents(0))
}

// TestStartGenerationPublishesProgressAndResultEvents checks event flow.
func TestStartGenerationPublishesProgressAndResultEvents(t *testing.T) {
	root := t.TempDir()
	outPath := filepath.Join(root, "clip.srt")

	app := testApp(func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		if req.OnProgress != nil {
			req.OnProgress(pipeline.Update{Stage: domain.JobStatusExtracting, Progress: 0.05})
			req.OnProgress(pipeline.Update{Stage: domain.JobStatusTranscribing, Progress: 0.25})
			req.OnProgress(pipeline.Update{Stage: domain.JobStatusFormatting, Progress: 0.75})
			req.OnProgress(pipeline.Update{Stage: domain.JobStatusWriting, Progress: 0.9})
		}
		return pipeline.Result{OutputPath: outPath, Language: "en", Segments: 3}, nil
	})

	if _, err := app.StartGeneration(filepath.Join(root, "clip.mp4"), "English", "srt"); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusDone)
	waitForTerminalEvent(t, app)
	if got := app.CurrentJob().OutputPath; got != outPath {
		t.Fatalf("output path = %q, want %q", got, outPath)
	}

	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeProgress)
	assertEventTypeExists(t, events, jobs.EventTypeResult)
	assertOneTerminalEvent(t, events)

	var result jobs.Event
	for _, event := range events {
		if event.Type == jobs.EventTypeResult {
			result = event
		}
	}
	if result.OutputPath != outPath || result.Progress != 1.0 {
		t.Fatalf("result event = %+v", result)
	}
}

// TestStartGenerationPublishesFailureEvents checks error path emissions.
func TestStartGenerationPublishesFailureEvents(t *testing.T) {
	app := testApp(func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		return pipeline.Result{}, &pipeline.Error{
			Stage:   domain.JobStatusTranscribing,
			Message: "speech-to-text failed",
			Err: &engine.Error{
				Message: "whisper-cli exited with an error",
				CommandLog: execx.CommandLog{
					Command:  "whisper-cli",
					Args:     []string{"-m", "/tmp/models/ggml-base.bin"},
					ExitCode: 1,
					Stderr:   "bad model",
				},
				Err: errors.New("exit status 1"),
			},
		}
	})

	if _, err := app.StartGeneration("/tmp/clip.mp4", "", ""); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusFailed)
	waitForTerminalEvent(t, app)
	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeError)
	assertOneTerminalEvent(t, events)

	var cmdEvent jobs.Event
	for _, event := range events {
		if event.Type == jobs.EventTypeLog && event.Command != "" {
			cmdEvent = event
		}
	}
	if cmdEvent.Command != "whisper-cli" || cmdEvent.ExitCode != 1 {
		t.Fatalf("failed command event = %+v", cmdEvent)
	}
}

// TestStartGenerationRejectsBadInputsUpFront checks request validation.
func TestStartGenerationRejectsBadInputsUpFront(t *testing.T) {
	app := testApp(nil)

	if _, err := app.StartGeneration("/tmp/clip.mp4", "Klingon", "srt"); err == nil {
		t.Fatal("expected error for unsupported language")
	}
	if _, err := app.StartGeneration("/tmp/clip.mp4", "English", "vtt"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if app.Jobs.IsRunning() {
		t.Fatal("rejected request started a job")
	}
}

// TestStartGenerationDefaultsFromSettings checks settings fallback.
func TestStartGenerationDefaultsFromSettings(t *testing.T) {
	var got pipeline.Request
	done := make(chan struct{})
	app := testApp(func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		got = req
		close(done)
		return pipeline.Result{OutputPath: "/tmp/clip.srt"}, nil
	})

	if _, err := app.StartGeneration("/tmp/clip.mp4", "", ""); err != nil {
		t.Fatalf("start job: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline not invoked")
	}
	if got.Language != "English" || got.Format != domain.FormatSRT {
		t.Fatalf("request = %+v, want settings defaults", got)
	}
}

// TestStartGenerationBlockedByFailingDiagnostics checks that missing
// tools disable generation entirely.
func TestStartGenerationBlockedByFailingDiagnostics(t *testing.T) {
	app := testApp(nil)
	app.Diagnostics = domain.DiagnosticReport{HasFailures: true}

	if _, err := app.StartGeneration("/tmp/clip.mp4", "", ""); err == nil {
		t.Fatal("expected error while diagnostics are failing")
	}
	if app.Jobs.IsRunning() {
		t.Fatal("job started despite failing diagnostics")
	}
}

// TestCancelGenerationWithoutJob checks idle cancel behavior.
func TestCancelGenerationWithoutJob(t *testing.T) {
	app := testApp(nil)
	if err := app.CancelGeneration(); !errors.Is(err, jobs.ErrNoRunningJob) {
		t.Fatalf("cancel error = %v, want %v", err, jobs.ErrNoRunningJob)
	}
}

// TestNormalizeSettingsFillsDefaults checks settings normalization.
func TestNormalizeSettingsFillsDefaults(t *testing.T) {
	got := normalizeSettings(domain.Settings{
		ModelID:  "  small ",
		Language: "",
		Format:   " SRT ",
	})

	if got.ModelID != "small" {
		t.Fatalf("model id = %q", got.ModelID)
	}
	if got.Language != "auto" {
		t.Fatalf("language = %q, want auto", got.Language)
	}
	if got.Format != "srt" {
		t.Fatalf("format = %q, want srt", got.Format)
	}
	if got.MaxLineLength <= 0 || got.ModelsDir == "" {
		t.Fatalf("defaults not filled: %+v", got)
	}
}

// waitForStatus polls until job reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentJob().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentJob().Status, want)
}

// waitForTerminalEvent polls until the job publishes a terminal event.
func waitForTerminalEvent(t *testing.T, app *App) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, event := range app.JobEvents(0) {
			if event.Terminal() {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no terminal event published")
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}

// assertOneTerminalEvent verifies the job's stream closes exactly once.
func assertOneTerminalEvent(t *testing.T, events []jobs.Event) {
	t.Helper()
	terminal := 0
	for _, event := range events {
		if event.Terminal() {
			terminal++
		}
	}
	if terminal != 1 {
		t.Fatalf("terminal events = %d, want exactly 1\n%+v", terminal, events)
	}
}
