// Package engine wraps whisper.cpp speech-to-text inference: device
// selection, model weight caching, and segment-level transcription.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"subgen/internal/domain"
	"subgen/internal/execx"
	"subgen/internal/extract"
	"subgen/internal/language"
)

// Error reports a failed transcription with optional command context.
type Error struct {
	Message    string
	CommandLog execx.CommandLog
	Err        error
}

// Error formats transcription failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("transcribe: %s", e.Message)
	}
	return fmt.Sprintf("transcribe: %s (cmd=%s exit=%d)", e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Engine runs whisper.cpp inference against cached model weights. One
// engine serves the whole process; the device decision and the model
// weight resolution happen once and are reused across jobs.
type Engine struct {
	whisperPath string
	modelID     string
	modelsDir   string
	runner      execx.Runner
	readFile    func(name string) ([]byte, error)
	ensureModel func(ctx context.Context, modelsDir string, model domain.ModelOption, log *slog.Logger) (string, error)
	probeDevice func() domain.DeviceKind
	log         *slog.Logger

	initOnce sync.Once
	profile  domain.DeviceProfile
	initErr  error
}

// New constructs the production engine for the given model identifier.
func New(modelID, modelsDir string, log *slog.Logger) *Engine {
	return &Engine{
		whisperPath: "whisper-cli",
		modelID:     modelID,
		modelsDir:   modelsDir,
		runner:      &execx.ExecRunner{},
		readFile:    os.ReadFile,
		ensureModel: EnsureModel,
		probeDevice: func() domain.DeviceKind { return detectDeviceOnce(log) },
		log:         log,
	}
}

// Initialize resolves the device profile: probes the compute device and
// ensures the model weights are cached. Idempotent and lazy; concurrent
// callers share one initialization.
func (e *Engine) Initialize(ctx context.Context) (domain.DeviceProfile, error) {
	e.initOnce.Do(func() {
		model, found := LookupModel(e.modelID)
		if !found {
			e.initErr = &Error{Message: fmt.Sprintf("unknown model id: %s", e.modelID)}
			return
		}

		modelPath, err := e.ensureModel(ctx, e.modelsDir, model, e.log)
		if err != nil {
			e.initErr = &Error{Message: "model weights are unavailable", Err: err}
			return
		}

		e.profile = domain.DeviceProfile{
			Device:    e.probeDevice(),
			ModelID:   model.ID,
			ModelPath: modelPath,
			CacheDir:  e.modelsDir,
		}
		e.log.Info("transcription engine ready",
			"device", e.profile.Device,
			"model", e.profile.ModelID,
		)
	})
	return e.profile, e.initErr
}

// Transcribe runs inference on the extracted audio and returns ordered,
// normalized segments. A GPU out-of-memory failure is retried exactly
// once on CPU before the error is surfaced.
func (e *Engine) Transcribe(ctx context.Context, asset *extract.Asset, languageName string) (domain.TranscriptResult, error) {
	profile, err := e.Initialize(ctx)
	if err != nil {
		return domain.TranscriptResult{}, err
	}

	if asset == nil || asset.Duration <= 0 {
		return domain.TranscriptResult{}, &Error{Message: "audio is empty"}
	}

	code, ok := language.Resolve(languageName)
	if !ok {
		return domain.TranscriptResult{}, &Error{Message: fmt.Sprintf("unsupported language: %s", languageName)}
	}

	outBase := filepath.Join(asset.Dir(), "transcript")
	cpuOnly := profile.Device == domain.DeviceCPU

	args := buildWhisperArgs(profile.ModelPath, asset.Path, outBase, code, cpuOnly)
	result, runErr := e.runner.Run(ctx, e.whisperPath, args...)
	cmdLog := execx.LogFor(e.whisperPath, args, result)

	if runErr != nil && !cpuOnly && isGPUMemoryError(result) {
		e.log.Warn("GPU inference out of memory, retrying once on CPU", "exit_code", result.ExitCode)
		args = buildWhisperArgs(profile.ModelPath, asset.Path, outBase, code, true)
		result, runErr = e.runner.Run(ctx, e.whisperPath, args...)
		cmdLog = execx.LogFor(e.whisperPath, args, result)
	}
	if runErr != nil {
		return domain.TranscriptResult{}, &Error{
			Message:    "whisper inference failed",
			CommandLog: cmdLog,
			Err:        runErr,
		}
	}

	data, err := e.readFile(outBase + ".json")
	if err != nil {
		return domain.TranscriptResult{}, &Error{
			Message:    "whisper completed but transcript output is missing",
			CommandLog: cmdLog,
			Err:        err,
		}
	}

	transcript, err := parseWhisperOutput(data)
	if err != nil {
		return domain.TranscriptResult{}, &Error{
			Message:    "whisper produced unreadable transcript output",
			CommandLog: cmdLog,
			Err:        err,
		}
	}

	if transcript.Language == "" {
		transcript.Language = code
	}
	e.log.Info("transcription complete",
		"segments", len(transcript.Segments),
		"language", transcript.Language,
	)
	return transcript, nil
}

// whisperOutput mirrors the JSON document whisper.cpp emits with -oj.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperOutput decodes whisper JSON and normalizes the segments:
// text is trimmed, whitespace-only and zero-duration segments are
// dropped, and the sequence is ordered by start time.
func parseWhisperOutput(data []byte) (domain.TranscriptResult, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.TranscriptResult{}, fmt.Errorf("decode whisper json: %w", err)
	}

	segments := make([]domain.Segment, 0, len(out.Transcription))
	for _, raw := range out.Transcription {
		text := strings.TrimSpace(raw.Text)
		if text == "" {
			continue
		}
		start := time.Duration(raw.Offsets.From) * time.Millisecond
		end := time.Duration(raw.Offsets.To) * time.Millisecond
		if start < 0 || end <= start {
			continue
		}
		segments = append(segments, domain.Segment{Start: start, End: end, Text: text})
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	return domain.TranscriptResult{
		Segments: segments,
		Language: strings.TrimSpace(out.Result.Language),
	}, nil
}

// isGPUMemoryError reports whether the failure looks like GPU memory
// exhaustion rather than a deterministic inference error.
func isGPUMemoryError(result execx.Result) bool {
	combined := strings.ToLower(result.Stderr + "\n" + result.Stdout)
	return strings.Contains(combined, "out of memory") ||
		strings.Contains(combined, "cuda error") ||
		strings.Contains(combined, "cublas")
}

// buildWhisperArgs builds whisper.cpp args for JSON transcript export.
func buildWhisperArgs(modelPath, audioPath, outBase, languageCode string, cpuOnly bool) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
		"-np",
	}
	if languageCode != "" {
		args = append(args, "-l", languageCode)
	}
	if cpuOnly {
		args = append(args, "-ng")
	}
	return args
}

// NewForTests constructs an engine with injectable dependencies.
func NewForTests(
	whisperPath string,
	modelID string,
	modelsDir string,
	runner execx.Runner,
	readFile func(name string) ([]byte, error),
	ensureModel func(ctx context.Context, modelsDir string, model domain.ModelOption, log *slog.Logger) (string, error),
	probeDevice func() domain.DeviceKind,
	log *slog.Logger,
) *Engine {
	return &Engine{
		whisperPath: whisperPath,
		modelID:     modelID,
		modelsDir:   modelsDir,
		runner:      runner,
		readFile:    readFile,
		ensureModel: ensureModel,
		probeDevice: probeDevice,
		log:         log,
	}
}
