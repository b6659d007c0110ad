// Package pipeline orchestrates one subtitle generation job: extract
// audio, transcribe, render, and write the subtitle file beside the
// source video.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"subgen/internal/domain"
	"subgen/internal/extract"
)

// Extractor produces the canonical audio asset for a video.
type Extractor interface {
	Extract(ctx context.Context, videoPath string) (*extract.Asset, error)
}

// Transcriber turns an audio asset into timestamped segments.
type Transcriber interface {
	Transcribe(ctx context.Context, asset *extract.Asset, languageName string) (domain.TranscriptResult, error)
}

// Formatter renders a transcript into subtitle text.
type Formatter interface {
	Render(result domain.TranscriptResult, format domain.SubtitleFormat) (string, error)
}

// Error is a stage-aware pipeline failure.
type Error struct {
	Stage   domain.JobStatus
	Message string
	Err     error
}

// Error formats pipeline failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Request contains the inputs and progress callback for one run.
type Request struct {
	VideoPath  string
	Language   string
	Format     domain.SubtitleFormat
	OnProgress func(Update)
}

// Update reports stage advancement during a run.
type Update struct {
	Stage    domain.JobStatus
	Progress float64
	Message  string
}

// Result describes a completed run.
type Result struct {
	OutputPath string
	Language   string
	Segments   int
}

// Pipeline runs the extract, transcribe, format, write sequence for
// one job at a time. Stages execute strictly sequentially; cooperative
// cancellation is honored during extraction and transcription, while
// formatting and writing always run to completion once started.
type Pipeline struct {
	extractor Extractor
	engine    Transcriber
	formatter Formatter
	writeFile func(name string, data []byte, perm os.FileMode) error
	rename    func(oldpath, newpath string) error
	remove    func(name string) error
	log       *slog.Logger
}

// New constructs the production pipeline.
func New(extractor Extractor, engine Transcriber, formatter Formatter, log *slog.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		engine:    engine,
		formatter: formatter,
		writeFile: os.WriteFile,
		rename:    os.Rename,
		remove:    os.Remove,
		log:       log,
	}
}

// Run executes the whole job. The temp audio asset is removed on every
// exit path, including cancellation. On success the subtitle file
// exists at Result.OutputPath; on failure or cancellation no partial
// output file is left behind.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.VideoPath) == "" {
		return Result{}, &Error{Stage: domain.JobStatusExtracting, Message: "input video path is required"}
	}
	if !req.Format.Valid() {
		return Result{}, &Error{Stage: domain.JobStatusFormatting, Message: fmt.Sprintf("unsupported subtitle format: %s", req.Format)}
	}

	emit(req.OnProgress, Update{Stage: domain.JobStatusExtracting, Progress: 0.05, Message: "Extracting audio"})
	asset, err := p.extractor.Extract(ctx, req.VideoPath)
	if err != nil {
		return Result{}, stageError(domain.JobStatusExtracting, "audio extraction failed", err)
	}
	defer func() {
		if cleanupErr := asset.Cleanup(); cleanupErr != nil {
			p.log.Warn("cleanup temp audio asset", "error", cleanupErr)
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	emit(req.OnProgress, Update{
		Stage:    domain.JobStatusTranscribing,
		Progress: 0.25,
		Message:  "Transcribing audio (model loading can take time)",
	})
	transcript, err := p.engine.Transcribe(ctx, asset, req.Language)
	if err != nil {
		return Result{}, stageError(domain.JobStatusTranscribing, "speech-to-text failed", err)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	emit(req.OnProgress, Update{Stage: domain.JobStatusFormatting, Progress: 0.75, Message: "Rendering subtitles"})
	text, err := p.formatter.Render(transcript, req.Format)
	if err != nil {
		return Result{}, stageError(domain.JobStatusFormatting, "subtitle rendering failed", err)
	}

	outPath := OutputPath(req.VideoPath, req.Format)
	emit(req.OnProgress, Update{Stage: domain.JobStatusWriting, Progress: 0.9, Message: "Writing " + outPath})

	// Write to a temp path then move into place so a failed write never
	// leaves a partial subtitle file at the destination.
	tmpPath := outPath + ".tmp"
	if err := p.writeFile(tmpPath, []byte(text), 0o644); err != nil {
		return Result{}, stageError(domain.JobStatusWriting, "write subtitle file", err)
	}
	if err := p.rename(tmpPath, outPath); err != nil {
		_ = p.remove(tmpPath)
		return Result{}, stageError(domain.JobStatusWriting, "move subtitle file into place", err)
	}

	p.log.Info("subtitles written",
		"output", outPath,
		"segments", len(transcript.Segments),
		"language", transcript.Language,
	)
	return Result{
		OutputPath: outPath,
		Language:   transcript.Language,
		Segments:   len(transcript.Segments),
	}, nil
}

// OutputPath returns the subtitle path for a video: same directory,
// same base name, extension matching the format. An existing file at
// that path is overwritten.
func OutputPath(videoPath string, format domain.SubtitleFormat) string {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(filepath.Dir(videoPath), base+format.Extension())
}

// emit forwards progress updates when a callback is configured.
func emit(cb func(Update), update Update) {
	if cb != nil {
		cb(update)
	}
}

// stageError annotates component failures with the failing stage.
// Context cancellation passes through unwrapped so callers can report
// a cancelled job distinctly from a failed one.
func stageError(stage domain.JobStatus, message string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Stage: stage, Message: message, Err: err}
}

// NewForTests constructs a pipeline with injectable file operations.
func NewForTests(
	extractor Extractor,
	engine Transcriber,
	formatter Formatter,
	writeFile func(name string, data []byte, perm os.FileMode) error,
	rename func(oldpath, newpath string) error,
	remove func(name string) error,
	log *slog.Logger,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		engine:    engine,
		formatter: formatter,
		writeFile: writeFile,
		rename:    rename,
		remove:    remove,
		log:       log,
	}
}
