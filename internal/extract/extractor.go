// Package extract converts a video's audio track into the canonical
// mono 16 kHz PCM WAV layout the transcription engine expects.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subgen/internal/execx"
)

// Asset is the extracted audio artifact, exclusively owned by the job
// that created it. Cleanup must run on every exit path.
type Asset struct {
	Path       string
	SampleRate int
	Channels   int
	Duration   time.Duration

	tempDir   string
	removeAll func(path string) error
}

// Cleanup removes the temporary directory holding the audio file.
// Safe to call more than once.
func (a *Asset) Cleanup() error {
	if a == nil || a.tempDir == "" {
		return nil
	}

	removeAll := a.removeAll
	if removeAll == nil {
		removeAll = os.RemoveAll
	}
	if err := removeAll(a.tempDir); err != nil {
		return err
	}
	a.tempDir = ""
	return nil
}

// Dir returns the temp directory owning the asset, for sibling artifacts.
func (a *Asset) Dir() string {
	return a.tempDir
}

// Error reports a failed extraction with the external tool's diagnostics.
type Error struct {
	Message    string
	CommandLog execx.CommandLog
	Err        error
}

// Error formats extraction failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("extract: %s", e.Message)
	}
	return fmt.Sprintf("extract: %s (cmd=%s exit=%d)", e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Extractor demuxes and resamples audio via ffmpeg.
type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	runner      execx.Runner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	stat        func(name string) (os.FileInfo, error)
	probe       func(path string) (wavInfo, error)
	log         *slog.Logger
}

// New constructs the production extractor with OS dependencies.
func New(log *slog.Logger) *Extractor {
	return &Extractor{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      &execx.ExecRunner{},
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
		probe:       probeWAV,
		log:         log,
	}
}

// Extract demuxes the first audio stream of videoPath into a fresh
// temporary WAV file and probes its parameters. On any failure no
// partial temp file is left behind.
func (e *Extractor) Extract(ctx context.Context, videoPath string) (*Asset, error) {
	if strings.TrimSpace(videoPath) == "" {
		return nil, &Error{Message: "input video path is required"}
	}
	if _, err := e.stat(videoPath); err != nil {
		return nil, &Error{
			Message: fmt.Sprintf("cannot access input video: %s", videoPath),
			Err:     err,
		}
	}

	probeArgs := buildFFprobeArgs(videoPath)
	probeResult, probeErr := e.runner.Run(ctx, e.ffprobePath, probeArgs...)
	probeLog := execx.LogFor(e.ffprobePath, probeArgs, probeResult)
	if probeErr != nil {
		return nil, &Error{
			Message:    "ffprobe could not inspect the input video",
			CommandLog: probeLog,
			Err:        probeErr,
		}
	}
	if strings.TrimSpace(probeResult.Stdout) == "" {
		return nil, &Error{
			Message:    "input video has no audio stream",
			CommandLog: probeLog,
		}
	}

	tempDir, err := e.mkdirTemp("", "subgen-*")
	if err != nil {
		return nil, &Error{Message: "failed to create temporary workspace", Err: err}
	}

	outPath := filepath.Join(tempDir, "audio-16k-mono.wav")
	args := buildFFmpegArgs(videoPath, outPath)
	e.log.Debug("extracting audio", "input", videoPath, "output", outPath)

	cmdResult, runErr := e.runner.Run(ctx, e.ffmpegPath, args...)
	cmdLog := execx.LogFor(e.ffmpegPath, args, cmdResult)
	if runErr != nil {
		_ = e.removeAll(tempDir)
		return nil, &Error{
			Message:    "ffmpeg audio conversion failed",
			CommandLog: cmdLog,
			Err:        runErr,
		}
	}

	if _, err := e.stat(outPath); err != nil {
		_ = e.removeAll(tempDir)
		return nil, &Error{
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: cmdLog,
			Err:        err,
		}
	}

	info, err := e.probe(outPath)
	if err != nil {
		_ = e.removeAll(tempDir)
		return nil, &Error{
			Message:    "extracted audio is not a readable WAV file",
			CommandLog: cmdLog,
			Err:        err,
		}
	}

	e.log.Info("audio extracted",
		"sample_rate", info.sampleRate,
		"channels", info.channels,
		"duration", info.duration,
	)

	return &Asset{
		Path:       outPath,
		SampleRate: info.sampleRate,
		Channels:   info.channels,
		Duration:   info.duration,
		tempDir:    tempDir,
		removeAll:  e.removeAll,
	}, nil
}

// buildFFprobeArgs lists audio stream indexes of the input, one per line.
func buildFFprobeArgs(inputPath string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		inputPath,
	}
}

// buildFFmpegArgs builds demux CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// NewAssetForTests builds an asset over a caller-owned directory.
func NewAssetForTests(path string, sampleRate, channels int, duration time.Duration, tempDir string) *Asset {
	return &Asset{
		Path:       path,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   duration,
		tempDir:    tempDir,
		removeAll:  os.RemoveAll,
	}
}

// NewForTests constructs an extractor with injectable dependencies.
func NewForTests(
	ffmpegPath string,
	ffprobePath string,
	runner execx.Runner,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
	probe func(path string) (wavInfo, error),
	log *slog.Logger,
) *Extractor {
	if probe == nil {
		probe = probeWAV
	}
	return &Extractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      runner,
		mkdirTemp:   mkdirTemp,
		removeAll:   removeAll,
		stat:        stat,
		probe:       probe,
		log:         log,
	}
}
