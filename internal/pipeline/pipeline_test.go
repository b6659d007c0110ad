package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"subgen/internal/domain"
	"subgen/internal/extract"
	"subgen/internal/subtitle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExtractor struct {
	asset *extract.Asset
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, videoPath string) (*extract.Asset, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.asset, nil
}

type fakeEngine struct {
	result domain.TranscriptResult
	err    error
	// hook runs before returning, with the call's context.
	hook func(ctx context.Context)
}

func (f *fakeEngine) Transcribe(ctx context.Context, asset *extract.Asset, languageName string) (domain.TranscriptResult, error) {
	if f.hook != nil {
		f.hook(ctx)
	}
	if f.err != nil {
		return domain.TranscriptResult{}, f.err
	}
	if err := ctx.Err(); err != nil {
		return domain.TranscriptResult{}, err
	}
	return f.result, nil
}

func sampleTranscript() domain.TranscriptResult {
	return domain.TranscriptResult{
		Language: "en",
		Segments: []domain.Segment{
			{Start: 0, End: 1200 * time.Millisecond, Text: "Hello there."},
			{Start: 1200 * time.Millisecond, End: 3 * time.Second, Text: "General greeting."},
		},
	}
}

func testAsset(t *testing.T) *extract.Asset {
	t.Helper()
	tempDir := t.TempDir()
	audioPath := filepath.Join(tempDir, "audio-16k-mono.wav")
	if err := os.WriteFile(audioPath, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return extract.NewAssetForTests(audioPath, 16000, 1, 3*time.Second, tempDir)
}

func testPipeline(extractor Extractor, engine Transcriber) *Pipeline {
	return New(extractor, engine, subtitle.New(discardLogger(), subtitle.Options{}), discardLogger())
}

func TestRunWritesSubtitlesBesideVideo(t *testing.T) {
	videoDir := t.TempDir()
	videoPath := filepath.Join(videoDir, "episode.mkv")
	if err := os.WriteFile(videoPath, []byte("video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}

	asset := testAsset(t)
	tempDir := asset.Dir()
	p := testPipeline(&fakeExtractor{asset: asset}, &fakeEngine{result: sampleTranscript()})

	var stages []domain.JobStatus
	res, err := p.Run(context.Background(), Request{
		VideoPath: videoPath,
		Language:  "English",
		Format:    domain.FormatSRT,
		OnProgress: func(u Update) {
			stages = append(stages, u.Stage)
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantOut := filepath.Join(videoDir, "episode.srt")
	if res.OutputPath != wantOut {
		t.Fatalf("output path = %q, want %q", res.OutputPath, wantOut)
	}
	if res.Language != "en" || res.Segments != 2 {
		t.Fatalf("result = %+v", res)
	}

	data, err := os.ReadFile(wantOut)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "Hello there.") {
		t.Fatalf("output missing cue text:\n%s", data)
	}
	if _, err := os.Stat(wantOut + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp output file left behind")
	}
	if _, err := os.Stat(tempDir); !os.IsNotExist(err) {
		t.Fatalf("audio temp dir not cleaned up")
	}

	wantStages := []domain.JobStatus{
		domain.JobStatusExtracting,
		domain.JobStatusTranscribing,
		domain.JobStatusFormatting,
		domain.JobStatusWriting,
	}
	if len(stages) != len(wantStages) {
		t.Fatalf("stages = %v, want %v", stages, wantStages)
	}
	for i, want := range wantStages {
		if stages[i] != want {
			t.Fatalf("stage[%d] = %s, want %s", i, stages[i], want)
		}
	}
}

func TestRunOverwritesExistingOutput(t *testing.T) {
	videoDir := t.TempDir()
	videoPath := filepath.Join(videoDir, "movie.mp4")
	outPath := filepath.Join(videoDir, "movie.srt")
	if err := os.WriteFile(outPath, []byte("stale subtitles"), 0o644); err != nil {
		t.Fatalf("write stale output: %v", err)
	}

	p := testPipeline(&fakeExtractor{asset: testAsset(t)}, &fakeEngine{result: sampleTranscript()})
	if _, err := p.Run(context.Background(), Request{VideoPath: videoPath, Format: domain.FormatSRT}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.Contains(string(data), "stale") {
		t.Fatalf("existing output not overwritten")
	}
}

func TestRunExtractionFailureReportsStage(t *testing.T) {
	extractErr := errors.New("no audio stream")
	p := testPipeline(&fakeExtractor{err: extractErr}, &fakeEngine{})

	_, err := p.Run(context.Background(), Request{VideoPath: "in.mkv", Format: domain.FormatSRT})
	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatalf("error = %v, want *pipeline.Error", err)
	}
	if pErr.Stage != domain.JobStatusExtracting {
		t.Fatalf("stage = %s, want %s", pErr.Stage, domain.JobStatusExtracting)
	}
	if !errors.Is(err, extractErr) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestRunTranscriptionFailureCleansAsset(t *testing.T) {
	asset := testAsset(t)
	tempDir := asset.Dir()
	p := testPipeline(&fakeExtractor{asset: asset}, &fakeEngine{err: errors.New("whisper exploded")})

	_, err := p.Run(context.Background(), Request{VideoPath: "in.mkv", Format: domain.FormatSRT})
	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatalf("error = %v, want *pipeline.Error", err)
	}
	if pErr.Stage != domain.JobStatusTranscribing {
		t.Fatalf("stage = %s, want %s", pErr.Stage, domain.JobStatusTranscribing)
	}
	if _, statErr := os.Stat(tempDir); !os.IsNotExist(statErr) {
		t.Fatalf("audio temp dir not cleaned up after failure")
	}
}

func TestRunCancellationSurfacesContextError(t *testing.T) {
	asset := testAsset(t)
	tempDir := asset.Dir()

	ctx, cancel := context.WithCancel(context.Background())
	engine := &fakeEngine{hook: func(context.Context) { cancel() }}
	p := testPipeline(&fakeExtractor{asset: asset}, engine)

	_, err := p.Run(ctx, Request{VideoPath: "in.mkv", Format: domain.FormatSRT})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	var pErr *Error
	if errors.As(err, &pErr) {
		t.Fatalf("cancellation wrapped as pipeline error: %v", err)
	}
	if _, statErr := os.Stat(tempDir); !os.IsNotExist(statErr) {
		t.Fatalf("audio temp dir not cleaned up after cancellation")
	}
}

func TestRunRenameFailureRemovesTempFile(t *testing.T) {
	videoDir := t.TempDir()
	videoPath := filepath.Join(videoDir, "clip.mkv")

	var removed []string
	p := NewForTests(
		&fakeExtractor{asset: testAsset(t)},
		&fakeEngine{result: sampleTranscript()},
		subtitle.New(discardLogger(), subtitle.Options{}),
		os.WriteFile,
		func(oldpath, newpath string) error { return errors.New("cross-device link") },
		func(name string) error {
			removed = append(removed, name)
			return os.Remove(name)
		},
		discardLogger(),
	)

	_, err := p.Run(context.Background(), Request{VideoPath: videoPath, Format: domain.FormatSRT})
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Stage != domain.JobStatusWriting {
		t.Fatalf("error = %v, want writing stage error", err)
	}

	wantTmp := filepath.Join(videoDir, "clip.srt.tmp")
	if len(removed) != 1 || removed[0] != wantTmp {
		t.Fatalf("removed = %v, want [%s]", removed, wantTmp)
	}
	if _, statErr := os.Stat(wantTmp); !os.IsNotExist(statErr) {
		t.Fatalf("temp output file left behind")
	}
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	extractor := &fakeExtractor{}
	p := testPipeline(extractor, &fakeEngine{})

	_, err := p.Run(context.Background(), Request{VideoPath: "in.mkv", Format: domain.SubtitleFormat("vtt")})
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Stage != domain.JobStatusFormatting {
		t.Fatalf("error = %v, want formatting stage error", err)
	}
	if extractor.calls != 0 {
		t.Fatalf("extractor called %d times for invalid request", extractor.calls)
	}
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		video  string
		format domain.SubtitleFormat
		want   string
	}{
		{filepath.Join("media", "ep01.mkv"), domain.FormatSRT, filepath.Join("media", "ep01.srt")},
		{filepath.Join("media", "ep01.mkv"), domain.FormatASS, filepath.Join("media", "ep01.ass")},
		{"noext", domain.FormatSRT, "noext.srt"},
		{filepath.Join("a", "b.c.d.mp4"), domain.FormatSRT, filepath.Join("a", "b.c.d.srt")},
	}
	for _, tc := range cases {
		if got := OutputPath(tc.video, tc.format); got != tc.want {
			t.Errorf("OutputPath(%q, %s) = %q, want %q", tc.video, tc.format, got, tc.want)
		}
	}
}
