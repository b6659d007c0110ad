// Package subtitle renders transcript segments into SRT or ASS text.
// Rendering is deterministic: the same transcript and format always
// produce byte-identical output.
package subtitle

import (
	"fmt"
	"log/slog"
	"time"

	"subgen/internal/domain"
)

// DefaultMaxLineLength is the character threshold for SRT line wrapping.
const DefaultMaxLineLength = 42

// Options configures rendering behavior.
type Options struct {
	MaxLineLength int
}

// Formatter renders transcripts. It holds no per-job state.
type Formatter struct {
	maxLineLength int
	log           *slog.Logger
}

// New constructs a formatter with the given options.
func New(log *slog.Logger, opts Options) *Formatter {
	maxLine := opts.MaxLineLength
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Formatter{maxLineLength: maxLine, log: log}
}

// Render produces subtitle text in the requested format. Overlapping
// segment timings are clamped so the emitted cues are strictly ordered
// and non-overlapping; a segment whose clamped duration would not be
// positive is dropped with a logged diagnostic.
func (f *Formatter) Render(result domain.TranscriptResult, format domain.SubtitleFormat) (string, error) {
	var unit time.Duration
	switch format {
	case domain.FormatSRT:
		unit = time.Millisecond
	case domain.FormatASS:
		unit = 10 * time.Millisecond
	default:
		return "", fmt.Errorf("subtitle: unsupported format %q", format)
	}

	cues, dropped := clampSegments(result.Segments, unit)
	if dropped > 0 {
		f.log.Warn("dropped segments with non-positive clamped duration",
			"dropped", dropped,
			"kept", len(cues),
		)
	}

	switch format {
	case domain.FormatSRT:
		return renderSRT(cues, f.maxLineLength), nil
	default:
		return renderASS(cues), nil
	}
}

// clampSegments enforces strictly ordered, non-overlapping cue
// intervals. When segment N overlaps segment N+1, N's end is clamped
// to N+1's start minus one time unit. Segments that end up without a
// positive duration are dropped; the input slice is never mutated.
func clampSegments(segments []domain.Segment, unit time.Duration) ([]domain.Segment, int) {
	kept := make([]domain.Segment, 0, len(segments))
	dropped := 0

	for i, seg := range segments {
		if i+1 < len(segments) {
			next := segments[i+1]
			if seg.End > next.Start {
				seg.End = next.Start - unit
			}
		}
		if seg.End-seg.Start < unit {
			dropped++
			continue
		}
		kept = append(kept, seg)
	}
	return kept, dropped
}
