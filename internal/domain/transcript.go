package domain

import "time"

// Segment is one contiguous span of transcribed speech.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Duration returns the segment length. Negative spans report zero.
func (s Segment) Duration() time.Duration {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// TranscriptResult is the ordered segment sequence produced by one
// transcription run, plus the language the model actually used.
type TranscriptResult struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}
