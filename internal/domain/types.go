package domain

// JobStatus tracks each pipeline stage for a single subtitle generation job.
type JobStatus string

const (
	JobStatusIdle         JobStatus = "idle"
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusFormatting   JobStatus = "formatting"
	JobStatusWriting      JobStatus = "writing"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// SubtitleFormat selects the rendered subtitle file format.
type SubtitleFormat string

const (
	FormatSRT SubtitleFormat = "srt"
	FormatASS SubtitleFormat = "ass"
)

// Valid reports whether the format is one of the supported outputs.
func (f SubtitleFormat) Valid() bool {
	return f == FormatSRT || f == FormatASS
}

// Extension returns the output file extension including the dot.
func (f SubtitleFormat) Extension() string {
	return "." + string(f)
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ModelID       string `yaml:"model_id" json:"modelId"`
	ModelsDir     string `yaml:"models_dir" json:"modelsDir"`
	Language      string `yaml:"language" json:"language"`
	Format        string `yaml:"format" json:"format"`
	MaxLineLength int    `yaml:"max_line_length" json:"maxLineLength"`
	LogLevel      string `yaml:"log_level" json:"logLevel"`
}

// Job stores the identity, inputs, and lifecycle status of one generation run.
type Job struct {
	ID         string         `json:"id"`
	VideoPath  string         `json:"videoPath"`
	Language   string         `json:"language"`
	Format     SubtitleFormat `json:"format"`
	OutputPath string         `json:"outputPath,omitempty"`
	Status     JobStatus      `json:"status"`
}
