package extract

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// wavInfo holds the decoded parameters of an extracted audio file.
type wavInfo struct {
	sampleRate int
	channels   int
	duration   time.Duration
}

// probeWAV reads the WAV header and reports sample rate, channel count,
// and total duration.
func probeWAV(path string) (wavInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return wavInfo{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return wavInfo{}, fmt.Errorf("invalid wav file: %s", path)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return wavInfo{}, fmt.Errorf("wav duration: %w", err)
	}

	return wavInfo{
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
		duration:   duration,
	}, nil
}
