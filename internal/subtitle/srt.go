package subtitle

import (
	"fmt"
	"strings"
	"time"

	"subgen/internal/domain"
)

// renderSRT emits sequential 1-based cues separated by blank lines.
func renderSRT(segments []domain.Segment, maxLineLength int) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTime(seg.Start), formatSRTTime(seg.End))
		for _, line := range wrapText(seg.Text, maxLineLength) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// formatSRTTime renders a duration as HH:MM:SS,mmm.
func formatSRTTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / 3_600_000
	minutes := (ms / 60_000) % 60
	seconds := (ms / 1000) % 60
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

// wrapText splits text into lines no longer than maxLineLength
// characters, breaking on word boundaries. Words longer than the limit
// occupy their own line unbroken.
func wrapText(text string, maxLineLength int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	lines := make([]string, 0, 1)
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > maxLineLength {
			lines = append(lines, current)
			current = word
			continue
		}
		current += " " + word
	}
	return append(lines, current)
}
