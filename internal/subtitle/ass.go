package subtitle

import (
	"fmt"
	"strings"
	"time"

	"subgen/internal/domain"
)

// assHeader is the minimal document preamble: script info, one default
// style, and the events table header.
const assHeader = `[Script Info]
Title: Generated subtitles
ScriptType: v4.00+
WrapStyle: 0
ScaledBorderAndShadow: yes
PlayResX: 384
PlayResY: 288

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,16,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,1,0,2,10,10,10,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// renderASS emits one dialogue event per segment after the preamble.
func renderASS(segments []domain.Segment) string {
	var b strings.Builder
	b.WriteString(assHeader)
	for _, seg := range segments {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(seg.Start),
			formatASSTime(seg.End),
			escapeASSText(seg.Text),
		)
	}
	return b.String()
}

// formatASSTime renders a duration as H:MM:SS.cc (centiseconds).
func formatASSTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Milliseconds() / 10
	hours := cs / 360_000
	minutes := (cs / 6000) % 60
	seconds := (cs / 100) % 60
	centis := cs % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, seconds, centis)
}

// escapeASSText keeps dialogue text on one event line.
func escapeASSText(text string) string {
	return strings.ReplaceAll(text, "\n", `\N`)
}
