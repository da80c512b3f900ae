package hls

import (
	"fmt"
	"strings"

	"chorus/internal/speech"
)

// WriteVTT serializes cues as a WebVTT document. Timestamps use the
// HH:MM:SS.mmm form players expect even below one hour.
func WriteVTT(cues []speech.Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, cue := range cues {
		b.WriteString(Timestamp(cue.Start))
		b.WriteString(" --> ")
		b.WriteString(Timestamp(cue.End))
		b.WriteString("\n")
		b.WriteString(cue.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// Timestamp formats seconds as HH:MM:SS.mmm. Negative values clamp to
// zero.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	hours := millis / 3_600_000
	millis -= hours * 3_600_000
	minutes := millis / 60_000
	millis -= minutes * 60_000
	secs := millis / 1000
	millis -= secs * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}
