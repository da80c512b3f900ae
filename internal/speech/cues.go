package speech

import (
	"sort"
	"strings"
)

// fallbackCueSeconds caps the single catch-all cue emitted when a
// transcript has text but no timing information.
const fallbackCueSeconds = 600

// Cue is one subtitle cue, ready for WebVTT serialization.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// Cues flattens a transcript into subtitle cues.
//
// When word timestamps are available the cues are karaoke-style: one cue
// per word, starting at that word and running to the end of its segment,
// with the text built up progressively so each cue shows everything sung
// so far in the line. Without word timing each segment becomes one cue.
// A transcript with text but no segments at all gets a single cue spanning
// the first ten minutes.
//
// Cue starts are monotonically non-decreasing in the returned slice, even
// when the engine handed back segments out of order.
func Cues(t *Transcript) []Cue {
	if t == nil {
		return nil
	}
	if len(t.Segments) == 0 {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			return nil
		}
		return []Cue{{Start: 0, End: fallbackCueSeconds, Text: text}}
	}

	var cues []Cue
	for _, segment := range t.Segments {
		if len(segment.Words) == 0 {
			text := strings.TrimSpace(segment.Text)
			if text == "" {
				continue
			}
			cues = append(cues, Cue{Start: segment.Start, End: segment.End, Text: text})
			continue
		}
		var line []string
		for _, word := range segment.Words {
			text := strings.TrimSpace(word.Text)
			if text == "" {
				continue
			}
			line = append(line, text)
			cues = append(cues, Cue{
				Start: word.Start,
				End:   segment.End,
				Text:  strings.Join(line, " "),
			})
		}
	}
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })
	return cues
}
