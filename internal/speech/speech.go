// Package speech produces transcripts for source audio and shapes them
// into subtitle cues. Two engines are provided: a remote HTTP service and
// a local whisper-compatible CLI. Both return the same Transcript model so
// downstream caption handling never cares which produced it.
package speech

import "context"

// Word is a single word with its spoken interval, in seconds.
type Word struct {
	Start float64
	End   float64
	Text  string
}

// Segment is a contiguous span of speech. Words is populated only when the
// engine reports word-level timestamps.
type Segment struct {
	Start float64
	End   float64
	Text  string
	Words []Word
}

// Transcript is the full recognition result for one audio file.
type Transcript struct {
	Language string
	Text     string
	Segments []Segment
}

// Empty reports whether the transcript carries no usable text.
func (t *Transcript) Empty() bool {
	return t == nil || (t.Text == "" && len(t.Segments) == 0)
}

// Engine converts an audio file into a transcript.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcript, error)
}
