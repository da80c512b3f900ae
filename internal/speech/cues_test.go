package speech

import "testing"

func TestCuesKaraokeFromWordTimestamps(t *testing.T) {
	transcript := &Transcript{
		Segments: []Segment{
			{
				Start: 1.0,
				End:   4.0,
				Text:  "hello cruel world",
				Words: []Word{
					{Start: 1.0, End: 1.5, Text: "hello"},
					{Start: 1.6, End: 2.2, Text: "cruel"},
					{Start: 2.3, End: 3.0, Text: "world"},
				},
			},
		},
	}

	cues := Cues(transcript)
	if len(cues) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(cues))
	}
	want := []Cue{
		{Start: 1.0, End: 4.0, Text: "hello"},
		{Start: 1.6, End: 4.0, Text: "hello cruel"},
		{Start: 2.3, End: 4.0, Text: "hello cruel world"},
	}
	for i, cue := range cues {
		if cue != want[i] {
			t.Fatalf("cue %d = %+v, want %+v", i, cue, want[i])
		}
	}
}

func TestCuesCoarseSegmentsWithoutWords(t *testing.T) {
	transcript := &Transcript{
		Segments: []Segment{
			{Start: 0, End: 2.5, Text: " first line "},
			{Start: 2.5, End: 5, Text: "second line"},
			{Start: 5, End: 6, Text: "   "},
		},
	}

	cues := Cues(transcript)
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Text != "first line" || cues[1].Text != "second line" {
		t.Fatalf("unexpected cue texts: %+v", cues)
	}
}

func TestCuesSingleFallbackWithoutSegments(t *testing.T) {
	cues := Cues(&Transcript{Text: "all the lyrics at once"})
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	if cues[0].Start != 0 || cues[0].End != fallbackCueSeconds {
		t.Fatalf("fallback cue interval = %v..%v", cues[0].Start, cues[0].End)
	}
}

func TestCuesOrderedByStart(t *testing.T) {
	transcript := &Transcript{
		Segments: []Segment{
			{Start: 5, End: 6, Text: "later"},
			{Start: 0, End: 2, Text: "earlier"},
			{Start: 3, End: 4, Text: "middle"},
		},
	}

	cues := Cues(transcript)
	if len(cues) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(cues))
	}
	for i := 1; i < len(cues); i++ {
		if cues[i].Start < cues[i-1].Start {
			t.Fatalf("cue starts not monotonic: cue[%d].Start=%v after cue[%d].Start=%v",
				i, cues[i].Start, i-1, cues[i-1].Start)
		}
	}
	if cues[0].Text != "earlier" || cues[2].Text != "later" {
		t.Fatalf("unexpected cue order: %+v", cues)
	}
}

func TestCuesEmptyTranscript(t *testing.T) {
	if cues := Cues(nil); cues != nil {
		t.Fatalf("nil transcript should produce no cues, got %v", cues)
	}
	if cues := Cues(&Transcript{}); cues != nil {
		t.Fatalf("empty transcript should produce no cues, got %v", cues)
	}
}
