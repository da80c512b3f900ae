package speech

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"chorus/internal/services"
)

// CommandRunner executes an external command and returns combined output.
// Tests substitute this to avoid spawning real processes.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// LocalEngine transcribes with a whisper-compatible CLI that writes JSON
// results next to the audio.
type LocalEngine struct {
	binary string
	model  string
	runner CommandRunner
}

// NewLocalEngine builds a local engine around the given binary and model
// name.
func NewLocalEngine(binary, model string) *LocalEngine {
	return &LocalEngine{
		binary: binary,
		model:  model,
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// WithRunner replaces the command runner. Test hook.
func (e *LocalEngine) WithRunner(runner CommandRunner) *LocalEngine {
	e.runner = runner
	return e
}

type localWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type localSegment struct {
	Start float64     `json:"start"`
	End   float64     `json:"end"`
	Text  string      `json:"text"`
	Words []localWord `json:"words"`
}

type localResult struct {
	Language string         `json:"language"`
	Text     string         `json:"text"`
	Segments []localSegment `json:"segments"`
}

func (e *LocalEngine) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	outputDir := filepath.Dir(audioPath)
	args := []string{
		audioPath,
		"--model", e.model,
		"--output_format", "json",
		"--output_dir", outputDir,
		"--word_timestamps", "True",
	}
	output, err := e.runner(ctx, e.binary, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "speech", "local",
			"transcription command failed: "+tail(output), err)
	}

	resultPath := jsonResultPath(audioPath)
	payload, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "speech", "local", "read transcription result", err)
	}
	var decoded localResult
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "speech", "local", "decode transcription result", err)
	}
	return decoded.transcript(), nil
}

func (r localResult) transcript() *Transcript {
	t := &Transcript{
		Language: r.Language,
		Text:     strings.TrimSpace(r.Text),
	}
	for _, segment := range r.Segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		mapped := Segment{Start: segment.Start, End: segment.End, Text: text}
		for _, word := range segment.Words {
			wordText := strings.TrimSpace(word.Word)
			if wordText == "" {
				continue
			}
			mapped.Words = append(mapped.Words, Word{Start: word.Start, End: word.End, Text: wordText})
		}
		t.Segments = append(t.Segments, mapped)
	}
	if t.Text == "" {
		var parts []string
		for _, segment := range t.Segments {
			parts = append(parts, segment.Text)
		}
		t.Text = strings.Join(parts, " ")
	}
	return t
}

func jsonResultPath(audioPath string) string {
	base := filepath.Base(audioPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(audioPath), base+".json")
}

// tail keeps the end of command output for error detail; the start of a
// long transcription log is rarely where the failure is.
func tail(output []byte) string {
	const limit = 400
	text := strings.TrimSpace(string(output))
	if len(text) <= limit {
		return text
	}
	return "..." + text[len(text)-limit:]
}
