package events_test

import (
	"errors"
	"testing"

	"chorus/internal/events"
	"chorus/internal/services"
)

var audioExts = []string{".mp3", ".wav", ".flac"}

func newDecoder() *events.Decoder {
	return events.NewDecoder(audioExts, nil)
}

func TestDecodeTestEventYieldsNothing(t *testing.T) {
	items, err := newDecoder().Decode(`{"Event":"s3:TestEvent","Bucket":"uploads"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected zero items, got %d", len(items))
	}
}

func TestDecodeEmptyRecordsYieldsNothing(t *testing.T) {
	items, err := newDecoder().Decode(`{"Records":[]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected zero items, got %d", len(items))
	}
}

func TestDecodeMalformedBodyIsInputRejected(t *testing.T) {
	_, err := newDecoder().Decode(`{not json`)
	if !errors.Is(err, services.ErrInputRejected) {
		t.Fatalf("expected ErrInputRejected, got %v", err)
	}
}

func TestDecodePercentDecodesKeys(t *testing.T) {
	body := `{"Records":[{"s3":{"bucket":{"name":"uploads"},"object":{"key":"a+b%20c.mp3"}}}]}`
	items, err := newDecoder().Decode(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	if items[0].ObjectKey != "a b c.mp3" {
		t.Fatalf("expected decoded key %q, got %q", "a b c.mp3", items[0].ObjectKey)
	}
	if items[0].RawKey != "a+b%20c.mp3" {
		t.Fatalf("raw key not preserved: %q", items[0].RawKey)
	}
	if items[0].SourceBucket != "uploads" {
		t.Fatalf("unexpected bucket: %q", items[0].SourceBucket)
	}
}

func TestDecodeSkipsNonAudioKeys(t *testing.T) {
	body := `{"Records":[
		{"s3":{"bucket":{"name":"uploads"},"object":{"key":"cover.png"}}},
		{"s3":{"bucket":{"name":"uploads"},"object":{"key":"song.mp3"}}}
	]}`
	items, err := newDecoder().Decode(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ObjectKey != "song.mp3" {
		t.Fatalf("expected only the audio item, got %+v", items)
	}
}

func TestDecodeSkipsRecordsWithoutKey(t *testing.T) {
	body := `{"Records":[
		{"s3":{"bucket":{"name":"uploads"},"object":{}}},
		{"s3":{"bucket":{"name":"uploads"},"object":{"key":"song.wav"}}}
	]}`
	items, err := newDecoder().Decode(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ObjectKey != "song.wav" {
		t.Fatalf("expected the keyed record only, got %+v", items)
	}
}

func TestDecodeMultipleRecords(t *testing.T) {
	body := `{"Records":[
		{"s3":{"bucket":{"name":"uploads"},"object":{"key":"one.mp3"}}},
		{"s3":{"bucket":{"name":"uploads"},"object":{"key":"two.flac"}}}
	]}`
	items, err := newDecoder().Decode(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected two items, got %d", len(items))
	}
}

func TestDecodeExtensionMatchIsCaseInsensitive(t *testing.T) {
	body := `{"Records":[{"s3":{"bucket":{"name":"uploads"},"object":{"key":"LOUD.MP3"}}}]}`
	items, err := newDecoder().Decode(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected uppercase extension to match, got %+v", items)
	}
}
