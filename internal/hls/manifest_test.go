package hls

import (
	"errors"
	"strings"
	"testing"

	"chorus/internal/services"
	"chorus/internal/speech"
)

func TestMasterOrdersVariantsByBandwidth(t *testing.T) {
	manifest, err := Master([]Variant{
		{Label: "256k", Bandwidth: 256000},
		{Label: "64k", Bandwidth: 64000},
		{Label: "128k", Bandwidth: 128000},
	}, nil, "")
	if err != nil {
		t.Fatalf("Master returned error: %v", err)
	}

	first := strings.Index(manifest, "64k/playlist.m3u8")
	second := strings.Index(manifest, "128k/playlist.m3u8")
	third := strings.Index(manifest, "256k/playlist.m3u8")
	if first < 0 || second < 0 || third < 0 || !(first < second && second < third) {
		t.Fatalf("variants out of order:\n%s", manifest)
	}
	if !strings.Contains(manifest, `BANDWIDTH=64000,CODECS="mp4a.40.2"`) {
		t.Fatalf("missing stream-inf attributes:\n%s", manifest)
	}
	if strings.Contains(manifest, "SUBTITLES") {
		t.Fatalf("manifest without captions must not reference a subtitle group:\n%s", manifest)
	}
}

func TestMasterWithSubtitles(t *testing.T) {
	manifest, err := Master([]Variant{{Label: "128k", Bandwidth: 128000}}, &Subtitles{Language: "es"}, "")
	if err != nil {
		t.Fatalf("Master returned error: %v", err)
	}
	if !strings.Contains(manifest, `#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="subs",NAME="Spanish"`) {
		t.Fatalf("missing subtitle media entry:\n%s", manifest)
	}
	if !strings.Contains(manifest, `LANGUAGE="es",URI="captions/playlist.m3u8"`) {
		t.Fatalf("missing subtitle language and URI:\n%s", manifest)
	}
	if !strings.Contains(manifest, `,SUBTITLES="subs"`) {
		t.Fatalf("stream-inf should reference the subtitle group:\n%s", manifest)
	}
}

func TestMasterRejectsZeroVariants(t *testing.T) {
	if _, err := Master(nil, nil, ""); !errors.Is(err, services.ErrInputRejected) {
		t.Fatalf("expected ErrInputRejected, got %v", err)
	}
}

func TestMasterUsesConfiguredCodec(t *testing.T) {
	manifest, err := Master([]Variant{{Label: "64k", Bandwidth: 64000}}, nil, "mp4a.40.5")
	if err != nil {
		t.Fatalf("Master returned error: %v", err)
	}
	if !strings.Contains(manifest, `CODECS="mp4a.40.5"`) {
		t.Fatalf("configured codec not written:\n%s", manifest)
	}
}

func TestCaptionsPlaylist(t *testing.T) {
	playlist := CaptionsPlaylist(187.3)
	for _, fragment := range []string{
		"#EXT-X-TARGETDURATION:188",
		"#EXT-X-PLAYLIST-TYPE:VOD",
		"captions.vtt",
		"#EXT-X-ENDLIST",
	} {
		if !strings.Contains(playlist, fragment) {
			t.Fatalf("captions playlist missing %q:\n%s", fragment, playlist)
		}
	}
}

func TestCaptionsPlaylistUnknownDuration(t *testing.T) {
	if !strings.Contains(CaptionsPlaylist(0), "#EXT-X-TARGETDURATION:3600") {
		t.Fatal("unknown duration should use the fallback target")
	}
}

func TestWriteVTT(t *testing.T) {
	doc := WriteVTT([]speech.Cue{
		{Start: 0, End: 1.5, Text: "hello"},
		{Start: 3661.25, End: 3662, Text: "one hour in"},
	})
	if !strings.HasPrefix(doc, "WEBVTT\n\n") {
		t.Fatalf("missing WEBVTT header:\n%s", doc)
	}
	if !strings.Contains(doc, "00:00:00.000 --> 00:00:01.500\nhello") {
		t.Fatalf("first cue malformed:\n%s", doc)
	}
	if !strings.Contains(doc, "01:01:01.250 --> 01:01:02.000\none hour in") {
		t.Fatalf("hour rollover malformed:\n%s", doc)
	}
}

func TestTimestamp(t *testing.T) {
	cases := map[float64]string{
		0:       "00:00:00.000",
		-2:      "00:00:00.000",
		59.9995: "00:01:00.000",
		125.5:   "00:02:05.500",
	}
	for input, want := range cases {
		if got := Timestamp(input); got != want {
			t.Errorf("Timestamp(%v) = %q, want %q", input, got, want)
		}
	}
}

func TestLanguageName(t *testing.T) {
	if got := LanguageName("ja"); got != "Japanese" {
		t.Errorf("LanguageName(ja) = %q", got)
	}
	if got := LanguageName(""); got != "English" {
		t.Errorf("LanguageName(empty) = %q", got)
	}
	if got := LanguageName("xx"); got != "XX" {
		t.Errorf("LanguageName(xx) = %q", got)
	}
}
