// Package hls assembles the playback artifacts around the encoded
// renditions: the master manifest, the captions sub-playlist, and WebVTT
// subtitle serialization.
package hls

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"chorus/internal/encoding"
	"chorus/internal/services"
)

const (
	// MasterName is the entry-point playlist filename.
	MasterName = "master.m3u8"

	// CaptionsDirName holds the subtitle playlist and VTT file, relative
	// to the output root.
	CaptionsDirName = "captions"

	// CaptionsPlaylistName wraps the VTT file in a media playlist so HLS
	// players can select it as a rendition.
	CaptionsPlaylistName = "playlist.m3u8"

	// CaptionsFileName is the WebVTT document referenced by the captions
	// playlist.
	CaptionsFileName = "captions.vtt"

	subtitleGroupID = "subs"

	// DefaultCodec is the RFC 6381 string for AAC-LC, the codec the
	// default encoder profiles produce.
	DefaultCodec = "mp4a.40.2"
)

// Variant describes one rendition entry in the master manifest.
type Variant struct {
	Label     string
	Bandwidth int
}

// Subtitles describes the optional caption track.
type Subtitles struct {
	Language string
}

// Master renders the master playlist. Variants must be non-empty and are
// written in ascending bandwidth order regardless of input order. When
// subs is non-nil every variant references the subtitle group. codec is
// the CODECS attribute for every variant; empty means DefaultCodec.
func Master(variants []Variant, subs *Subtitles, codec string) (string, error) {
	if len(variants) == 0 {
		return "", services.Wrap(services.ErrInputRejected, "manifest", "master", "no variants to publish", nil)
	}
	if codec == "" {
		codec = DefaultCodec
	}
	ordered := make([]Variant, len(variants))
	copy(ordered, variants)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Bandwidth < ordered[j].Bandwidth })

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	if subs != nil {
		fmt.Fprintf(&b,
			"#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=%q,NAME=%q,DEFAULT=YES,AUTOSELECT=YES,FORCED=NO,LANGUAGE=%q,URI=%q\n",
			subtitleGroupID,
			LanguageName(subs.Language),
			LanguageCode(subs.Language),
			CaptionsDirName+"/"+CaptionsPlaylistName)
	}
	for _, variant := range ordered {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,CODECS=%q", variant.Bandwidth, codec)
		if subs != nil {
			fmt.Fprintf(&b, ",SUBTITLES=%q", subtitleGroupID)
		}
		b.WriteString("\n")
		b.WriteString(variant.Label + "/" + encoding.PlaylistName + "\n")
	}
	return b.String(), nil
}

// CaptionsPlaylist renders the single-entry media playlist wrapping the
// VTT document. duration is the audio length in seconds; unknown durations
// pass zero and get the fallback target.
func CaptionsPlaylist(duration float64) string {
	target := int(math.Ceil(duration))
	if target <= 0 {
		target = 3600
	}
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", target)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	fmt.Fprintf(&b, "#EXTINF:%d.0,\n", target)
	b.WriteString(CaptionsFileName + "\n")
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// VariantsFromRenditions adapts encoder output for the manifest.
func VariantsFromRenditions(renditions []encoding.Rendition) []Variant {
	variants := make([]Variant, 0, len(renditions))
	for _, rendition := range renditions {
		variants = append(variants, Variant{Label: rendition.Label, Bandwidth: rendition.Bandwidth})
	}
	return variants
}
