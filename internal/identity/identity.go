// Package identity derives the stable job identifier and output namespace
// from an object key. The derivation is deterministic so redelivery of the
// same notification lands on the same output prefix.
package identity

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// uuidLength is the canonical textual UUID length (hex with dashes).
const uuidLength = 36

// fallbackPrefix seeds the placeholder identifier when a key slugs to nothing.
const fallbackPrefix = "audio"

// Identity anchors a job's idempotency: JobID names the job, OutputPrefix is
// the destination namespace all artifacts publish under.
type Identity struct {
	JobID        string
	OutputPrefix string
}

// Resolve derives the Identity for a decoded object key. Upload flows embed a
// processing UUID as the filename prefix ({uuid}-{title}.mp3); when present
// that token is the identity. Otherwise the filename stem is slugged, with a
// time-based placeholder as the last resort. The now argument is used only
// for that placeholder, keeping the function otherwise pure.
func Resolve(objectKey string, now time.Time) Identity {
	filename := path.Base(objectKey)

	if token, ok := uuidToken(filename); ok {
		return Identity{JobID: token, OutputPrefix: token}
	}

	stem := strings.TrimSuffix(filename, path.Ext(filename))
	slug := Slugify(stem)
	if slug == "" {
		slug = fmt.Sprintf("%s-%d", fallbackPrefix, now.Unix())
	}
	return Identity{JobID: slug, OutputPrefix: slug}
}

func uuidToken(filename string) (string, bool) {
	if len(filename) < uuidLength {
		return "", false
	}
	candidate := strings.ToLower(filename[:uuidLength])
	parsed, err := uuid.Parse(candidate)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Slugify folds a filename stem into a safe identifier: diacritics are
// decomposed and dropped, remaining non-ASCII bytes removed, punctuation
// stripped, and runs of separators collapsed to single hyphens.
func Slugify(value string) string {
	if value == "" {
		return ""
	}
	folded, _, err := transform.String(stripMarks, value)
	if err != nil {
		folded = value
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case r > unicode.MaxASCII:
			// Anything the mark-stripping pass could not fold is dropped.
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		}
	}

	slug := b.String()
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
