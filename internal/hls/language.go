package hls

import "strings"

// languageNames maps ISO 639-1 codes to the display names used in the
// subtitle media entry. Codes outside the table fall back to the code
// itself, uppercased, so the manifest stays valid for unlisted languages.
var languageNames = map[string]string{
	"ar": "Arabic",
	"bn": "Bengali",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"hi": "Hindi",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"ml": "Malayalam",
	"mr": "Marathi",
	"nl": "Dutch",
	"pa": "Punjabi",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"ta": "Tamil",
	"te": "Telugu",
	"th": "Thai",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"ur": "Urdu",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// LanguageName resolves a display name for a language code. An empty code
// resolves to English, matching the dominant catalog language.
func LanguageName(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "English"
	}
	if name, ok := languageNames[code]; ok {
		return name
	}
	return strings.ToUpper(code)
}

// LanguageCode normalizes a code for the LANGUAGE attribute, defaulting to
// "en" when the engine reported nothing.
func LanguageCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "en"
	}
	return code
}
