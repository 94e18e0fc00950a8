package extract

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// UnknownLanguage is reported when detection is not reliable.
const UnknownLanguage = "unknown"

// DetectLanguage guesses the ISO 639-1 code of text.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return UnknownLanguage
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return UnknownLanguage
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return UnknownLanguage
}

// normalizeLangTag reduces a BCP 47 tag such as "en-US" to its primary subtag.
func normalizeLangTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}
