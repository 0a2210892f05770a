package language

import (
	"errors"
	"fmt"
	"strings"

	textlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrEmpty is returned by Canonical for blank input.
var ErrEmpty = errors.New("language is required")

// English names accepted in place of a tag.
var aliases = map[string]string{
	"arabic":     "ar",
	"bangla":     "bn",
	"bengali":    "bn",
	"chinese":    "zh",
	"english":    "en",
	"french":     "fr",
	"german":     "de",
	"hindi":      "hi",
	"indonesian": "id",
	"japanese":   "ja",
	"korean":     "ko",
	"portuguese": "pt",
	"russian":    "ru",
	"spanish":    "es",
	"tamil":      "ta",
	"urdu":       "ur",
}

// Canonical returns the canonical BCP 47 form of code, e.g. "BEN" -> "bn",
// "hi-in" -> "hi-IN", "Bengali" -> "bn".
func Canonical(code string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" {
		return "", ErrEmpty
	}
	if mapped, ok := aliases[trimmed]; ok {
		return mapped, nil
	}
	tag, err := textlang.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("unknown language %q: %w", strings.TrimSpace(code), err)
	}
	return tag.String(), nil
}

// ToISO2 reduces code to its base language, preferring the two-letter
// ISO 639-1 form. Unrecognized input yields "".
func ToISO2(code string) string {
	canonical, err := Canonical(code)
	if err != nil {
		return ""
	}
	base, _ := textlang.Make(canonical).Base()
	if value := base.String(); value != "und" {
		return value
	}
	return ""
}

// DisplayName returns the English name of code, "Unknown" for blank input,
// or the upper-cased code when it is not recognized.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	canonical, err := Canonical(trimmed)
	if err != nil {
		return strings.ToUpper(trimmed)
	}
	if name := display.English.Tags().Name(textlang.Make(canonical)); name != "" {
		return name
	}
	return strings.ToUpper(trimmed)
}

// Label formats code for display as "bn (Bengali)".
func Label(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	name := DisplayName(code)
	if strings.EqualFold(name, code) {
		return code
	}
	return fmt.Sprintf("%s (%s)", code, name)
}
