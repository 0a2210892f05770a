// Package language normalizes the language codes that flow through the
// dubbing pipeline: configured and requested target languages, the source
// language reported by transcription, and the names shown to operators.
//
// Codes are BCP 47 tags parsed with golang.org/x/text. Common English names
// ("Bengali", "bangla") are accepted as aliases.
package language
