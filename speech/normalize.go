package speech

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n+`)
)

// NormalizeText applies the minimal cleaning every extracted text goes
// through before language detection and synthesis: HTML entities decoded,
// whitespace runs collapsed, edges trimmed.
func NormalizeText(text string) string {
	text = html.UnescapeString(text)
	text = spaceRun.ReplaceAllString(text, " ")
	text = newlineRun.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// PrepareForSynthesis flattens normalized text into a single line the way
// backends expect it, applying language-specific punctuation mapping. Urdu
// full stops and commas are mapped to their Latin equivalents so both
// backends pause correctly.
func PrepareForSynthesis(text, language string) string {
	if language == "ur" {
		text = strings.NewReplacer("۔", ".", "،", ",").Replace(text)
	}
	text = strings.ReplaceAll(text, "\n", " ")
	text = spaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// VisibleLength counts characters that carry language signal: letters and
// digits, ignoring whitespace and punctuation.
func VisibleLength(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
