// Package language guesses the language of extracted text.
package language

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	xtext "golang.org/x/text/language"

	"github.com/readaloud/readaloud/speech"
)

// Unknown is returned when the text carries no usable language signal.
const Unknown = "unknown"

// minVisibleChars is the minimum number of letters/digits required before
// the detector will guess at all.
const minVisibleChars = 3

// Detector implements speech.Detector with trigram-based detection.
// Detection is deterministic for identical input.
type Detector struct {
	// supported restricts results to languages a backend can speak. Tags
	// outside the set map to Unknown with reduced confidence.
	supported map[string]bool
}

// New creates a detector. The supported list holds two-letter tags; an empty
// list accepts every detectable language.
func New(supported ...string) *Detector {
	d := &Detector{}
	if len(supported) > 0 {
		d.supported = make(map[string]bool, len(supported))
		for _, tag := range supported {
			d.supported[tag] = true
		}
	}
	return d
}

// Detect returns a two-letter language tag and a confidence in [0, 1].
// Below the visible-character threshold it returns Unknown with zero
// confidence rather than guessing.
func (d *Detector) Detect(text string) (string, float64) {
	text = strings.TrimSpace(text)
	if speech.VisibleLength(text) < minVisibleChars {
		return Unknown, 0
	}

	// Arabic-script text is treated as Urdu before consulting the trigram
	// model, which frequently confuses Urdu with Arabic and Persian.
	if arabicScriptRatio(text) > 0.5 {
		if d.allows("ur") {
			return "ur", scaleConfidence(0.9, text)
		}
		return Unknown, 0
	}

	info := whatlanggo.Detect(text)
	tag := isoTag(info.Lang)
	if tag == "" {
		return Unknown, 0
	}

	confidence := info.Confidence
	if confidence > 1 {
		confidence = 1
	}
	if !d.allows(tag) {
		return Unknown, confidence / 2
	}
	return tag, scaleConfidence(confidence, text)
}

func (d *Detector) allows(tag string) bool {
	return d.supported == nil || d.supported[tag]
}

// isoTag converts a whatlanggo language to a canonical two-letter tag.
func isoTag(lang whatlanggo.Lang) string {
	code := whatlanggo.LangToString(lang) // ISO 639-3
	if code == "" {
		return ""
	}
	tag, err := xtext.Parse(code)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// scaleConfidence dampens confidence on short text: longer samples give the
// trigram model more to work with, capped at 0.95.
func scaleConfidence(raw float64, text string) float64 {
	n := len([]rune(text))
	if n > 1000 {
		n = 1000
	}
	scaled := raw * (0.70 + 0.25*float64(n)/1000)
	if scaled > 0.95 {
		return 0.95
	}
	return scaled
}

func arabicScriptRatio(text string) float64 {
	letters, arabic := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(arabic) / float64(letters)
}
