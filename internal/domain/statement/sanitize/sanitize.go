// Package sanitize cleans transaction description text recovered from
// scanned or exported statements. Extracted text routinely carries control
// characters, card-mask fragments and encoding artifacts; everything emitted
// by the engine passes through here first.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

// MaxDescriptionLength bounds sanitized descriptions.
const MaxDescriptionLength = 200

// validRatio is the share of characters that must belong to the allowed set
// for a string to be accepted. Below this the text is treated as encoding
// corruption and replaced by a placeholder.
const validRatio = 0.8

var (
	spacePattern = regexp.MustCompile(`\s+`)

	// noisePatterns match fragments that add nothing to a description:
	// card masks, exchange-rate and fee annotations, reference boilerplate.
	noisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)[*xX•]{3,}[\s-]*\d{2,4}`),
		regexp.MustCompile(`(?i)card\s+ending\s+\d{2,4}`),
		regexp.MustCompile(`(?i)(?:rate|курс)[\s:]*\d+[.,]\d+`),
		regexp.MustCompile(`(?i)(?:fee|такса)[\s:]*\d+[.,]\d+\s*(?:EUR|BGN|лв\.?|€)?`),
		regexp.MustCompile(`(?i)(?:ref(?:erence)?|реф)[.:\s]+[A-Z0-9/-]{6,}`),
		regexp.MustCompile(`(?i)авт\.?\s*код[.:\s]*[A-Z0-9]{4,}`),
	}
)

// Clean strips control characters and noise tokens, collapses whitespace and
// truncates to MaxDescriptionLength. It does not judge validity; see Valid.
func Clean(raw string) string {
	s := norm.NFC.String(raw)

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '�' {
			return ' '
		}
		return r
	}, s)

	for _, p := range noisePatterns {
		s = p.ReplaceAllString(s, " ")
	}

	s = spacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if runes := []rune(s); len(runes) > MaxDescriptionLength {
		s = strings.TrimSpace(string(runes[:MaxDescriptionLength]))
	}
	return s
}

// Valid reports whether at least 80% of the characters belong to the
// allowed set: printable ASCII plus extended Latin and Cyrillic letters.
// Strings shorter than two characters are never valid descriptions.
func Valid(s string) bool {
	runes := []rune(s)
	if len(runes) < 2 {
		return false
	}
	allowed := 0
	for _, r := range runes {
		if allowedRune(r) {
			allowed++
		}
	}
	return float64(allowed) >= validRatio*float64(len(runes))
}

func allowedRune(r rune) bool {
	switch {
	case r >= 0x20 && r < 0x7F: // printable ASCII
		return true
	case unicode.Is(unicode.Cyrillic, r):
		return true
	case unicode.Is(unicode.Latin, r): // extended Latin letters
		return true
	case r == '€' || r == '№':
		return true
	}
	return false
}

// Describe cleans raw text and falls back to the direction placeholder when
// the result fails the validity check. The returned string is never empty.
func Describe(raw string, dir statement.Direction) string {
	s := Clean(raw)
	if !Valid(s) {
		return dir.Placeholder()
	}
	return s
}
