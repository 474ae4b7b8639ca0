// Package htmltext holds the small HTML scanning helpers used by the
// newsletter segmenter: entity decoding, tag stripping, heading and list
// scanning, and title cleanup.
package htmltext

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Mode selects how Clean treats markup.
type Mode int

const (
	// ModePlain strips every tag.
	ModePlain Mode = iota
	// ModePreserveLinks keeps <a> and </a> tags verbatim and strips the rest.
	ModePreserveLinks
)

var (
	breakPattern     = regexp.MustCompile(`(?i)<br\s*/?>`)
	paraClosePattern = regexp.MustCompile(`(?i)</p\s*>`)
	liClosePattern   = regexp.MustCompile(`(?i)</li\s*>`)
	hClosePattern    = regexp.MustCompile(`(?i)</h[1-6]\s*>`)
	tagPattern       = regexp.MustCompile(`<[^>]+>`)
	anchorPattern    = regexp.MustCompile(`(?i)^</?a\b`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
)

// DecodeEntities replaces named and numeric character references with the
// characters they stand for. Non-breaking spaces become plain spaces.
func DecodeEntities(s string) string {
	if strings.Contains(s, "&") {
		s = html.UnescapeString(s)
	}
	return strings.ReplaceAll(s, "\u00a0", " ")
}

// Clean converts an HTML fragment to text. Line-level closings become line
// breaks (</p> a paragraph break), runs of three or more newlines collapse
// to two, and the result is trimmed.
func Clean(fragment string, mode Mode) string {
	s := DecodeEntities(fragment)
	s = breakPattern.ReplaceAllString(s, "\n")
	s = paraClosePattern.ReplaceAllString(s, "\n\n")
	s = liClosePattern.ReplaceAllString(s, "\n")
	s = hClosePattern.ReplaceAllString(s, "\n")

	if mode == ModePreserveLinks {
		s = tagPattern.ReplaceAllStringFunc(s, func(tag string) string {
			if anchorPattern.MatchString(tag) {
				return tag
			}
			return ""
		})
	} else {
		s = tagPattern.ReplaceAllString(s, "")
	}

	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Plain is shorthand for Clean(fragment, ModePlain).
func Plain(fragment string) string {
	return Clean(fragment, ModePlain)
}

// Len returns the length of s in characters.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate returns at most n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// FirstSentence returns the text up to and including the first '.', '!' or
// '?', cut to maxLen characters. When s has no terminator (or starts with
// one) it returns the first fallbackLen characters followed by "...".
func FirstSentence(s string, maxLen, fallbackLen int) string {
	if i := strings.IndexAny(s, ".!?"); i > 0 {
		return strings.TrimSpace(Truncate(s[:i+1], maxLen))
	}
	return strings.TrimSpace(Truncate(s, fallbackLen) + "...")
}
