package htmltext

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const variationSelector16 = '\uFE0F'

// RuneRange is an inclusive range of code points.
type RuneRange struct {
	Lo rune
	Hi rune
}

// Contains reports whether r falls inside the range.
func (rr RuneRange) Contains(r rune) bool {
	return r >= rr.Lo && r <= rr.Hi
}

// PictographSet is the set of characters treated as decorative icons in
// front of a heading.
type PictographSet []RuneRange

// DefaultPictographs covers the symbol and pictograph blocks newsletters use
// as heading icons.
func DefaultPictographs() PictographSet {
	return PictographSet{
		{Lo: 0x1F300, Hi: 0x1F9FF}, // misc symbols and pictographs, emoticons, transport, supplemental
		{Lo: 0x2600, Hi: 0x26FF},   // misc symbols
		{Lo: 0x2700, Hi: 0x27BF},   // dingbats
		{Lo: 0x1FA70, Hi: 0x1FAFF}, // symbols and pictographs extended-A
	}
}

// Contains reports whether r is in any range of the set.
func (ps PictographSet) Contains(r rune) bool {
	for _, rr := range ps {
		if rr.Contains(r) {
			return true
		}
	}
	return false
}

// StripLeading removes a single leading pictograph (and an emoji variation
// selector right after it) plus surrounding whitespace from s.
func (ps PictographSet) StripLeading(s string) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !ps.Contains(r) {
		return s
	}
	s = s[size:]
	if next, n := utf8.DecodeRuneInString(s); next == variationSelector16 {
		s = s[n:]
	}
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

// ParseRuneRange parses "1F300-1F9FF" (hex code points, optional U+ prefix)
// or a single code point such as "2705".
func ParseRuneRange(s string) (RuneRange, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	lo, err := parseCodePoint(parts[0])
	if err != nil {
		return RuneRange{}, err
	}
	hi := lo
	if len(parts) == 2 {
		if hi, err = parseCodePoint(parts[1]); err != nil {
			return RuneRange{}, err
		}
	}
	if hi < lo {
		return RuneRange{}, fmt.Errorf("invalid rune range %q: end before start", s)
	}
	return RuneRange{Lo: lo, Hi: hi}, nil
}

// ParsePictographSet parses a list of range strings. An empty list yields
// the defaults.
func ParsePictographSet(ranges []string) (PictographSet, error) {
	if len(ranges) == 0 {
		return DefaultPictographs(), nil
	}
	set := make(PictographSet, 0, len(ranges))
	for _, r := range ranges {
		rr, err := ParseRuneRange(r)
		if err != nil {
			return nil, err
		}
		set = append(set, rr)
	}
	return set, nil
}

func parseCodePoint(s string) (rune, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "U+"), "u+")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || v > unicode.MaxRune {
		return 0, fmt.Errorf("invalid code point %q", s)
	}
	return rune(v), nil
}
