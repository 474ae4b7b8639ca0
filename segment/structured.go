package segment

import (
	"regexp"
	"sort"
	"strings"

	"github.com/robertmeta/ainews/htmltext"
	"github.com/robertmeta/ainews/model"
)

// minNewsChars guards against the word "news" showing up in ordinary prose.
const minNewsChars = 10

type sectionLabel int

const (
	labelNews sectionLabel = iota
	labelDetails
	labelWhy
)

// Each label is tried inline ("News:") first, then as a bare line start.
var labelPatterns = [...][]*regexp.Regexp{
	labelNews: {
		regexp.MustCompile(`(?i)\b(the\s+)?news\s*:`),
		regexp.MustCompile(`(?im)^news\b`),
	},
	labelDetails: {
		regexp.MustCompile(`(?i)\b(the\s+)?details\s*:`),
		regexp.MustCompile(`(?im)^details\b`),
	},
	labelWhy: {
		regexp.MustCompile(`(?i)\bwhy\s+(it\s+)?matters\s*:`),
		regexp.MustCompile(`(?im)^why\s+(it\s+)?matters\b`),
	},
}

type section struct {
	label     sectionLabel
	start     int
	headerEnd int
}

// ExtractStructured looks for a News / Details / Why It Matters split in a
// story's HTML. It returns nil unless a News label and at least one of the
// other two are present and the news text is at least 10 characters long.
// Section text keeps anchor tags.
func ExtractStructured(spanHTML string) *model.StructuredContent {
	text := htmltext.Clean(spanHTML, htmltext.ModePreserveLinks)

	var found []section
	for label, patterns := range labelPatterns {
		if s, ok := findLabel(text, patterns); ok {
			s.label = sectionLabel(label)
			found = append(found, s)
		}
	}

	if !hasLabel(found, labelNews) || (!hasLabel(found, labelDetails) && !hasLabel(found, labelWhy)) {
		return nil
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })

	var news, details, why string
	for i, s := range found {
		end := len(text)
		if i+1 < len(found) {
			end = found[i+1].start
		}
		body := ""
		if s.headerEnd < end {
			body = strings.TrimSpace(text[s.headerEnd:end])
		}
		switch s.label {
		case labelNews:
			news = body
		case labelDetails:
			details = body
		case labelWhy:
			why = body
		}
	}

	if htmltext.Len(news) < minNewsChars {
		return nil
	}

	return &model.StructuredContent{
		News:         news,
		Details:      optional(details),
		WhyItMatters: optional(why),
	}
}

func findLabel(text string, patterns []*regexp.Regexp) (section, bool) {
	for _, p := range patterns {
		if loc := p.FindStringIndex(text); loc != nil {
			return section{start: loc[0], headerEnd: loc[1]}, true
		}
	}
	return section{}, false
}

func hasLabel(sections []section, label sectionLabel) bool {
	for _, s := range sections {
		if s.label == label {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
