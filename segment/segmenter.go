// Package segment splits a newsletter issue's HTML into typed story segments.
package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robertmeta/ainews/htmltext"
	"github.com/robertmeta/ainews/model"
)

// toolNamePattern captures the tool name in "Name - description",
// "Name: description", "Name – description" and "Name — description".
var toolNamePattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9\s.\-]+?)\s*[-–:—]`)

// MalformedIssueError reports an issue that produced no segments. It is a
// warning: callers log it and move on to the next issue.
type MalformedIssueError struct {
	GUID   string
	Reason string
}

func (e *MalformedIssueError) Error() string {
	return fmt.Sprintf("malformed issue %s: %s", e.GUID, e.Reason)
}

// Options tunes the segmentation heuristics. All length thresholds are
// exclusive minimums measured in characters of tag-stripped text.
type Options struct {
	MinToolChars      int
	MinQuickNewsChars int
	MinStoryChars     int
	MinTitleChars     int
	MaxListItems      int

	QuickNewsTitleChars    int
	QuickNewsFallbackChars int

	ToolsHeadings     []string
	QuickNewsHeadings []string
	Greetings         []string
	Pictographs       htmltext.PictographSet
}

// DefaultOptions returns the thresholds tuned for AI news newsletters.
func DefaultOptions() Options {
	return Options{
		MinToolChars:           20,
		MinQuickNewsChars:      30,
		MinStoryChars:          100,
		MinTitleChars:          5,
		MaxListItems:           5,
		QuickNewsTitleChars:    100,
		QuickNewsFallbackChars: 80,
		ToolsHeadings:          []string{"today's top tools", "top tools"},
		QuickNewsHeadings:      []string{"quick news"},
		Greetings:              []string{"good morning", "good afternoon", "good evening"},
		Pictographs:            htmltext.DefaultPictographs(),
	}
}

// Segmenter turns issue HTML into ordered segments. It holds no mutable
// state, so one Segmenter can serve many goroutines.
type Segmenter struct {
	opts Options
}

// New creates a Segmenter with the given options.
func New(opts Options) *Segmenter {
	return &Segmenter{opts: opts}
}

// NewDefault creates a Segmenter with DefaultOptions.
func NewDefault() *Segmenter {
	return New(DefaultOptions())
}

type blockKind int

const (
	blockStory blockKind = iota
	blockTools
	blockQuickNews
)

// Split segments one issue. Segments come back in reading order with
// OrderInIssue set to their index; tags are left for the classifier.
// An issue without a body, or whose body cleans to nothing, yields a
// *MalformedIssueError.
func (s *Segmenter) Split(issue model.Issue) ([]model.Segment, error) {
	if !issue.HasBody() {
		return nil, &MalformedIssueError{GUID: issue.GUID, Reason: "missing content"}
	}

	segments := s.splitByHeadings(issue.RawBody)

	if len(segments) == 0 {
		plain := htmltext.Plain(issue.RawBody)
		if plain == "" {
			return nil, &MalformedIssueError{GUID: issue.GUID, Reason: "content is empty"}
		}
		title := strings.TrimSpace(issue.Title)
		if title == "" {
			title = htmltext.FirstSentence(plain, s.opts.QuickNewsTitleChars, s.opts.QuickNewsFallbackChars)
		}
		segments = append(segments, model.Segment{
			Type:         model.TypeMainNews,
			Title:        title,
			ContentHTML:  htmltext.Clean(issue.RawBody, htmltext.ModePreserveLinks),
			ContentPlain: plain,
		})
	}

	for i := range segments {
		segments[i].OrderInIssue = i
	}
	return segments, nil
}

func (s *Segmenter) splitByHeadings(body string) []model.Segment {
	var headings []htmltext.Heading
	for _, h := range htmltext.Headings(body) {
		if !containsAny(h.Text, s.opts.Greetings) {
			headings = append(headings, h)
		}
	}

	var segments []model.Segment
	for i, h := range headings {
		end := len(body)
		if i+1 < len(headings) {
			end = headings[i+1].Start
		}
		span := body[h.End:end]

		switch s.kind(h.Text) {
		case blockTools:
			segments = append(segments, s.tools(span)...)
		case blockQuickNews:
			segments = append(segments, s.quickNews(span)...)
		default:
			if seg, ok := s.story(h.Text, span); ok {
				segments = append(segments, seg)
			}
		}
	}
	return segments
}

func (s *Segmenter) kind(headingText string) blockKind {
	switch {
	case containsAny(headingText, s.opts.ToolsHeadings):
		return blockTools
	case containsAny(headingText, s.opts.QuickNewsHeadings):
		return blockQuickNews
	}
	return blockStory
}

func (s *Segmenter) tools(span string) []model.Segment {
	var segments []model.Segment
	for _, item := range s.listItems(span) {
		plain := htmltext.Plain(item)
		m := toolNamePattern.FindStringSubmatch(plain)
		if m == nil || htmltext.Len(plain) <= s.opts.MinToolChars {
			continue
		}
		segments = append(segments, model.Segment{
			Type:         model.TypeTopTools,
			Title:        strings.TrimSpace(m[1]),
			ContentHTML:  htmltext.Clean(item, htmltext.ModePreserveLinks),
			ContentPlain: plain,
		})
	}
	return segments
}

func (s *Segmenter) quickNews(span string) []model.Segment {
	var segments []model.Segment
	for _, item := range s.listItems(span) {
		plain := htmltext.Plain(item)
		if htmltext.Len(plain) <= s.opts.MinQuickNewsChars {
			continue
		}
		segments = append(segments, model.Segment{
			Type:         model.TypeQuickNews,
			Title:        htmltext.FirstSentence(plain, s.opts.QuickNewsTitleChars, s.opts.QuickNewsFallbackChars),
			ContentHTML:  htmltext.Clean(item, htmltext.ModePreserveLinks),
			ContentPlain: plain,
		})
	}
	return segments
}

func (s *Segmenter) story(headingText, span string) (model.Segment, bool) {
	title := s.opts.Pictographs.StripLeading(headingText)
	plain := htmltext.Plain(span)
	if htmltext.Len(title) <= s.opts.MinTitleChars || htmltext.Len(plain) <= s.opts.MinStoryChars {
		return model.Segment{}, false
	}
	return model.Segment{
		Type:         model.TypeMainNews,
		Title:        title,
		ContentHTML:  htmltext.Clean(span, htmltext.ModePreserveLinks),
		ContentPlain: plain,
		Structured:   ExtractStructured(span),
	}, true
}

// listItems drops a block whose list markup cannot be parsed rather than
// failing the whole issue.
func (s *Segmenter) listItems(span string) []string {
	items, err := htmltext.ListItems(span, s.opts.MaxListItems)
	if err != nil {
		return nil
	}
	return items
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
