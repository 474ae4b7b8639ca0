package htmltext

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var headingPattern = regexp.MustCompile(`(?is)<h[23][^>]*>(.*?)</h[23]\s*>`)

// Heading is a level-2 or level-3 heading found in a document.
type Heading struct {
	// Start is the byte offset of the opening tag.
	Start int
	// End is the byte offset just past the closing tag.
	End int
	// Text is the heading's inner HTML cleaned in plain mode.
	Text string
}

// Headings returns every <h2> and <h3> element of doc in document order.
func Headings(doc string) []Heading {
	matches := headingPattern.FindAllStringSubmatchIndex(doc, -1)
	headings := make([]Heading, 0, len(matches))
	for _, m := range matches {
		headings = append(headings, Heading{
			Start: m[0],
			End:   m[1],
			Text:  Plain(doc[m[2]:m[3]]),
		})
	}
	return headings
}

// ListItems returns the outer HTML of the top-level <li> elements of
// fragment in document order, at most limit of them (no cap when limit <= 0).
// Items nested inside another item are part of their parent's HTML.
func ListItems(fragment string, limit int) ([]string, error) {
	if !strings.Contains(strings.ToLower(fragment), "<li") {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("failed to parse list fragment: %w", err)
	}

	var items []string
	var renderErr error
	doc.Find("li").
		FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.ParentsFiltered("li").Length() == 0
		}).
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if limit > 0 && len(items) >= limit {
				return false
			}
			outer, err := goquery.OuterHtml(s)
			if err != nil {
				renderErr = err
				return false
			}
			items = append(items, outer)
			return true
		})

	if renderErr != nil {
		return nil, fmt.Errorf("failed to render list item: %w", renderErr)
	}
	return items, nil
}
