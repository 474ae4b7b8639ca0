// Package opml imports and exports newsletter sources as OPML.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/robertmeta/ainews/model"
)

// DefaultTitle is the head title written by Generate.
const DefaultTitle = "ainews sources"

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a source (when XMLUrl is set) or a category folder.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	Category string    `xml:"category,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and returns its sources in document order.
// A URL listed more than once is returned once, with its first title and
// category.
func Parse(r io.Reader) ([]*model.Source, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	seen := make(map[string]bool)
	return collect(doc.Body.Outlines, "", seen, nil), nil
}

// collect walks outlines depth-first. Folders pass their text down as the
// category of children that carry none.
func collect(outlines []Outline, parentCategory string, seen map[string]bool, sources []*model.Source) []*model.Source {
	for _, o := range outlines {
		url := strings.TrimSpace(o.XMLUrl)
		if url != "" && !seen[url] {
			seen[url] = true

			src := &model.Source{URL: url, Title: o.Title, Category: o.Category}
			if src.Title == "" {
				src.Title = o.Text
			}
			if src.Category == "" {
				src.Category = parentCategory
			}
			sources = append(sources, src)
		}

		if len(o.Outlines) > 0 {
			category := o.Text
			if category == "" {
				category = parentCategory
			}
			sources = collect(o.Outlines, category, seen, sources)
		}
	}
	return sources
}

// Generate writes sources as an OPML 2.0 document. Categorised sources are
// grouped into folders sorted by name; uncategorised sources follow at the
// top level in their given order.
func Generate(w io.Writer, sources []*model.Source, created time.Time) error {
	byCategory := make(map[string][]*model.Source)
	var categories []string
	var uncategorized []*model.Source

	for _, src := range sources {
		if src.Category == "" {
			uncategorized = append(uncategorized, src)
			continue
		}
		if _, ok := byCategory[src.Category]; !ok {
			categories = append(categories, src.Category)
		}
		byCategory[src.Category] = append(byCategory[src.Category], src)
	}
	sort.Strings(categories)

	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       DefaultTitle,
			DateCreated: created.UTC().Format(time.RFC1123),
		},
		Body: Body{Outlines: []Outline{}},
	}

	for _, category := range categories {
		folder := Outline{Text: category, Title: category}
		for _, src := range byCategory[category] {
			folder.Outlines = append(folder.Outlines, sourceOutline(src))
		}
		doc.Body.Outlines = append(doc.Body.Outlines, folder)
	}
	for _, src := range uncategorized {
		doc.Body.Outlines = append(doc.Body.Outlines, sourceOutline(src))
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}
	return nil
}

func sourceOutline(src *model.Source) Outline {
	title := src.Title
	if title == "" {
		title = src.URL
	}
	return Outline{
		Type:     "rss",
		Text:     title,
		Title:    title,
		XMLUrl:   src.URL,
		Category: src.Category,
	}
}
