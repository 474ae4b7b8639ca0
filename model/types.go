// Package model defines the core data structures for ainews.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Source represents a subscribed newsletter feed.
type Source struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Category    string     `json:"category,omitempty"`
	LastFetched *time.Time `json:"last_fetched,omitempty"`
}

// Validate checks if the source has required fields.
func (s *Source) Validate() error {
	if s.URL == "" {
		return errors.New("source URL is required")
	}
	return nil
}

// Issue is one fetched newsletter publication (one feed item).
// Issues are immutable once fetched.
type Issue struct {
	ID          int64     `json:"id"`
	SourceID    int64     `json:"source_id"`
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	RawBody     string    `json:"-"`
}

// HasBody reports whether the issue carries a content payload.
func (i *Issue) HasBody() bool {
	return i.RawBody != ""
}

// SegmentType is the kind of unit a segment was extracted as.
type SegmentType string

const (
	TypeMainNews  SegmentType = "main_news"
	TypeTopTools  SegmentType = "top_tools"
	TypeQuickNews SegmentType = "quick_news"
)

// Valid reports whether t is one of the known segment types.
func (t SegmentType) Valid() bool {
	switch t {
	case TypeMainNews, TypeTopTools, TypeQuickNews:
		return true
	}
	return false
}

// ParseSegmentType converts a string to a SegmentType.
func ParseSegmentType(s string) (SegmentType, error) {
	t := SegmentType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid segment type %q (expected main_news, top_tools or quick_news)", s)
	}
	return t, nil
}

// StructuredContent is the optional News / Details / Why It Matters split
// of a main news segment. News is always set when the struct exists.
type StructuredContent struct {
	News         string  `json:"news"`
	Details      *string `json:"details"`
	WhyItMatters *string `json:"whyItMatters"`
}

// TagSet holds the topics and companies derived from a segment's text.
type TagSet struct {
	Topics    []string `json:"topics"`
	Companies []string `json:"companies"`
}

// Segment is one story, tool or news brief extracted from an issue.
type Segment struct {
	ID           int64              `json:"id,omitempty"`
	IssueID      int64              `json:"issue_id,omitempty"`
	Type         SegmentType        `json:"type"`
	Title        string             `json:"title"`
	ContentHTML  string             `json:"contentHtml"`
	ContentPlain string             `json:"-"`
	OrderInIssue int                `json:"orderInIssue"`
	Structured   *StructuredContent `json:"structuredContent"`
	TagSet
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// HasTopic checks if the segment is tagged with the given topic.
func (s *Segment) HasTopic(topic string) bool {
	for _, t := range s.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// HasCompany checks if the segment mentions the given company.
func (s *Segment) HasCompany(company string) bool {
	for _, c := range s.Companies {
		if c == company {
			return true
		}
	}
	return false
}

// TopicCount is the number of segments tagged with a topic.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}
