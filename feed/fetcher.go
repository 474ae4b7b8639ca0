// Package feed provides RSS/Atom newsletter fetching and parsing for ainews.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/robertmeta/ainews/model"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "ainews/1.0 (+https://github.com/robertmeta/ainews)"

// placeholderPrefix marks GUIDs synthesized for items with neither a GUID
// nor a link.
const placeholderPrefix = "urn:ainews:"

// FetchError reports a failure to retrieve or parse a feed. Transport
// errors, non-2xx responses and unparseable payloads all surface as a
// FetchError; the underlying cause is available through errors.Unwrap.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch feed from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchResult is a fetched feed: its metadata, the raw payload and the
// issues recovered from it.
type FetchResult struct {
	Title  string
	Link   string
	Raw    []byte
	Issues []model.Issue
}

// Fetcher handles fetching and parsing newsletter feeds.
type Fetcher struct {
	parser    *gofeed.Parser
	client    *http.Client
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// NewFetcher creates a new Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		parser:    gofeed.NewParser(),
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves a feed from a URL and extracts its issues. No retries are
// attempted; that is left to the scheduler.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	parsed, err := f.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to parse feed: %w", err)}
	}

	result := convert(parsed)
	result.Raw = raw
	if result.Link == "" {
		result.Link = url
	}
	return result, nil
}

// Parse parses feed content from a string.
func (f *Fetcher) Parse(content string) (*FetchResult, error) {
	if content == "" {
		return nil, fmt.Errorf("feed content is empty")
	}

	parsed, err := f.parser.ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	result := convert(parsed)
	result.Raw = []byte(content)
	return result, nil
}

func convert(gf *gofeed.Feed) *FetchResult {
	result := &FetchResult{
		Title: gf.Title,
		Link:  gf.Link,
	}
	for _, item := range gf.Items {
		result.Issues = append(result.Issues, convertItem(item))
	}
	return result
}

// convertItem converts a gofeed.Item to a model.Issue.
func convertItem(item *gofeed.Item) model.Issue {
	issue := model.Issue{
		GUID:  item.GUID,
		Title: item.Title,
		Link:  item.Link,
	}

	if item.PublishedParsed != nil {
		issue.PublishedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		issue.PublishedAt = item.UpdatedParsed.UTC()
	}

	// Use link as GUID if GUID is missing
	if issue.GUID == "" {
		issue.GUID = item.Link
	}
	if issue.GUID == "" {
		issue.GUID = PlaceholderGUID(item.Title, issue.PublishedAt)
	}

	issue.RawBody = body(item)
	return issue
}

// body prefers the full content:encoded payload over the summary.
func body(item *gofeed.Item) string {
	if ext, ok := item.Extensions["content"]; ok {
		for _, e := range ext["encoded"] {
			if e.Value != "" {
				return e.Value
			}
		}
	}
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// PlaceholderGUID derives a stable identifier for an item that carries no
// GUID or link, so re-fetching the same feed yields the same issue.
func PlaceholderGUID(title string, published time.Time) string {
	name := title + "|" + published.UTC().Format(time.RFC3339)
	return placeholderPrefix + uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
