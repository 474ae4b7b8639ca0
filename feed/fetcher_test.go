package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(data)
}

func TestFetcher_ParseRSS2(t *testing.T) {
	fetcher := NewFetcher()
	result, err := fetcher.Parse(readFixture(t, "newsletter.xml"))
	require.NoError(t, err)

	assert.Equal(t, "The Rundown AI", result.Title)
	assert.Equal(t, "https://www.therundown.ai", result.Link)
	require.Len(t, result.Issues, 3, "Should parse 3 issues from RSS feed")

	first := result.Issues[0]
	assert.Equal(t, "rundown-1001", first.GUID)
	assert.Equal(t, "OpenAI launches GPT-5", first.Title)
	assert.Equal(t, "https://www.therundown.ai/p/gpt-5", first.Link)
	assert.Equal(t, time.Date(2025, 8, 7, 10, 0, 0, 0, time.UTC), first.PublishedAt)
	assert.Contains(t, first.RawBody, "<h2>🚀 OpenAI launches GPT-5</h2>", "content:encoded should win over description")
	assert.NotContains(t, first.RawBody, "Short teaser")
}

func TestFetcher_GUIDFallbacks(t *testing.T) {
	fetcher := NewFetcher()
	result, err := fetcher.Parse(readFixture(t, "newsletter.xml"))
	require.NoError(t, err)

	// Use link when GUID is missing
	assert.Equal(t, "https://www.therundown.ai/p/teaser", result.Issues[1].GUID)
	assert.Contains(t, result.Issues[1].RawBody, "Only a description here.")

	placeholder := result.Issues[2].GUID
	assert.True(t, strings.HasPrefix(placeholder, "urn:ainews:"), "got %q", placeholder)
	assert.Equal(t, PlaceholderGUID("No identifiers", time.Date(2025, 8, 9, 10, 0, 0, 0, time.UTC)), placeholder)
	assert.False(t, result.Issues[2].HasBody(), "Missing content is not an error")

	again, err := fetcher.Parse(readFixture(t, "newsletter.xml"))
	require.NoError(t, err)
	assert.Equal(t, placeholder, again.Issues[2].GUID, "Placeholder GUID should be stable across fetches")
}

func TestPlaceholderGUID(t *testing.T) {
	day := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, PlaceholderGUID("a", day), PlaceholderGUID("a", day))
	assert.NotEqual(t, PlaceholderGUID("a", day), PlaceholderGUID("b", day))
	assert.NotEqual(t, PlaceholderGUID("a", day), PlaceholderGUID("a", day.Add(time.Hour)))
	assert.Equal(t, PlaceholderGUID("a", day), PlaceholderGUID("a", day.In(time.FixedZone("X", 3600))))
}

func TestFetcher_ParseAtom(t *testing.T) {
	fetcher := NewFetcher()
	result, err := fetcher.Parse(readFixture(t, "atom.xml"))
	require.NoError(t, err)

	assert.Equal(t, "Ben's Bites", result.Title)
	require.Len(t, result.Issues, 1)

	issue := result.Issues[0]
	assert.Equal(t, "bens-42", issue.GUID)
	assert.Equal(t, "https://bensbites.com/p/agents", issue.Link)
	assert.Equal(t, time.Date(2025, 8, 7, 9, 0, 0, 0, time.UTC), issue.PublishedAt, "Should fall back to updated date")
	assert.Contains(t, issue.RawBody, "<h2>Quick News</h2>")
}

func TestFetcher_ParseInvalidFeed(t *testing.T) {
	fetcher := NewFetcher()

	_, err := fetcher.Parse("<invalid>xml</broken>")
	assert.Error(t, err, "Should error on invalid XML")

	_, err = fetcher.Parse("")
	assert.Error(t, err, "Should error on empty string")

	_, err = fetcher.Parse("<?xml version='1.0'?><root><item>not a feed</item></root>")
	assert.Error(t, err, "Should error on non-feed XML")
}

func TestFetcher_Fetch(t *testing.T) {
	payload := readFixture(t, "newsletter.xml")
	var gotUA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	fetcher := NewFetcher(WithUserAgent("ainews-test"), WithTimeout(5*time.Second))
	result, err := fetcher.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "ainews-test", gotUA)
	assert.Equal(t, payload, string(result.Raw))
	assert.Len(t, result.Issues, 3)
}

func TestFetcher_FetchErrors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	notAFeed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer notAFeed.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"non-2xx status", notFound.URL},
		{"non-feed payload", notAFeed.URL},
		{"connection refused", closedURL},
		{"invalid URL", "://not-a-url"},
	}

	fetcher := NewFetcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := fetcher.Fetch(context.Background(), tt.url)
			assert.Nil(t, result)

			var fetchErr *FetchError
			require.True(t, errors.As(err, &fetchErr), "got %T", err)
			assert.Equal(t, tt.url, fetchErr.URL)
			assert.NotNil(t, errors.Unwrap(err))
		})
	}
}

func TestFetcher_FetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher().Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
