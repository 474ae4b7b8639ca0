package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/robertmeta/ainews/feed"
	"github.com/robertmeta/ainews/logging"
	"github.com/robertmeta/ainews/model"
	"github.com/robertmeta/ainews/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	results map[string]*feed.FetchResult
	calls   int
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*feed.FetchResult, error) {
	f.calls++
	res, ok := f.results[url]
	if !ok {
		return nil, &feed.FetchError{URL: url, Err: errors.New("connection refused")}
	}
	return res, nil
}

func newIngester(t *testing.T, fetcher Fetcher) (*Ingester, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	in := NewIngester(fetcher, s, NewDefault(logging.Discard()), logging.Discard(), 2)
	in.now = func() time.Time { return time.Date(2025, 8, 10, 6, 0, 0, 0, time.UTC) }
	return in, s
}

func TestIngester_Ingest(t *testing.T) {
	src := &model.Source{URL: "https://rundown.example/feed"}
	fetcher := &stubFetcher{results: map[string]*feed.FetchResult{
		src.URL: {Issues: []model.Issue{issueN(1), issueN(2), {GUID: "no-body", Title: "Empty"}}},
	}}
	in, s := newIngester(t, fetcher)
	require.NoError(t, s.SaveSource(src))

	report, err := in.Ingest(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, src.URL, report.Source)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 3, report.NewIssues)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 4, report.Segments)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "no-body")

	segments, err := s.GetSegments(store.QueryOptions{SourceID: src.ID})
	require.NoError(t, err)
	assert.Len(t, segments, 4)
	assert.Equal(t, "OpenAI launches GPT-5", segments[0].Title)
	assert.Equal(t, []string{"OpenAI", "Microsoft"}, segments[0].Companies)

	got, err := s.GetSource(src.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastFetched)
	assert.Equal(t, time.Date(2025, 8, 10, 6, 0, 0, 0, time.UTC), *got.LastFetched)

	// Re-ingesting the same feed stores nothing new
	again, err := in.Ingest(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 0, again.NewIssues)
	assert.Equal(t, 3, again.Skipped)
	assert.Empty(t, again.Warnings, "Malformed issues are remembered and not re-processed")

	segments, err = s.GetSegments(store.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, segments, 4)
}

func TestIngester_IngestDuplicateWithinFeed(t *testing.T) {
	in, s := newIngester(t, &stubFetcher{})

	report, err := in.IngestIssues(context.Background(), 0, []model.Issue{issueN(1), issueN(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.NewIssues)
	assert.Equal(t, 1, report.Skipped)

	segments, err := s.GetSegments(store.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, segments, 2)
}

func TestIngester_IngestFetchError(t *testing.T) {
	in, s := newIngester(t, &stubFetcher{})
	src := &model.Source{URL: "https://down.example/feed"}
	require.NoError(t, s.SaveSource(src))

	_, err := in.Ingest(context.Background(), src)
	var fetchErr *feed.FetchError
	require.True(t, errors.As(err, &fetchErr))

	got, err := s.GetSource(src.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastFetched, "A failed fetch is not recorded")
}

func TestIngester_IngestAll(t *testing.T) {
	ok := &model.Source{URL: "https://ok.example/feed"}
	down := &model.Source{URL: "https://down.example/feed"}
	fetcher := &stubFetcher{results: map[string]*feed.FetchResult{
		ok.URL: {Issues: []model.Issue{issueN(1)}},
	}}
	in, s := newIngester(t, fetcher)
	in.workers = 1 // stubFetcher is not safe for concurrent use
	require.NoError(t, s.SaveSource(ok))
	require.NoError(t, s.SaveSource(down))

	reports := in.IngestAll(context.Background(), []*model.Source{ok, down})
	require.Len(t, reports, 2)

	assert.Equal(t, ok.URL, reports[0].Source)
	assert.Equal(t, 1, reports[0].NewIssues)
	assert.Empty(t, reports[0].Error)

	assert.Equal(t, down.URL, reports[1].Source)
	assert.Contains(t, reports[1].Error, "connection refused")
	assert.Equal(t, 2, fetcher.calls)
}

func TestIngester_EndToEnd(t *testing.T) {
	payload, err := os.ReadFile("../feed/testdata/newsletter.xml")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	in, s := newIngester(t, feed.NewFetcher())
	src := &model.Source{URL: srv.URL}
	require.NoError(t, s.SaveSource(src))

	report, err := in.Ingest(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 3, report.NewIssues)
	assert.Len(t, report.Warnings, 1, "The item without content yields a warning")

	segments, err := s.GetSegments(store.QueryOptions{Type: model.TypeMainNews})
	require.NoError(t, err)

	var gpt *model.Segment
	for _, seg := range segments {
		if seg.Title == "OpenAI launches GPT-5" {
			gpt = seg
		}
	}
	require.NotNil(t, gpt)
	require.NotNil(t, gpt.Structured)
	assert.Equal(t, "OpenAI released GPT-5 to all ChatGPT users today.", gpt.Structured.News)
	assert.Equal(t, "Raises the bar for competitors.", *gpt.Structured.WhyItMatters)
	assert.True(t, gpt.HasTopic("llms"))
	assert.True(t, gpt.HasCompany("OpenAI"))
}
