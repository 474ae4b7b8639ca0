package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/robertmeta/ainews/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSegment(order int, topics ...string) model.Segment {
	return model.Segment{
		Type:         model.TypeMainNews,
		Title:        fmt.Sprintf("Story %d", order),
		ContentHTML:  `Read <a href="https://example.com">more</a>`,
		ContentPlain: "Read more",
		OrderInIssue: order,
		TagSet:       model.TagSet{Topics: topics, Companies: []string{}},
	}
}

func TestStore_SaveIssueAndGetSegment(t *testing.T) {
	s := newTestStore(t)

	details := "Benchmarks improved."
	published := time.Date(2025, 8, 7, 10, 0, 0, 0, time.UTC)
	issue := &model.Issue{GUID: "rundown-1", Title: "Issue", Link: "https://example.com/1", PublishedAt: published, RawBody: "<p>x</p>"}
	segments := []model.Segment{
		{
			Type:         model.TypeMainNews,
			Title:        "OpenAI launches GPT-5",
			ContentHTML:  "News: shipped",
			ContentPlain: "News: shipped",
			OrderInIssue: 0,
			Structured:   &model.StructuredContent{News: "Model shipped today.", Details: &details},
			TagSet:       model.TagSet{Topics: []string{"llms", "tools"}, Companies: []string{"OpenAI", "Microsoft"}},
		},
		{
			Type:         model.TypeTopTools,
			Title:        "Cursor",
			ContentPlain: "Cursor - AI coding assistant",
			OrderInIssue: 1,
			TagSet:       model.TagSet{Topics: []string{"general"}, Companies: []string{}},
		},
	}

	require.NoError(t, s.SaveIssue(issue, segments))
	assert.NotZero(t, issue.ID)
	assert.NotZero(t, segments[0].ID)
	assert.Equal(t, issue.ID, segments[1].IssueID)

	exists, err := s.IssueExists("rundown-1")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.GetSegment(segments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.TypeMainNews, got.Type)
	assert.Equal(t, "OpenAI launches GPT-5", got.Title)
	assert.Equal(t, published, got.PublishedAt)
	assert.Equal(t, []string{"llms", "tools"}, got.Topics, "Topic order should survive a round trip")
	assert.Equal(t, []string{"OpenAI", "Microsoft"}, got.Companies)
	require.NotNil(t, got.Structured)
	assert.Equal(t, "Model shipped today.", got.Structured.News)
	assert.Equal(t, &details, got.Structured.Details)
	assert.Nil(t, got.Structured.WhyItMatters)

	tool, err := s.GetSegment(segments[1].ID)
	require.NoError(t, err)
	assert.Nil(t, tool.Structured)
	assert.Equal(t, []string{}, tool.Companies)

	storedIssue, err := s.GetIssue(issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", storedIssue.RawBody)
	assert.Zero(t, storedIssue.SourceID)

	_, err = s.GetSegment(9999)
	assert.ErrorIs(t, err, ErrSegmentNotFound)
}

func TestStore_SaveIssueDuplicate(t *testing.T) {
	s := newTestStore(t)

	first := &model.Issue{GUID: "dup", PublishedAt: time.Now()}
	require.NoError(t, s.SaveIssue(first, []model.Segment{testSegment(0, "llms")}))

	second := &model.Issue{GUID: "dup", PublishedAt: time.Now()}
	err := s.SaveIssue(second, []model.Segment{testSegment(0, "robotics"), testSegment(1, "robotics")})
	assert.ErrorIs(t, err, ErrDuplicateIssue)
	assert.Zero(t, second.ID)

	all, err := s.GetSegments(QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "Duplicate issue must not add segments")
}

func TestStore_SaveIssueRollsBack(t *testing.T) {
	s := newTestStore(t)

	// Two segments with the same order violate UNIQUE(issue_id, order_in_issue)
	issue := &model.Issue{GUID: "broken", PublishedAt: time.Now()}
	err := s.SaveIssue(issue, []model.Segment{testSegment(0), testSegment(0)})
	require.Error(t, err)

	exists, err := s.IssueExists("broken")
	require.NoError(t, err)
	assert.False(t, exists, "Failed save should leave no issue behind")
}

func seedIssues(t *testing.T, s *Store, n int) {
	t.Helper()
	base := time.Date(2025, 8, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		issue := &model.Issue{
			GUID:        fmt.Sprintf("issue-%d", i),
			Title:       fmt.Sprintf("Issue %d", i),
			PublishedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}
		segs := []model.Segment{testSegment(0, "llms"), testSegment(1, "hardware")}
		segs[1].Type = model.TypeQuickNews
		if i%2 == 0 {
			segs[0].Companies = []string{"OpenAI"}
		}
		require.NoError(t, s.SaveIssue(issue, segs))
	}
}

func TestStore_GetSegments_Order(t *testing.T) {
	s := newTestStore(t)
	seedIssues(t, s, 3)

	segments, err := s.GetSegments(QueryOptions{})
	require.NoError(t, err)
	require.Len(t, segments, 6)

	// newest issue first, reading order within an issue
	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1], segments[i]
		if prev.IssueID == cur.IssueID {
			assert.Less(t, prev.OrderInIssue, cur.OrderInIssue)
		} else {
			assert.True(t, prev.PublishedAt.After(cur.PublishedAt))
		}
	}
	assert.Equal(t, time.Date(2025, 8, 3, 8, 0, 0, 0, time.UTC), segments[0].PublishedAt)
}

func TestStore_GetSegments_Pagination(t *testing.T) {
	s := newTestStore(t)
	seedIssues(t, s, 25)

	page1, err := s.GetSegments(QueryOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page1, 10, "Should get 10 segments")

	page2, err := s.GetSegments(QueryOptions{Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Len(t, page2, 10, "Should get next 10 segments")
	assert.NotEqual(t, page1[0].ID, page2[0].ID, "Offset should return different segments")

	last, err := s.GetSegments(QueryOptions{Limit: 10, Offset: 45})
	require.NoError(t, err)
	assert.Len(t, last, 5, "Should get remaining 5 segments")

	tail, err := s.GetSegments(QueryOptions{Offset: 40})
	require.NoError(t, err)
	assert.Len(t, tail, 10, "Offset without limit returns the rest")
}

func TestStore_GetSegments_Filters(t *testing.T) {
	s := newTestStore(t)
	seedIssues(t, s, 4)

	since := time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC).Unix()

	tests := []struct {
		name string
		opts QueryOptions
		want int
	}{
		{"all", QueryOptions{}, 8},
		{"by type", QueryOptions{Type: model.TypeQuickNews}, 4},
		{"by topic", QueryOptions{Topic: "hardware"}, 4},
		{"by company", QueryOptions{Company: "OpenAI"}, 2},
		{"unknown topic", QueryOptions{Topic: "space"}, 0},
		{"since", QueryOptions{SinceTime: &since}, 4},
		{"combined", QueryOptions{Topic: "llms", Company: "OpenAI", SinceTime: &since}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetSegments(tt.opts)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			for _, seg := range got {
				if tt.opts.Topic != "" {
					assert.True(t, seg.HasTopic(tt.opts.Topic))
				}
				if tt.opts.Company != "" {
					assert.True(t, seg.HasCompany(tt.opts.Company))
				}
			}
		})
	}
}

func TestStore_GetSegments_BySource(t *testing.T) {
	s := newTestStore(t)

	a := &model.Source{URL: "https://a.example/rss"}
	b := &model.Source{URL: "https://b.example/rss"}
	require.NoError(t, s.SaveSource(a))
	require.NoError(t, s.SaveSource(b))

	require.NoError(t, s.SaveIssue(&model.Issue{SourceID: a.ID, GUID: "a1"}, []model.Segment{testSegment(0, "llms")}))
	require.NoError(t, s.SaveIssue(&model.Issue{SourceID: b.ID, GUID: "b1"}, []model.Segment{testSegment(0, "llms"), testSegment(1, "llms")}))

	got, err := s.GetSegments(QueryOptions{SourceID: b.ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_TopicCounts(t *testing.T) {
	s := newTestStore(t)
	seedIssues(t, s, 3)

	extra := testSegment(0, "llms", "robotics")
	require.NoError(t, s.SaveIssue(&model.Issue{GUID: "extra", PublishedAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)}, []model.Segment{extra}))

	counts, err := s.TopicCounts(nil)
	require.NoError(t, err)
	assert.Equal(t, []model.TopicCount{
		{Topic: "llms", Count: 4},
		{Topic: "hardware", Count: 3},
		{Topic: "robotics", Count: 1},
	}, counts)

	since := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC).Unix()
	counts, err = s.TopicCounts(&since)
	require.NoError(t, err)
	assert.Equal(t, []model.TopicCount{
		{Topic: "hardware", Count: 3},
		{Topic: "llms", Count: 3},
	}, counts)
}
