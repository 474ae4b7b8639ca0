package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/robertmeta/ainews/model"
)

// QueryOptions specifies how to query segments.
type QueryOptions struct {
	Limit     int
	Offset    int
	Type      model.SegmentType
	Topic     string
	Company   string
	SourceID  int64
	SinceTime *int64 // Unix timestamp
}

// IssueExists reports whether an issue with the given GUID is stored.
func (s *Store) IssueExists(guid string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM issues WHERE guid = ?", guid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check issue: %w", err)
	}
	return n > 0, nil
}

// SaveIssue stores an issue together with its segments and their tags in a
// single transaction. Issue and segment IDs are filled in on success. An
// issue whose GUID is already stored is left untouched and ErrDuplicateIssue
// is returned.
func (s *Store) SaveIssue(issue *model.Issue, segments []model.Segment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM issues WHERE guid = ?", issue.GUID).Scan(&n); err != nil {
		return fmt.Errorf("failed to check issue: %w", err)
	}
	if n > 0 {
		return ErrDuplicateIssue
	}

	result, err := tx.Exec(
		"INSERT INTO issues (source_id, guid, title, link, published, raw_body) VALUES (?, ?, ?, ?, ?, ?)",
		nullableID(issue.SourceID), issue.GUID, issue.Title, issue.Link, issue.PublishedAt.Unix(), issue.RawBody,
	)
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}
	issueID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	for i := range segments {
		seg := &segments[i]
		var news, details, why sql.NullString
		if seg.Structured != nil {
			news = sql.NullString{String: seg.Structured.News, Valid: true}
			details = nullableString(seg.Structured.Details)
			why = nullableString(seg.Structured.WhyItMatters)
		}

		result, err := tx.Exec(
			`INSERT INTO segments (issue_id, type, title, content_html, content_plain, order_in_issue, news, details, why_it_matters)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			issueID, string(seg.Type), seg.Title, seg.ContentHTML, seg.ContentPlain, seg.OrderInIssue, news, details, why,
		)
		if err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", seg.OrderInIssue, err)
		}
		segID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}

		for pos, topic := range seg.Topics {
			if _, err := tx.Exec("INSERT OR IGNORE INTO segment_topics (segment_id, position, topic) VALUES (?, ?, ?)", segID, pos, topic); err != nil {
				return fmt.Errorf("failed to insert segment topic: %w", err)
			}
		}
		for pos, company := range seg.Companies {
			if _, err := tx.Exec("INSERT OR IGNORE INTO segment_companies (segment_id, position, company) VALUES (?, ?, ?)", segID, pos, company); err != nil {
				return fmt.Errorf("failed to insert segment company: %w", err)
			}
		}

		seg.ID = segID
		seg.IssueID = issueID
		seg.PublishedAt = issue.PublishedAt
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit issue: %w", err)
	}
	issue.ID = issueID
	return nil
}

// GetIssue retrieves an issue, including its raw body, by ID.
func (s *Store) GetIssue(id int64) (*model.Issue, error) {
	issue := &model.Issue{}
	var sourceID sql.NullInt64
	var title, link, body sql.NullString
	var publishedUnix int64

	err := s.db.QueryRow(
		"SELECT id, source_id, guid, title, link, published, raw_body FROM issues WHERE id = ?",
		id,
	).Scan(&issue.ID, &sourceID, &issue.GUID, &title, &link, &publishedUnix, &body)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	issue.SourceID = sourceID.Int64
	issue.Title = title.String
	issue.Link = link.String
	issue.RawBody = body.String
	issue.PublishedAt = unixToTime(publishedUnix)
	return issue, nil
}

const segmentSelect = `SELECT s.id, s.issue_id, s.type, s.title, s.content_html, s.content_plain,
	s.order_in_issue, s.news, s.details, s.why_it_matters, i.published
	FROM segments s JOIN issues i ON i.id = s.issue_id`

func scanSegment(row rowScanner) (*model.Segment, error) {
	seg := &model.Segment{}
	var segType string
	var html, plain, news, details, why sql.NullString
	var publishedUnix int64

	err := row.Scan(&seg.ID, &seg.IssueID, &segType, &seg.Title, &html, &plain,
		&seg.OrderInIssue, &news, &details, &why, &publishedUnix)
	if err != nil {
		return nil, err
	}

	seg.Type = model.SegmentType(segType)
	seg.ContentHTML = html.String
	seg.ContentPlain = plain.String
	seg.PublishedAt = unixToTime(publishedUnix)
	if news.Valid {
		seg.Structured = &model.StructuredContent{
			News:         news.String,
			Details:      stringPtr(details),
			WhyItMatters: stringPtr(why),
		}
	}
	return seg, nil
}

// GetSegment retrieves a segment and its tags by ID.
func (s *Store) GetSegment(id int64) (*model.Segment, error) {
	seg, err := scanSegment(s.db.QueryRow(segmentSelect+" WHERE s.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSegmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}

	if err := s.loadTags([]*model.Segment{seg}); err != nil {
		return nil, err
	}
	return seg, nil
}

// GetSegments retrieves segments with optional filtering and pagination,
// newest issue first and in reading order within an issue.
func (s *Store) GetSegments(opts QueryOptions) ([]*model.Segment, error) {
	query := segmentSelect + " WHERE 1=1"
	args := []interface{}{}

	if opts.Type != "" {
		query += " AND s.type = ?"
		args = append(args, string(opts.Type))
	}

	if opts.Topic != "" {
		query += " AND EXISTS (SELECT 1 FROM segment_topics t WHERE t.segment_id = s.id AND t.topic = ?)"
		args = append(args, opts.Topic)
	}

	if opts.Company != "" {
		query += " AND EXISTS (SELECT 1 FROM segment_companies c WHERE c.segment_id = s.id AND c.company = ?)"
		args = append(args, opts.Company)
	}

	if opts.SourceID != 0 {
		query += " AND i.source_id = ?"
		args = append(args, opts.SourceID)
	}

	if opts.SinceTime != nil {
		query += " AND i.published >= ?"
		args = append(args, *opts.SinceTime)
	}

	query += " ORDER BY i.published DESC, i.id DESC, s.order_in_issue ASC"

	// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ?"
		args = append(args, limit)
	}

	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}

	var segments []*model.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read segments: %w", err)
	}
	rows.Close()

	if err := s.loadTags(segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// loadTags fills in topics and companies for the given segments. It must
// run after the segment rows are closed since the pool holds one connection.
func (s *Store) loadTags(segments []*model.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	byID := make(map[int64]*model.Segment, len(segments))
	args := make([]interface{}, 0, len(segments))
	for _, seg := range segments {
		seg.Topics = []string{}
		seg.Companies = []string{}
		byID[seg.ID] = seg
		args = append(args, seg.ID)
	}
	in := strings.TrimSuffix(strings.Repeat("?,", len(segments)), ",")

	if err := s.collectTags(
		"SELECT segment_id, topic FROM segment_topics WHERE segment_id IN ("+in+") ORDER BY segment_id, position",
		args, func(seg *model.Segment, v string) { seg.Topics = append(seg.Topics, v) }, byID,
	); err != nil {
		return fmt.Errorf("failed to load segment topics: %w", err)
	}

	if err := s.collectTags(
		"SELECT segment_id, company FROM segment_companies WHERE segment_id IN ("+in+") ORDER BY segment_id, position",
		args, func(seg *model.Segment, v string) { seg.Companies = append(seg.Companies, v) }, byID,
	); err != nil {
		return fmt.Errorf("failed to load segment companies: %w", err)
	}

	return nil
}

func (s *Store) collectTags(query string, args []interface{}, add func(*model.Segment, string), byID map[int64]*model.Segment) error {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var value string
		if err := rows.Scan(&id, &value); err != nil {
			return err
		}
		if seg, ok := byID[id]; ok {
			add(seg, value)
		}
	}
	return rows.Err()
}

// TopicCounts returns how many segments carry each topic, most frequent
// first. A nil since counts every stored segment.
func (s *Store) TopicCounts(since *int64) ([]model.TopicCount, error) {
	query := `SELECT t.topic, COUNT(*) FROM segment_topics t
		JOIN segments s ON s.id = t.segment_id
		JOIN issues i ON i.id = s.issue_id`
	args := []interface{}{}

	if since != nil {
		query += " WHERE i.published >= ?"
		args = append(args, *since)
	}
	query += " GROUP BY t.topic ORDER BY COUNT(*) DESC, t.topic ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query topic counts: %w", err)
	}
	defer rows.Close()

	counts := []model.TopicCount{}
	for rows.Next() {
		var tc model.TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan topic count: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}
