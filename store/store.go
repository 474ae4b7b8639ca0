// Package store provides SQLite database operations for ainews.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robertmeta/ainews/model"
	_ "modernc.org/sqlite"
)

var (
	ErrSourceNotFound  = errors.New("source not found")
	ErrIssueNotFound   = errors.New("issue not found")
	ErrSegmentNotFound = errors.New("segment not found")
	ErrDuplicateIssue  = errors.New("issue already stored")
)

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway, and an in-memory database only
	// exists on the connection that created it.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and indexes.
func (s *Store) createSchema() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		title TEXT,
		category TEXT,
		last_fetched INTEGER
	);

	CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER,
		guid TEXT UNIQUE NOT NULL,
		title TEXT,
		link TEXT,
		published INTEGER NOT NULL,
		raw_body TEXT,
		FOREIGN KEY (source_id) REFERENCES sources(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		content_html TEXT,
		content_plain TEXT,
		order_in_issue INTEGER NOT NULL,
		news TEXT,
		details TEXT,
		why_it_matters TEXT,
		FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE,
		UNIQUE(issue_id, order_in_issue)
	);

	CREATE TABLE IF NOT EXISTS segment_topics (
		segment_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		topic TEXT NOT NULL,
		PRIMARY KEY (segment_id, topic),
		FOREIGN KEY (segment_id) REFERENCES segments(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS segment_companies (
		segment_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		company TEXT NOT NULL,
		PRIMARY KEY (segment_id, company),
		FOREIGN KEY (segment_id) REFERENCES segments(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_issues_published ON issues(published DESC);
	CREATE INDEX IF NOT EXISTS idx_issues_source_id ON issues(source_id);
	CREATE INDEX IF NOT EXISTS idx_segments_issue_id ON segments(issue_id);
	CREATE INDEX IF NOT EXISTS idx_segments_type ON segments(type);
	CREATE INDEX IF NOT EXISTS idx_segment_topics_topic ON segment_topics(topic);
	CREATE INDEX IF NOT EXISTS idx_segment_companies_company ON segment_companies(company);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSource saves a source to the database.
// If the source has an ID of 0, it will be inserted. Otherwise, it will be updated.
func (s *Store) SaveSource(src *model.Source) error {
	if err := src.Validate(); err != nil {
		return err
	}

	if src.ID == 0 {
		result, err := s.db.Exec(
			"INSERT INTO sources (url, title, category) VALUES (?, ?, ?)",
			src.URL, src.Title, src.Category,
		)
		if err != nil {
			return fmt.Errorf("failed to insert source: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		src.ID = id
		return nil
	}

	_, err := s.db.Exec(
		"UPDATE sources SET url = ?, title = ?, category = ? WHERE id = ?",
		src.URL, src.Title, src.Category, src.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return nil
}

const sourceColumns = "id, url, title, category, last_fetched"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*model.Source, error) {
	src := &model.Source{}
	var title, category sql.NullString
	var lastFetched sql.NullInt64

	if err := row.Scan(&src.ID, &src.URL, &title, &category, &lastFetched); err != nil {
		return nil, err
	}

	src.Title = title.String
	src.Category = category.String
	if lastFetched.Valid {
		t := unixToTime(lastFetched.Int64)
		src.LastFetched = &t
	}
	return src, nil
}

// GetSource retrieves a source by ID.
func (s *Store) GetSource(id int64) (*model.Source, error) {
	src, err := scanSource(s.db.QueryRow("SELECT "+sourceColumns+" FROM sources WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

// GetSourceByURL retrieves a source by its feed URL.
func (s *Store) GetSourceByURL(url string) (*model.Source, error) {
	src, err := scanSource(s.db.QueryRow("SELECT "+sourceColumns+" FROM sources WHERE url = ?", url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

// GetAllSources retrieves all sources ordered by ID.
func (s *Store) GetAllSources() ([]*model.Source, error) {
	rows, err := s.db.Query("SELECT " + sourceColumns + " FROM sources ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []*model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}

	return sources, rows.Err()
}

// DeleteSource deletes a source along with its issues and their segments.
func (s *Store) DeleteSource(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		"DELETE FROM segment_topics WHERE segment_id IN (SELECT s.id FROM segments s JOIN issues i ON i.id = s.issue_id WHERE i.source_id = ?)",
		"DELETE FROM segment_companies WHERE segment_id IN (SELECT s.id FROM segments s JOIN issues i ON i.id = s.issue_id WHERE i.source_id = ?)",
		"DELETE FROM segments WHERE issue_id IN (SELECT id FROM issues WHERE source_id = ?)",
		"DELETE FROM issues WHERE source_id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to delete source data: %w", err)
		}
	}

	result, err := tx.Exec("DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrSourceNotFound
	}

	return tx.Commit()
}

// MarkFetched records when a source was last fetched.
func (s *Store) MarkFetched(id int64, at time.Time) error {
	_, err := s.db.Exec("UPDATE sources SET last_fetched = ? WHERE id = ?", at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark source fetched: %w", err)
	}
	return nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Helper to convert Unix timestamp to time.Time
func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}
