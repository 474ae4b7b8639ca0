package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robertmeta/ainews/feed"
	"github.com/robertmeta/ainews/model"
	"github.com/robertmeta/ainews/store"
)

// Fetcher retrieves a newsletter feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*feed.FetchResult, error)
}

// Store persists issues and their segments.
type Store interface {
	IssueExists(guid string) (bool, error)
	SaveIssue(issue *model.Issue, segments []model.Segment) error
	MarkFetched(id int64, at time.Time) error
}

// IngestReport summarizes one ingestion run for a source.
type IngestReport struct {
	Source    string   `json:"source"`
	Fetched   int      `json:"fetched"`
	NewIssues int      `json:"new_issues"`
	Skipped   int      `json:"skipped"`
	Segments  int      `json:"segments"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Ingester fetches sources, runs new issues through the pipeline and stores
// the results.
type Ingester struct {
	fetcher  Fetcher
	store    Store
	pipeline *Pipeline
	logger   *slog.Logger
	workers  int
	now      func() time.Time
}

// NewIngester creates an Ingester. workers bounds both concurrent source
// fetches and concurrent issue processing.
func NewIngester(fetcher Fetcher, st Store, p *Pipeline, logger *slog.Logger, workers int) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Ingester{
		fetcher:  fetcher,
		store:    st,
		pipeline: p,
		logger:   logger,
		workers:  workers,
		now:      time.Now,
	}
}

// Ingest fetches one source and stores every issue not seen before. A fetch
// failure is returned; per-issue problems are reported as warnings.
func (in *Ingester) Ingest(ctx context.Context, src *model.Source) (*IngestReport, error) {
	logger := in.logger.With("source", src.URL)

	result, err := in.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		logger.Error("fetch failed", "error", err)
		return nil, err
	}

	report, err := in.IngestIssues(ctx, src.ID, result.Issues)
	if err != nil {
		return nil, err
	}
	report.Source = src.URL

	if err := in.store.MarkFetched(src.ID, in.now()); err != nil {
		return nil, err
	}

	logger.Info("ingested source", "fetched", report.Fetched, "new", report.NewIssues, "skipped", report.Skipped, "segments", report.Segments)
	return report, nil
}

// IngestIssues stores already-fetched issues under sourceID (0 for none).
// Issues whose GUID is already stored are skipped. Issues that yield no
// segments are still stored so they are not re-processed, and each adds a
// warning.
func (in *Ingester) IngestIssues(ctx context.Context, sourceID int64, issues []model.Issue) (*IngestReport, error) {
	report := &IngestReport{Fetched: len(issues)}

	var fresh []model.Issue
	for _, issue := range issues {
		exists, err := in.store.IssueExists(issue.GUID)
		if err != nil {
			return nil, err
		}
		if exists {
			report.Skipped++
			continue
		}
		issue.SourceID = sourceID
		fresh = append(fresh, issue)
	}

	for _, res := range in.pipeline.ProcessAll(ctx, fresh, in.workers) {
		if res.Err != nil && !res.Malformed() {
			return nil, fmt.Errorf("failed to process issue %s: %w", res.Issue.GUID, res.Err)
		}
		if res.Err != nil {
			report.Warnings = append(report.Warnings, res.Err.Error())
		}

		issue := res.Issue
		err := in.store.SaveIssue(&issue, res.Segments)
		if errors.Is(err, store.ErrDuplicateIssue) {
			report.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}

		report.NewIssues++
		report.Segments += len(res.Segments)
	}

	return report, nil
}

// IngestAll ingests sources concurrently. Every source gets a report; a
// source that failed carries its error in the report instead.
func (in *Ingester) IngestAll(ctx context.Context, sources []*model.Source) []*IngestReport {
	reports := make([]*IngestReport, len(sources))

	var wg sync.WaitGroup
	sem := make(chan struct{}, in.workers)

	for i, src := range sources {
		wg.Add(1)
		go func(i int, src *model.Source) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			report, err := in.Ingest(ctx, src)
			if err != nil {
				report = &IngestReport{Source: src.URL, Error: err.Error()}
			}
			reports[i] = report
		}(i, src)
	}

	wg.Wait()
	return reports
}
