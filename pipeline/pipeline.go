// Package pipeline runs newsletter issues through segmentation and
// classification and persists the results.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robertmeta/ainews/classify"
	"github.com/robertmeta/ainews/model"
	"github.com/robertmeta/ainews/segment"
)

// DefaultWorkers bounds concurrent issue processing when no limit is given.
const DefaultWorkers = 8

// Result is the outcome of processing one issue. Err is set, and Segments
// empty, when the issue could not be segmented; such issues are skipped
// rather than failing the batch.
type Result struct {
	Issue    model.Issue
	Segments []model.Segment
	Err      error
}

// Malformed reports whether the issue produced no segments.
func (r Result) Malformed() bool {
	var m *segment.MalformedIssueError
	return errors.As(r.Err, &m)
}

// Pipeline segments and tags issues. It keeps no per-issue state, so one
// Pipeline is safe for concurrent use.
type Pipeline struct {
	segmenter  *segment.Segmenter
	classifier *classify.Classifier
	logger     *slog.Logger
}

// New creates a Pipeline. A nil logger falls back to slog.Default().
func New(segmenter *segment.Segmenter, classifier *classify.Classifier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		segmenter:  segmenter,
		classifier: classifier,
		logger:     logger,
	}
}

// NewDefault creates a Pipeline with the default segmenter and vocabulary.
func NewDefault(logger *slog.Logger) *Pipeline {
	return New(segment.NewDefault(), classify.NewDefault(), logger)
}

// Process segments one issue and tags every segment from its title and
// plain-text content.
func (p *Pipeline) Process(issue model.Issue) Result {
	segments, err := p.segmenter.Split(issue)
	if err != nil {
		p.logger.Warn("skipping issue", "guid", issue.GUID, "title", issue.Title, "error", err)
		return Result{Issue: issue, Err: err}
	}

	for i := range segments {
		segments[i].TagSet = p.classifier.Tag(segments[i].Title, segments[i].ContentPlain)
		segments[i].PublishedAt = issue.PublishedAt
	}

	p.logger.Debug("processed issue", "guid", issue.GUID, "segments", len(segments))
	return Result{Issue: issue, Segments: segments}
}

// ProcessAll processes issues concurrently on at most workers goroutines.
// Results are returned in input order. Issues not yet started when ctx is
// cancelled carry ctx.Err().
func (p *Pipeline) ProcessAll(ctx context.Context, issues []model.Issue, workers int) []Result {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]Result, len(issues))

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, issue := range issues {
		wg.Add(1)
		go func(i int, issue model.Issue) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{Issue: issue, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[i] = Result{Issue: issue, Err: err}
				return
			}
			results[i] = p.Process(issue)
		}(i, issue)
	}

	wg.Wait()
	return results
}
