package store

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/robertmeta/ainews/model"
)

// durationPattern matches duration strings like "7d", "2w", "3m", "1y", "1yr"
var durationPattern = regexp.MustCompile(`^(\d+)(d|w|m|y|yr)$`)

// PeriodAll disables the time window.
const PeriodAll = "all"

// Periods are the time windows offered by the segment feed.
var Periods = []string{"1d", "1w", "1m", "3m", "6m", "1yr", PeriodAll}

// ParseDuration parses a duration string like "7d", "2w", "3m", "1y".
// Returns the duration or an error if the format is invalid.
//
// Supported units:
//   - d: days
//   - w: weeks (7 days)
//   - m: months (30 days, approximation)
//   - y, yr: years (365 days, approximation)
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration string is empty")
	}

	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (expected format: <number><unit>, e.g., 7d, 2w, 3m, 1y)", s)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid number in duration: %s", matches[1])
	}

	day := 24 * time.Hour
	switch matches[2] {
	case "d":
		return time.Duration(num) * day, nil
	case "w":
		return time.Duration(num) * 7 * day, nil
	case "m":
		return time.Duration(num) * 30 * day, nil
	default:
		return time.Duration(num) * 365 * day, nil
	}
}

// SinceToUnixTime converts a "since" duration string (e.g., "7d") to a Unix
// timestamp measured back from now. "all" and "" return nil.
func SinceToUnixTime(since string, now time.Time) (*int64, error) {
	if since == "" || since == PeriodAll {
		return nil, nil
	}

	duration, err := ParseDuration(since)
	if err != nil {
		return nil, err
	}

	sinceUnix := now.Add(-duration).Unix()
	return &sinceUnix, nil
}

// BuildQueryOptions constructs QueryOptions from CLI flags or query parameters.
func BuildQueryOptions(limit, offset int, since, segType, topic, company string) (QueryOptions, error) {
	opts := QueryOptions{
		Limit:   limit,
		Offset:  offset,
		Topic:   topic,
		Company: company,
	}

	if limit < 0 || offset < 0 {
		return opts, fmt.Errorf("limit and offset must not be negative")
	}

	if segType != "" {
		t, err := model.ParseSegmentType(segType)
		if err != nil {
			return opts, err
		}
		opts.Type = t
	}

	sinceUnix, err := SinceToUnixTime(since, time.Now())
	if err != nil {
		return opts, fmt.Errorf("failed to parse since: %w", err)
	}
	opts.SinceTime = sinceUnix

	return opts, nil
}
