// Package stats provides read-only aggregation over recorded sessions:
// totals, rankings, heatmaps, partner scoring, and tabular export. All
// operations tolerate empty session sets and unknown keys, returning
// zero-valued aggregates instead of errors.
package stats

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidPeriod rejects a malformed period token at the query boundary.
var ErrInvalidPeriod = errors.New("invalid period")

// ErrInvalidMetric rejects an unknown ranking metric at the query boundary.
var ErrInvalidMetric = errors.New("invalid metric")

var periodPattern = regexp.MustCompile(`^\d+d$|^all$`)

// Period is a parsed query window: either all recorded history or the last
// N days.
type Period struct {
	All  bool
	Days int
}

// ParsePeriod parses a period token of the form "Nd" or "all".
func ParsePeriod(token string) (Period, error) {
	if !periodPattern.MatchString(token) {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, token)
	}
	if token == "all" {
		return Period{All: true}, nil
	}
	days, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || days < 1 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, token)
	}
	return Period{Days: days}, nil
}

// String renders the period back to its token form.
func (p Period) String() string {
	if p.All {
		return "all"
	}
	return strconv.Itoa(p.Days) + "d"
}

// Since returns the window's lower bound, or the zero time for "all".
func (p Period) Since(now time.Time) time.Time {
	if p.All {
		return time.Time{}
	}
	return now.AddDate(0, 0, -p.Days)
}

// Metric selects what a ranking measures.
type Metric string

const (
	// MetricTime ranks by summed session duration.
	MetricTime Metric = "time"

	// MetricCount ranks by session count.
	MetricCount Metric = "count"
)

// ParseMetric validates a metric token, defaulting the empty string to time.
func ParseMetric(token string) (Metric, error) {
	switch Metric(token) {
	case "", MetricTime:
		return MetricTime, nil
	case MetricCount:
		return MetricCount, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMetric, token)
	}
}
