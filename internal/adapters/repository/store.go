// Package repository defines the session store interface and errors.
package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/etudekit/etude/internal/domain/model"
)

// Bucket selects the activity aggregation granularity.
type Bucket string

// Activity buckets.
const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// Aggregate summarizes all stored attempts for one lesson.
type Aggregate struct {
	Attempts int     `json:"attempts"`
	Average  float64 `json:"average"`
	High     int     `json:"high"`
	Last     int     `json:"last"`
}

// ActivityPoint is one bucketed practice-activity row.
type ActivityPoint struct {
	Label       string `json:"label"` // bucket start, formatted per granularity
	Sessions    int    `json:"sessions"`
	DurationSec int    `json:"duration_sec"`
}

// Store provides durable access to finished session summaries, keyed by
// session id. Summaries are immutable once saved.
type Store interface {
	// Save persists a finished session summary.
	Save(ctx context.Context, s model.SessionSummary) error

	// Get returns the summary for a session id.
	// Returns ErrNotFound when the id is unknown.
	Get(ctx context.Context, id string) (model.SessionSummary, error)

	// History returns all summaries for a lesson, oldest first.
	History(ctx context.Context, lessonUID string) ([]model.SessionSummary, error)

	// Aggregate computes attempt count and average/high/last score for a lesson.
	Aggregate(ctx context.Context, lessonUID string) (Aggregate, error)

	// Activity buckets practice time by day, week, or month.
	Activity(ctx context.Context, bucket Bucket) ([]ActivityPoint, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) int
}

// ValidBucket reports whether b is a known granularity.
func ValidBucket(b Bucket) bool {
	switch b {
	case BucketDay, BucketWeek, BucketMonth:
		return true
	}
	return false
}

// bucketLabel formats the bucket a timestamp falls into.
func bucketLabel(t time.Time, b Bucket) string {
	switch b {
	case BucketWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case BucketMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// aggregateOf folds summaries (oldest first) into an Aggregate.
func aggregateOf(history []model.SessionSummary) Aggregate {
	var agg Aggregate
	if len(history) == 0 {
		return agg
	}
	sum := 0
	for _, s := range history {
		score := s.Performance.Score
		sum += score
		if score > agg.High {
			agg.High = score
		}
	}
	agg.Attempts = len(history)
	agg.Average = float64(sum) / float64(len(history))
	agg.Last = history[len(history)-1].Performance.Score
	return agg
}

// activityOf buckets summaries by EndedAt, ordered by label.
func activityOf(all []model.SessionSummary, b Bucket) []ActivityPoint {
	byLabel := make(map[string]*ActivityPoint)
	var order []string
	for _, s := range all {
		label := bucketLabel(s.EndedAt.UTC(), b)
		p, ok := byLabel[label]
		if !ok {
			p = &ActivityPoint{Label: label}
			byLabel[label] = p
			order = append(order, label)
		}
		p.Sessions++
		p.DurationSec += s.DurationSec
	}
	sort.Strings(order) // labels are lexically chronological
	points := make([]ActivityPoint, 0, len(order))
	for _, label := range order {
		points = append(points, *byLabel[label])
	}
	return points
}
