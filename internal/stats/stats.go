// Package stats aggregates pipeline state into the counts and distributions
// served by the status surfaces.
package stats

import (
	"context"
	"math"
	"sort"

	"github.com/f8ai/pubpipe/internal/article"
	"github.com/f8ai/pubpipe/internal/db"
	"github.com/f8ai/pubpipe/internal/store"
)

// StageCount holds per-status counts for one stage across all articles.
type StageCount struct {
	Stage      string `json:"stage"`
	Pending    int    `json:"pending"`
	InProgress int    `json:"in_progress"`
	Done       int    `json:"done"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
}

// Report is a point-in-time summary of the whole collection.
type Report struct {
	Articles   int            `json:"articles"`
	Complete   int            `json:"complete"`
	Blocked    int            `json:"blocked"`
	Scored     int            `json:"scored"`
	AvgScore   float64        `json:"avg_score"`
	P50Score   float64        `json:"p50_score"`
	P95Score   float64        `json:"p95_score"`
	Stages     []StageCount   `json:"stages"`
	Categories map[string]int `json:"categories"`
}

// Build computes a Report from record-store snapshots.
func Build(snaps []*store.Snapshot) *Report {
	r := &Report{
		Articles:   len(snaps),
		Categories: make(map[string]int),
	}

	byStage := make(map[article.Stage]*StageCount, len(article.Order))
	for _, s := range article.Order {
		byStage[s] = &StageCount{Stage: string(s)}
	}

	var scores []float64
	for _, snap := range snaps {
		a := snap.Article
		if a.Complete() {
			r.Complete++
		}
		blocked := false
		for _, s := range article.Order {
			c := byStage[s]
			switch a.Stage(s).Status {
			case article.StatusPending:
				c.Pending++
			case article.StatusInProgress:
				c.InProgress++
			case article.StatusDone:
				c.Done++
			case article.StatusFailed:
				c.Failed++
				blocked = true
			case article.StatusSkipped:
				c.Skipped++
			}
		}
		if blocked {
			r.Blocked++
		}
		if a.RelevanceScore != nil {
			r.Scored++
			scores = append(scores, *a.RelevanceScore)
		}
		for _, cat := range a.SearchCategories {
			r.Categories[cat]++
		}
	}

	for _, s := range article.Order {
		r.Stages = append(r.Stages, *byStage[s])
	}

	sort.Float64s(scores)
	r.AvgScore = avg(scores)
	r.P50Score = percentile(scores, 50)
	r.P95Score = percentile(scores, 95)
	return r
}

// Daily summarizes recent event activity from the audit database.
type Daily struct {
	DiscoveredToday int            `json:"discovered_today"`
	DiscoveredWeek  int            `json:"discovered_week"`
	EventCounts     map[string]int `json:"event_counts"`
}

// BuildDaily computes Daily stats from the event database.
func BuildDaily(ctx context.Context, d *db.DB) (*Daily, error) {
	today, err := d.DiscoveredSince(ctx, "-1 day")
	if err != nil {
		return nil, err
	}
	week, err := d.DiscoveredSince(ctx, "-7 days")
	if err != nil {
		return nil, err
	}
	counts, err := d.CountByEvent(ctx)
	if err != nil {
		return nil, err
	}
	return &Daily{DiscoveredToday: today, DiscoveredWeek: week, EventCounts: counts}, nil
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile returns the p-th percentile of sorted values using
// nearest-rank.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
