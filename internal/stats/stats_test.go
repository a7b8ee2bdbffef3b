package stats

import (
	"context"
	"testing"
	"time"

	"github.com/f8ai/pubpipe/internal/article"
	"github.com/f8ai/pubpipe/internal/db"
	"github.com/f8ai/pubpipe/internal/store"
)

func snapshot(pmid string, mutate func(*article.Article)) *store.Snapshot {
	a := article.New(pmid, []string{"Cannabis Formulation"}, time.Now())
	if mutate != nil {
		mutate(a)
	}
	return &store.Snapshot{Article: a, Version: 1}
}

func markDone(a *article.Article, stages ...article.Stage) {
	for _, s := range stages {
		rec := a.Stage(s)
		rec.Status = article.StatusDone
		rec.Attempts = 1
	}
}

func TestBuildEmpty(t *testing.T) {
	r := Build(nil)
	if r.Articles != 0 || r.Complete != 0 || r.AvgScore != 0 {
		t.Errorf("empty report = %+v", r)
	}
	if len(r.Stages) != len(article.Order) {
		t.Errorf("stage rows = %d, want %d", len(r.Stages), len(article.Order))
	}
}

func TestBuildCounts(t *testing.T) {
	complete := snapshot("1", func(a *article.Article) {
		markDone(a, article.Order...)
		score := 0.8
		a.RelevanceScore = &score
	})
	blocked := snapshot("2", func(a *article.Article) {
		markDone(a, article.StageMetadata, article.StageAbstract)
		ft := a.Stage(article.StageFullText)
		ft.Status = article.StatusFailed
		ft.Attempts = 3
		a.Stage(article.StageOcr).Status = article.StatusSkipped
		score := 0.4
		a.RelevanceScore = &score
		a.AddCategories([]string{"Cannabis Extraction"})
	})
	fresh := snapshot("3", nil)

	r := Build([]*store.Snapshot{complete, blocked, fresh})

	if r.Articles != 3 || r.Complete != 1 || r.Blocked != 1 || r.Scored != 2 {
		t.Errorf("report = articles %d complete %d blocked %d scored %d",
			r.Articles, r.Complete, r.Blocked, r.Scored)
	}
	if r.AvgScore != 0.6 {
		t.Errorf("avg score = %v, want 0.6", r.AvgScore)
	}
	if r.Categories["Cannabis Formulation"] != 3 || r.Categories["Cannabis Extraction"] != 1 {
		t.Errorf("categories = %v", r.Categories)
	}

	var ft StageCount
	for _, s := range r.Stages {
		if s.Stage == string(article.StageFullText) {
			ft = s
		}
	}
	if ft.Done != 1 || ft.Failed != 1 || ft.Pending != 1 {
		t.Errorf("fulltext counts = %+v", ft)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	if got := percentile(sorted, 50); got != 0.3 {
		t.Errorf("p50 = %v, want 0.3", got)
	}
	if got := percentile(sorted, 95); got != 0.5 {
		t.Errorf("p95 = %v, want 0.5", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("p50 of empty = %v, want 0", got)
	}
}

func TestBuildDaily(t *testing.T) {
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer d.Close()
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()

	if err := d.Record(ctx, "1", "", "discovered", ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := d.Record(ctx, "1", article.StageMetadata, "stage_done", ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	daily, err := BuildDaily(ctx, d)
	if err != nil {
		t.Fatalf("BuildDaily: %v", err)
	}
	if daily.DiscoveredToday != 1 || daily.DiscoveredWeek != 1 {
		t.Errorf("discovered = %d/%d, want 1/1", daily.DiscoveredToday, daily.DiscoveredWeek)
	}
	if daily.EventCounts["stage_done"] != 1 {
		t.Errorf("event counts = %v", daily.EventCounts)
	}
}
