package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/f8ai/pubpipe/internal/article"
	"github.com/f8ai/pubpipe/internal/store"
)

// DiscoverResult summarizes one search run.
type DiscoverResult struct {
	RunID    string
	Category string
	PMIDs    []string
	Created  int
	Updated  int
}

// Discover searches for a category term and registers every hit: unknown
// PMIDs get a fresh record with all stages pending, known ones get the
// category unioned into their set. Discovery never re-runs stages.
func (e *Engine) Discover(ctx context.Context, category, term string, max int) (*DiscoverResult, error) {
	res := &DiscoverResult{RunID: uuid.NewString(), Category: category}

	pmids, err := e.deps.Search.Search(ctx, term, max)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	res.PMIDs = pmids

	for _, pmid := range pmids {
		created, err := e.register(ctx, pmid, category)
		if err != nil {
			return res, fmt.Errorf("register %s: %w", pmid, err)
		}
		if created {
			res.Created++
			if e.deps.Events != nil {
				detail := fmt.Sprintf("run %s category %q", res.RunID, category)
				if err := e.deps.Events.Record(ctx, pmid, "", "discovered", detail); err != nil {
					e.log.Warn("event log write failed", "pmid", pmid, "error", err)
				}
			}
		} else {
			res.Updated++
		}
	}

	e.log.Info("discovery run complete", "run_id", res.RunID,
		"category", category, "found", len(pmids),
		"created", res.Created, "updated", res.Updated)
	return res, nil
}

// register creates or updates one discovered article, reporting whether a
// new record was created.
func (e *Engine) register(ctx context.Context, pmid, category string) (bool, error) {
	for {
		snap, err := e.deps.Records.Load(ctx, pmid)
		if errors.Is(err, store.ErrNotFound) {
			a := article.New(pmid, []string{category}, e.now())
			err := e.deps.Records.Create(ctx, a)
			if errors.Is(err, store.ErrExists) {
				continue // raced another discovery run; union instead
			}
			return err == nil, err
		}
		if err != nil {
			return false, err
		}

		a := snap.Article
		if !a.AddCategories([]string{category}) {
			return false, nil
		}
		a.UpdatedAt = e.now()
		_, err = e.deps.Records.CompareAndSet(ctx, pmid, snap.Version, a)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return false, err
	}
}
