package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/f8ai/pubpipe/internal/article"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestCreateAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := article.New("39781554", []string{"Cannabis Formulation"}, testNow)
	if err := s.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	snap, err := s.Load(ctx, "39781554")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
	if snap.Article.PMID != "39781554" {
		t.Errorf("PMID = %q, want %q", snap.Article.PMID, "39781554")
	}
	if len(snap.Article.SearchCategories) != 1 || snap.Article.SearchCategories[0] != "Cannabis Formulation" {
		t.Errorf("SearchCategories = %v, want [Cannabis Formulation]", snap.Article.SearchCategories)
	}
	for _, st := range article.Order {
		rec := snap.Article.Stage(st)
		if rec.Status != article.StatusPending {
			t.Errorf("stage %s status = %q, want pending", st, rec.Status)
		}
		if rec.Attempts != 0 {
			t.Errorf("stage %s attempts = %d, want 0", st, rec.Attempts)
		}
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, article.New("1", nil, testNow)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Create(ctx, article.New("1", nil, testNow))
	if !errors.Is(err, ErrExists) {
		t.Errorf("second Create error = %v, want ErrExists", err)
	}
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "999")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load error = %v, want ErrNotFound", err)
	}
}

func TestCompareAndSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := article.New("10", nil, testNow)
	if err := s.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := a.Stage(article.StageMetadata)
	rec.Status = article.StatusInProgress
	rec.Attempts = 1
	rec.StartedAt = testNow

	v, err := s.CompareAndSet(ctx, "10", 1, a)
	if err != nil {
		t.Fatalf("CompareAndSet: %v", err)
	}
	if v != 2 {
		t.Errorf("new version = %d, want 2", v)
	}

	got, err := s.Load(ctx, "10")
	if err != nil {
		t.Fatalf("Load after CAS: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
	if got.Article.Stage(article.StageMetadata).Status != article.StatusInProgress {
		t.Errorf("status = %q, want in_progress", got.Article.Stage(article.StageMetadata).Status)
	}
}

func TestCompareAndSetConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := article.New("10", nil, testNow)
	if err := s.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.CompareAndSet(ctx, "10", 1, a); err != nil {
		t.Fatalf("first CAS: %v", err)
	}

	// Stale version must be rejected.
	_, err := s.CompareAndSet(ctx, "10", 1, a)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("stale CAS error = %v, want ErrConflict", err)
	}
}

func TestCompareAndSetConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, article.New("77", nil, testNow)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// All workers race on the same expected version; exactly one may win.
	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := s.Load(ctx, "77")
			if err != nil {
				t.Errorf("Load: %v", err)
				return
			}
			rec := snap.Article.Stage(article.StageMetadata)
			rec.Status = article.StatusInProgress
			rec.Attempts++
			if _, err := s.CompareAndSet(ctx, "77", 1, snap.Article); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrConflict) {
				t.Errorf("CAS: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("CAS wins = %d, want exactly 1", wins)
	}
}

func TestListPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	open := article.New("2", nil, testNow)
	if err := s.Create(ctx, open); err != nil {
		t.Fatalf("Create: %v", err)
	}

	complete := article.New("1", nil, testNow)
	for _, st := range article.Order {
		rec := complete.Stage(st)
		rec.Status = article.StatusDone
		rec.Attempts = 1
	}
	if err := s.Create(ctx, complete); err != nil {
		t.Fatalf("Create: %v", err)
	}

	pmids, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pmids) != 1 || pmids[0] != "2" {
		t.Errorf("ListPending = %v, want [2]", pmids)
	}
}

func TestListSorted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, pmid := range []string{"30", "10", "20"} {
		if err := s.Create(ctx, article.New(pmid, nil, testNow)); err != nil {
			t.Fatalf("Create %s: %v", pmid, err)
		}
	}

	snaps, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"10", "20", "30"}
	if len(snaps) != len(want) {
		t.Fatalf("List returned %d snapshots, want %d", len(snaps), len(want))
	}
	for i, snap := range snaps {
		if snap.Article.PMID != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, snap.Article.PMID, want[i])
		}
	}
}
