package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/f8ai/pubpipe/internal/article"
)

// FileStore keeps one directory per PMID with an article.json envelope.
// Writes go through a temp file and rename so a crash never leaves a partial
// snapshot on disk. Read-modify-write is serialized by an in-process mutex;
// deployments that share a store across processes use the Postgres store,
// which enforces the version check in the database itself.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

var _ RecordStore = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// BaseDir returns the store's root directory.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// envelope is the on-disk snapshot format.
type envelope struct {
	Version int64            `json:"version"`
	Article *article.Article `json:"article"`
}

func (s *FileStore) articlePath(pmid string) string {
	return filepath.Join(s.baseDir, pmid, "article.json")
}

// Create inserts a new article at version 1.
func (s *FileStore) Create(ctx context.Context, a *article.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.articlePath(a.PMID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("pmid %s: %w", a.PMID, ErrExists)
	}
	return writeJSON(path, &envelope{Version: 1, Article: a})
}

// Load returns the current snapshot for a PMID.
func (s *FileStore) Load(ctx context.Context, pmid string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(pmid)
}

func (s *FileStore) load(pmid string) (*Snapshot, error) {
	var env envelope
	if err := readJSON(s.articlePath(pmid), &env); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pmid %s: %w", pmid, ErrNotFound)
		}
		return nil, err
	}
	return &Snapshot{Article: env.Article, Version: env.Version}, nil
}

// CompareAndSet replaces the snapshot only if the stored version matches.
func (s *FileStore) CompareAndSet(ctx context.Context, pmid string, expected int64, a *article.Article) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.load(pmid)
	if err != nil {
		return 0, err
	}
	if cur.Version != expected {
		return 0, fmt.Errorf("pmid %s: stored version %d, expected %d: %w", pmid, cur.Version, expected, ErrConflict)
	}

	next := expected + 1
	if err := writeJSON(s.articlePath(pmid), &envelope{Version: next, Article: a}); err != nil {
		return 0, err
	}
	return next, nil
}

// ListPending returns PMIDs with at least one pending or in-progress stage.
func (s *FileStore) ListPending(ctx context.Context) ([]string, error) {
	snaps, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var pmids []string
	for _, snap := range snaps {
		if hasOpenStage(snap.Article) {
			pmids = append(pmids, snap.Article.PMID)
		}
	}
	return pmids, nil
}

// List returns all snapshots sorted by PMID.
func (s *FileStore) List(ctx context.Context) ([]*Snapshot, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var snaps []*Snapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snap, err := s.Load(ctx, entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Article.PMID < snaps[j].Article.PMID
	})
	return snaps, nil
}

func hasOpenStage(a *article.Article) bool {
	for _, s := range article.Order {
		rec, ok := a.Stages[s]
		if !ok {
			return true
		}
		if rec.Status == article.StatusPending || rec.Status == article.StatusInProgress {
			return true
		}
	}
	return false
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = "" // prevent deferred removal
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(path, data)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
