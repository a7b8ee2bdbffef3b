// Package store persists per-article pipeline state. The record store is the
// single source of truth for coordination: workers serialize stage execution
// through compare-and-set on a per-article version, never through in-process
// locks alone.
package store

import (
	"context"
	"errors"

	"github.com/f8ai/pubpipe/internal/article"
)

var (
	// ErrNotFound is returned when no record exists for a PMID.
	ErrNotFound = errors.New("article not found")
	// ErrExists is returned by Create when a record already exists.
	ErrExists = errors.New("article already exists")
	// ErrConflict is returned by CompareAndSet when the stored version no
	// longer matches the caller's snapshot. The caller lost the race and
	// must reload before retrying.
	ErrConflict = errors.New("version conflict")
)

// Snapshot pairs an article with the version it was read at.
type Snapshot struct {
	Article *article.Article
	Version int64
}

// RecordStore is the durable per-article state store.
type RecordStore interface {
	// Create inserts a new article at version 1. Returns ErrExists if a
	// record for the PMID is already present.
	Create(ctx context.Context, a *article.Article) error
	// Load returns the current snapshot for a PMID, or ErrNotFound.
	Load(ctx context.Context, pmid string) (*Snapshot, error)
	// CompareAndSet replaces the stored article only if the stored version
	// still equals expected, returning the new version. Returns ErrConflict
	// when another writer got there first.
	CompareAndSet(ctx context.Context, pmid string, expected int64, a *article.Article) (int64, error)
	// ListPending returns PMIDs that still have at least one pending or
	// in-progress stage, in stable order.
	ListPending(ctx context.Context) ([]string, error)
	// List returns all snapshots, in stable order. Read-only consumers
	// (feeds, status) build their views from this.
	List(ctx context.Context) ([]*Snapshot, error)
}
