package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/f8ai/pubpipe/internal/article"
)

// PostgresStore is a RecordStore backed by Postgres. The version check runs
// inside the UPDATE itself, so compare-and-set holds across independent
// processes sharing one database.
type PostgresStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ RecordStore = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS articles (
    pmid       TEXT PRIMARY KEY,
    version    BIGINT NOT NULL,
    snapshot   JSONB NOT NULL,
    pending    BOOLEAN NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_articles_pending ON articles(pending) WHERE pending;
`

// OpenPostgres connects to Postgres via pgx and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Create inserts a new article at version 1.
func (s *PostgresStore) Create(ctx context.Context, a *article.Article) error {
	snapshot, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}

	query, args, err := s.sb.Insert("articles").
		Columns("pmid", "version", "snapshot", "pending").
		Values(a.PMID, 1, snapshot, hasOpenStage(a)).
		Suffix("ON CONFLICT (pmid) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert article %s: %w", a.PMID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pmid %s: %w", a.PMID, ErrExists)
	}
	return nil
}

// Load returns the current snapshot for a PMID.
func (s *PostgresStore) Load(ctx context.Context, pmid string) (*Snapshot, error) {
	query, args, err := s.sb.Select("version", "snapshot").
		From("articles").
		Where(sq.Eq{"pmid": pmid}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var version int64
	var raw []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&version, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pmid %s: %w", pmid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load article %s: %w", pmid, err)
	}

	var a article.Article
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("unmarshal article %s: %w", pmid, err)
	}
	return &Snapshot{Article: &a, Version: version}, nil
}

// CompareAndSet replaces the snapshot only if the stored version matches.
func (s *PostgresStore) CompareAndSet(ctx context.Context, pmid string, expected int64, a *article.Article) (int64, error) {
	snapshot, err := json.Marshal(a)
	if err != nil {
		return 0, fmt.Errorf("marshal article: %w", err)
	}

	next := expected + 1
	query, args, err := s.sb.Update("articles").
		Set("version", next).
		Set("snapshot", snapshot).
		Set("pending", hasOpenStage(a)).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"pmid": pmid, "version": expected}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update article %s: %w", pmid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return next, nil
	}

	// Distinguish a lost race from a missing row.
	if _, err := s.Load(ctx, pmid); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("pmid %s: expected version %d: %w", pmid, expected, ErrConflict)
}

// ListPending returns PMIDs with at least one pending or in-progress stage.
func (s *PostgresStore) ListPending(ctx context.Context) ([]string, error) {
	query, args, err := s.sb.Select("pmid").
		From("articles").
		Where(sq.Eq{"pending": true}).
		OrderBy("pmid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var pmids []string
	for rows.Next() {
		var pmid string
		if err := rows.Scan(&pmid); err != nil {
			return nil, fmt.Errorf("scan pmid: %w", err)
		}
		pmids = append(pmids, pmid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return pmids, nil
}

// List returns all snapshots sorted by PMID.
func (s *PostgresStore) List(ctx context.Context) ([]*Snapshot, error) {
	query, args, err := s.sb.Select("version", "snapshot").
		From("articles").
		OrderBy("pmid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		var version int64
		var raw []byte
		if err := rows.Scan(&version, &raw); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		var a article.Article
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("unmarshal article: %w", err)
		}
		snaps = append(snaps, &Snapshot{Article: &a, Version: version})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return snaps, nil
}
