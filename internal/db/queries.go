package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/f8ai/pubpipe/internal/article"
)

// ArticleEvent represents a row in the article_events table.
type ArticleEvent struct {
	ID        int
	PMID      string
	Stage     string
	Event     string
	Detail    string
	Timestamp string
}

// Record inserts one pipeline event. It satisfies the engine's event log
// interface.
func (d *DB) Record(ctx context.Context, pmid string, stage article.Stage, event, detail string) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO article_events (pmid, stage, event, detail) VALUES (?, ?, ?, ?)`,
		pmid, string(stage), event, detail,
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// History returns the events for one article, newest first.
func (d *DB) History(ctx context.Context, pmid string, limit int) ([]ArticleEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, pmid, stage, event, detail, timestamp
		 FROM article_events WHERE pmid = ?
		 ORDER BY id DESC LIMIT ?`,
		pmid, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return scanEvents(rows)
}

// Recent returns the newest events across all articles.
func (d *DB) Recent(ctx context.Context, limit int) ([]ArticleEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, pmid, stage, event, detail, timestamp
		 FROM article_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	return scanEvents(rows)
}

// CountByEvent returns event counts grouped by event type.
func (d *DB) CountByEvent(ctx context.Context) (map[string]int, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT event, COUNT(*) FROM article_events GROUP BY event`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var event string
		var n int
		if err := rows.Scan(&event, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[event] = n
	}
	return counts, rows.Err()
}

// DiscoveredSince returns how many articles were first discovered on or
// after the given SQLite datetime modifier (e.g. "-1 day").
func (d *DB) DiscoveredSince(ctx context.Context, since string) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT pmid) FROM article_events
		 WHERE event = 'discovered' AND timestamp >= datetime('now', ?)`,
		since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count discovered: %w", err)
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]ArticleEvent, error) {
	defer rows.Close()
	var events []ArticleEvent
	for rows.Next() {
		var e ArticleEvent
		var stage, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.PMID, &stage, &e.Event, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Stage = stage.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}
