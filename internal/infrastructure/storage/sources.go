package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"MerchScanner/internal/domain"
	"MerchScanner/internal/ports"
)

// PostgresSources persists feed-source configuration and bookkeeping.
type PostgresSources struct {
	db *sql.DB
}

var _ ports.SourceRepository = (*PostgresSources)(nil)

// NewPostgresSources wires a sql.DB implementation.
func NewPostgresSources(db *sql.DB) *PostgresSources {
	return &PostgresSources{db: db}
}

// ListActive returns every source flagged active, stable-ordered by id.
func (r *PostgresSources) ListActive(ctx context.Context) ([]domain.FeedSource, error) {
	query := psql.Select(
		"id", "name", "url", "kind", "park", "active",
		"recheck_hours", "last_checked", "last_error", "proxy_required",
	).
		From("feed_sources").
		Where(sq.Eq{"active": true}).
		OrderBy("id ASC")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.FeedSource
	for rows.Next() {
		var (
			src         domain.FeedSource
			lastChecked sql.NullTime
			lastError   sql.NullString
		)
		err := rows.Scan(
			&src.ID, &src.Name, &src.URL, &src.Kind, &src.Park, &src.Active,
			&src.RecheckHours, &lastChecked, &lastError, &src.ProxyRequired,
		)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if lastChecked.Valid {
			t := lastChecked.Time
			src.LastChecked = &t
		}
		if lastError.Valid {
			src.LastError = lastError.String
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return sources, nil
}

// UpdateBookkeeping stamps last_checked and last_error after a sweep,
// success or failure.
func (r *PostgresSources) UpdateBookkeeping(ctx context.Context, id int64, checkedAt time.Time, lastError string) error {
	query := psql.Update("feed_sources").
		Set("last_checked", checkedAt).
		Set("last_error", lastError).
		Where(sq.Eq{"id": id})

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("update source bookkeeping: %w", err)
	}
	return nil
}

// PostgresProcessed is the per-article idempotency ledger.
type PostgresProcessed struct {
	db *sql.DB
}

var _ ports.ProcessedRepository = (*PostgresProcessed)(nil)

// NewPostgresProcessed wires a sql.DB implementation.
func NewPostgresProcessed(db *sql.DB) *PostgresProcessed {
	return &PostgresProcessed{db: db}
}

// Seen reports whether the (source, URL) pair was already processed.
func (r *PostgresProcessed) Seen(ctx context.Context, sourceName, articleURL string) (bool, error) {
	query := psql.Select("1").
		From("processed_articles").
		Where(sq.Eq{"source_name": sourceName, "article_url": articleURL}).
		Limit(1)

	var one int
	err := query.RunWith(r.db).QueryRowContext(ctx).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query processed: %w", err)
	}
	return true, nil
}

// Record upserts the processing outcome for an article: item count and
// error, whatever happened.
func (r *PostgresProcessed) Record(ctx context.Context, rec domain.ProcessedArticle) error {
	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	const query = `INSERT INTO processed_articles (source_name, article_url, items_found, error, processed_at)
	               VALUES ($1, $2, $3, $4, $5)
	               ON CONFLICT (source_name, article_url) DO UPDATE
	               SET items_found = EXCLUDED.items_found,
	                   error = EXCLUDED.error,
	                   processed_at = EXCLUDED.processed_at`

	_, err := r.db.ExecContext(ctx, query,
		rec.SourceName, rec.ArticleURL, rec.ItemsFound, rec.Error, processedAt)
	if err != nil {
		return fmt.Errorf("record processed: %w", err)
	}
	return nil
}
