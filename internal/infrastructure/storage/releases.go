package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"MerchScanner/internal/domain"
	"MerchScanner/internal/ports"
)

// PostgresReleases persists the release catalog.
type PostgresReleases struct {
	db *sql.DB
}

var _ ports.ReleaseRepository = (*PostgresReleases)(nil)

// NewPostgresReleases wires a sql.DB implementation.
func NewPostgresReleases(db *sql.DB) *PostgresReleases {
	return &PostgresReleases{db: db}
}

var releaseColumns = []string{
	"id", "title", "description", "image_url", "gallery", "canonical_key",
	"source_url", "source_name", "park", "category", "estimated_price",
	"limited_edition", "featured", "status",
	"projected_date", "actual_release_date", "sold_out_date", "merged_into",
	"online_available", "online_checked_at", "online_price", "online_url",
	"created_at", "updated_at",
}

// galleryEntry is the JSONB shape of one gallery image.
type galleryEntry struct {
	URL      string `json:"url"`
	Tier     string `json:"tier"`
	Original string `json:"original,omitempty"`
}

// GetByCanonicalKey returns the active release with the exact canonical
// key, or nil. Merged releases never match.
func (r *PostgresReleases) GetByCanonicalKey(ctx context.Context, key string) (*domain.Release, error) {
	query := psql.Select(releaseColumns...).
		From("releases").
		Where(sq.Eq{"canonical_key": key}).
		Where("merged_into IS NULL").
		Limit(1)

	return r.queryOne(ctx, query)
}

// FindSimilar delegates to the store's similarity function, which ranks
// active releases by combined title-trigram, shared-image, and
// shared-source signals and reports a score plus a readable reason.
func (r *PostgresReleases) FindSimilar(ctx context.Context, title, imageURL, sourceURL string) ([]ports.SimilarCandidate, error) {
	const query = `SELECT release_id, title, score, reason
	               FROM find_similar_releases($1, $2, $3)
	               ORDER BY score DESC`

	rows, err := r.db.QueryContext(ctx, query, title, imageURL, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var candidates []ports.SimilarCandidate
	for rows.Next() {
		var c ports.SimilarCandidate
		if err := rows.Scan(&c.ReleaseID, &c.Title, &c.Score, &c.Reason); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return candidates, nil
}

// FindByTitlePrefix is the similarity fallback: the first active
// release whose title contains the prefix, case-insensitively.
func (r *PostgresReleases) FindByTitlePrefix(ctx context.Context, prefix string) (*domain.Release, error) {
	query := psql.Select(releaseColumns...).
		From("releases").
		Where("merged_into IS NULL").
		Where(sq.ILike{"title": "%" + prefix + "%"}).
		OrderBy("created_at ASC").
		Limit(1)

	return r.queryOne(ctx, query)
}

// Get loads one release by id, merged or not.
func (r *PostgresReleases) Get(ctx context.Context, id string) (*domain.Release, error) {
	query := psql.Select(releaseColumns...).
		From("releases").
		Where(sq.Eq{"id": id}).
		Limit(1)

	return r.queryOne(ctx, query)
}

// Create inserts a new release, assigning an id when absent.
func (r *PostgresReleases) Create(ctx context.Context, rel *domain.Release) error {
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rel.CreatedAt = now
	rel.UpdatedAt = now

	gallery, err := marshalGallery(rel.Gallery)
	if err != nil {
		return err
	}

	query := psql.Insert("releases").
		Columns(releaseColumns...).
		Values(
			rel.ID, rel.Title, rel.Description, rel.ImageURL, gallery, rel.CanonicalKey,
			rel.SourceURL, rel.SourceName, rel.Park, rel.Category, rel.EstimatedPrice,
			rel.LimitedEdition, rel.Featured, string(rel.Status),
			rel.ProjectedDate, rel.ActualReleaseDate, rel.SoldOutDate, rel.MergedInto,
			rel.Online.Available, rel.Online.CheckedAt, rel.Online.Price, rel.Online.URL,
			rel.CreatedAt, rel.UpdatedAt,
		)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("insert release: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing release.
func (r *PostgresReleases) Update(ctx context.Context, rel *domain.Release) error {
	rel.UpdatedAt = time.Now().UTC()

	gallery, err := marshalGallery(rel.Gallery)
	if err != nil {
		return err
	}

	query := psql.Update("releases").
		Set("title", rel.Title).
		Set("description", rel.Description).
		Set("image_url", rel.ImageURL).
		Set("gallery", gallery).
		Set("canonical_key", rel.CanonicalKey).
		Set("park", rel.Park).
		Set("category", rel.Category).
		Set("estimated_price", rel.EstimatedPrice).
		Set("limited_edition", rel.LimitedEdition).
		Set("featured", rel.Featured).
		Set("status", string(rel.Status)).
		Set("projected_date", rel.ProjectedDate).
		Set("actual_release_date", rel.ActualReleaseDate).
		Set("sold_out_date", rel.SoldOutDate).
		Set("merged_into", rel.MergedInto).
		Set("online_available", rel.Online.Available).
		Set("online_checked_at", rel.Online.CheckedAt).
		Set("online_price", rel.Online.Price).
		Set("online_url", rel.Online.URL).
		Set("updated_at", rel.UpdatedAt).
		Where(sq.Eq{"id": rel.ID})

	result, err := query.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update release: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update release %s: not found", rel.ID)
	}
	return nil
}

// Merge tombstones the loser into the winner and re-points the loser's
// provenance rows. The loser row stays for audit.
func (r *PostgresReleases) Merge(ctx context.Context, loserID, winnerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	mark := psql.Update("releases").
		Set("merged_into", winnerID).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": loserID}).
		Where("merged_into IS NULL")
	result, err := mark.RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark merged: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("merge: release %s not found or already merged", loserID)
	}

	repoint := psql.Update("article_sources").
		Set("release_id", winnerID).
		Where(sq.Eq{"release_id": loserID})
	if _, err := repoint.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("repoint provenance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

// AppendProvenance records that an article mentioned a release. The
// same (release, article) pair is recorded once.
func (r *PostgresReleases) AppendProvenance(ctx context.Context, link domain.ArticleSourceLink) error {
	seenAt := link.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	const query = `INSERT INTO article_sources (release_id, article_url, source_name, seen_at)
	               VALUES ($1, $2, $3, $4)
	               ON CONFLICT (release_id, article_url) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, link.ReleaseID, link.ArticleURL, link.SourceName, seenAt); err != nil {
		return fmt.Errorf("append provenance: %w", err)
	}
	return nil
}

func (r *PostgresReleases) queryOne(ctx context.Context, query sq.SelectBuilder) (*domain.Release, error) {
	row := query.RunWith(r.db).QueryRowContext(ctx)

	var (
		rel           domain.Release
		gallery       []byte
		status        string
		mergedInto    sql.NullString
		onlineChecked sql.NullTime
	)
	err := row.Scan(
		&rel.ID, &rel.Title, &rel.Description, &rel.ImageURL, &gallery, &rel.CanonicalKey,
		&rel.SourceURL, &rel.SourceName, &rel.Park, &rel.Category, &rel.EstimatedPrice,
		&rel.LimitedEdition, &rel.Featured, &status,
		&rel.ProjectedDate, &rel.ActualReleaseDate, &rel.SoldOutDate, &mergedInto,
		&rel.Online.Available, &onlineChecked, &rel.Online.Price, &rel.Online.URL,
		&rel.CreatedAt, &rel.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan release: %w", err)
	}

	rel.Status = domain.Status(status)
	if mergedInto.Valid {
		rel.MergedInto = &mergedInto.String
	}
	if onlineChecked.Valid {
		rel.Online.CheckedAt = &onlineChecked.Time
	}
	if rel.Gallery, err = unmarshalGallery(gallery); err != nil {
		return nil, err
	}
	return &rel, nil
}

func marshalGallery(gallery []domain.GalleryImage) ([]byte, error) {
	entries := make([]galleryEntry, 0, len(gallery))
	for _, img := range gallery {
		entries = append(entries, galleryEntry{URL: img.URL, Tier: string(img.Tier), Original: img.Original})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal gallery: %w", err)
	}
	return data, nil
}

func unmarshalGallery(data []byte) ([]domain.GalleryImage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var entries []galleryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal gallery: %w", err)
	}
	gallery := make([]domain.GalleryImage, 0, len(entries))
	for _, e := range entries {
		gallery = append(gallery, domain.GalleryImage{URL: e.URL, Tier: domain.TrustTier(e.Tier), Original: e.Original})
	}
	return gallery, nil
}
