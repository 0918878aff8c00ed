package ports

import (
	"context"
	"time"

	"MerchScanner/internal/domain"
)

// Fetcher retrieves raw bytes for a URL, routing known-blocked domains
// through the fetch proxy.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// PageScraper pulls readable text and candidate image URLs out of a
// live article page.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (content string, imageURLs []string, err error)
}

// Extractor asks the extraction service for candidate products in an
// article. Malformed service output fails closed: an Extraction with
// zero products and an error describing why.
type Extractor interface {
	Extract(ctx context.Context, article domain.Article) (domain.Extraction, error)
}

// BoundingBox is a normalized crop region in percent coordinates.
type BoundingBox struct {
	Name string
	X    float64
	Y    float64
	W    float64
	H    float64
}

// ImageMatch is the verification service's verdict for one image.
type ImageMatch struct {
	Match      bool
	Confidence string // "low", "medium", "high"
}

// ImageAnalyzer wraps the image-understanding service: per-product
// verification and composite detection.
type ImageAnalyzer interface {
	VerifyProduct(ctx context.Context, imageURL, productName string) (ImageMatch, error)
	DetectComposite(ctx context.Context, imageURL string, productNames []string) ([]BoundingBox, error)
}

// ObjectStore persists raw bytes durably and returns a public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (publicURL string, err error)
}

// SimilarCandidate is one ranked result from the store's similarity
// search, with the score and reason exposed so thresholds stay policy
// of the caller.
type SimilarCandidate struct {
	ReleaseID string
	Title     string
	Score     float64
	Reason    string
}

// ReleaseRepository is the catalog surface of the backing store. All
// lookup methods consider only non-merged releases.
type ReleaseRepository interface {
	GetByCanonicalKey(ctx context.Context, key string) (*domain.Release, error)
	FindSimilar(ctx context.Context, title, imageURL, sourceURL string) ([]SimilarCandidate, error)
	FindByTitlePrefix(ctx context.Context, prefix string) (*domain.Release, error)
	Get(ctx context.Context, id string) (*domain.Release, error)
	Create(ctx context.Context, r *domain.Release) error
	Update(ctx context.Context, r *domain.Release) error
	Merge(ctx context.Context, loserID, winnerID string) error
	AppendProvenance(ctx context.Context, link domain.ArticleSourceLink) error
}

// SourceRepository manages feed-source configuration and bookkeeping.
type SourceRepository interface {
	ListActive(ctx context.Context) ([]domain.FeedSource, error)
	UpdateBookkeeping(ctx context.Context, id int64, checkedAt time.Time, lastError string) error
}

// ProcessedRepository is the per-article idempotency ledger.
type ProcessedRepository interface {
	Seen(ctx context.Context, sourceName, articleURL string) (bool, error)
	Record(ctx context.Context, rec domain.ProcessedArticle) error
}

// FeedReader fetches and parses one source's feed into articles, in
// feed order.
type FeedReader interface {
	Read(ctx context.Context, src domain.FeedSource) ([]domain.Article, error)
}

// PassLocker is the named advisory lock serializing ingestion passes.
// Acquire returns false without error when another holder is active;
// the TTL bounds how long a crashed holder can wedge future runs.
type PassLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// Notifier publishes the pass summary to an operator channel.
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.PassSummary) error
}

// Scheduler controls when ingestion passes execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
