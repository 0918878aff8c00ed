package domain

import "time"

// Article is one feed entry or crawled page considered for extraction.
type Article struct {
	URL         string
	Title       string
	Content     string
	ImageURLs   []string
	Source      string
	PublishedAt time.Time
}

// ExtractedProduct is the extraction service's output contract for one
// candidate product found in an article.
type ExtractedProduct struct {
	Name           string
	Category       string
	Park           string
	Price          float64
	LimitedEdition bool
	OnlineOnly     bool
	Tags           []string
	DemandScore    int
	StatusGuess    Status
	ProjectedDate  *time.Time
	ImageURL       string
}

// Extraction is the full result for one article: the candidate products
// plus the service's relevance verdict.
type Extraction struct {
	Relevant bool
	Products []ExtractedProduct
}

// ArticleSourceLink records that a specific article mentioned a release.
// Appended on every discovery, never deleted while the release lives.
type ArticleSourceLink struct {
	ReleaseID  string
	ArticleURL string
	SourceName string
	SeenAt     time.Time
}

// ProcessedArticle is the idempotency record for one (source, URL) pair.
// An article present here is never re-run through extraction by the
// same source.
type ProcessedArticle struct {
	SourceName  string
	ArticleURL  string
	ItemsFound  int
	Error       string
	ProcessedAt time.Time
}

// FeedSource is the configuration and mutable bookkeeping for one
// content origin. Bookkeeping fields are written only by the ingestion
// pass, after each sweep over the source.
type FeedSource struct {
	ID            int64
	Name          string
	URL           string
	Kind          string // fetch strategy name, e.g. "rss"
	Park          string
	Active        bool
	RecheckHours  int
	LastChecked   *time.Time
	LastError     string
	ProxyRequired bool
}

// Due reports whether the source should be swept now given its minimum
// recheck interval.
func (f *FeedSource) Due(now time.Time) bool {
	if f.LastChecked == nil {
		return true
	}
	interval := time.Duration(f.RecheckHours) * time.Hour
	if interval <= 0 {
		return true
	}
	return now.Sub(*f.LastChecked) >= interval
}

// PassSummary is the operator-facing result of one full ingestion pass.
type PassSummary struct {
	SourcesProcessed  int
	SourcesSkipped    int
	ArticlesProcessed int
	ArticlesSkipped   int
	NewReleases       int
	UpdatedReleases   int
	Errors            []string
	StartedAt         time.Time
	FinishedAt        time.Time
}

// AddError records a per-item error string on the summary.
func (p *PassSummary) AddError(msg string) {
	p.Errors = append(p.Errors, msg)
}
