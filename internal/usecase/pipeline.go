package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"MerchScanner/internal/canonical"
	"MerchScanner/internal/dedup"
	"MerchScanner/internal/domain"
	"MerchScanner/internal/filter"
	"MerchScanner/internal/images"
	"MerchScanner/internal/lifecycle"
	"MerchScanner/internal/ports"
	"MerchScanner/internal/scanner"
)

// ErrAlreadyRunning is returned when the pass-level lock is held by
// another invocation. No catalog writes happen in that case.
var ErrAlreadyRunning = errors.New("ingestion pass already running")

// Policy carries the pass-level knobs the orchestrator applies.
type Policy struct {
	LockName        string
	LockTTL         time.Duration
	ArticleDelay    time.Duration
	SourceDelay     time.Duration
	MinContentChars int
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sources   ports.SourceRepository
	Processed ports.ProcessedRepository
	Releases  ports.ReleaseRepository
	Registry  *scanner.Registry
	Scraper   ports.PageScraper
	Extractor ports.Extractor
	Resolver  *dedup.Resolver
	Images    *images.Resolver
	Lifecycle *lifecycle.Machine
	Canonical *canonical.Normalizer
	Locker    ports.PassLocker
	Notifier  ports.Notifier
	Logger    *slog.Logger
	Policy    Policy
	// Sleep is swappable in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

// Pipeline implements the ingestion workflow: one pass sweeps every
// active source, extracts candidate products, deduplicates them
// against the catalog, resolves images, and writes releases through
// the lifecycle machine.
type Pipeline struct {
	sources   ports.SourceRepository
	processed ports.ProcessedRepository
	releases  ports.ReleaseRepository
	registry  *scanner.Registry
	scraper   ports.PageScraper
	extractor ports.Extractor
	resolver  *dedup.Resolver
	images    *images.Resolver
	lifecycle *lifecycle.Machine
	canonical *canonical.Normalizer
	locker    ports.PassLocker
	notifier  ports.Notifier
	logger    *slog.Logger
	policy    Policy
	sleep     func(time.Duration)
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	sleep := deps.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	if deps.Policy.LockName == "" {
		deps.Policy.LockName = "merch_ingest_pass"
	}
	if deps.Policy.LockTTL <= 0 {
		deps.Policy.LockTTL = 30 * time.Minute
	}
	if deps.Policy.MinContentChars <= 0 {
		deps.Policy.MinContentChars = 300
	}
	return &Pipeline{
		sources:   deps.Sources,
		processed: deps.Processed,
		releases:  deps.Releases,
		registry:  deps.Registry,
		scraper:   deps.Scraper,
		extractor: deps.Extractor,
		resolver:  deps.Resolver,
		images:    deps.Images,
		lifecycle: deps.Lifecycle,
		canonical: deps.Canonical,
		locker:    deps.Locker,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		policy:    deps.Policy,
		sleep:     sleep,
	}
}

// RunPass executes one full ingestion pass under the pass-level
// advisory lock. If the lock is held elsewhere the pass aborts with
// ErrAlreadyRunning before touching the catalog. Sources, articles,
// and products are processed sequentially with rate-limiting pauses;
// per-item failures are collected on the summary, never pass-fatal.
func (p *Pipeline) RunPass(ctx context.Context, force bool) (domain.PassSummary, error) {
	summary := domain.PassSummary{StartedAt: time.Now()}

	acquired, err := p.locker.Acquire(ctx, p.policy.LockName, p.policy.LockTTL)
	if err != nil {
		return summary, fmt.Errorf("acquire pass lock: %w", err)
	}
	if !acquired {
		p.info("another process is running, aborting", "lock", p.policy.LockName)
		return summary, ErrAlreadyRunning
	}
	defer func() {
		if err := p.locker.Release(ctx, p.policy.LockName); err != nil {
			p.warn("release pass lock", "error", err)
		}
	}()

	sources, err := p.sources.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active sources: %w", err)
	}

	now := time.Now()
	for i, src := range sources {
		if !force && !src.Due(now) {
			summary.SourcesSkipped++
			continue
		}

		sourceErr := p.processSource(ctx, src, &summary)
		lastError := ""
		if sourceErr != nil {
			lastError = sourceErr.Error()
			summary.AddError(fmt.Sprintf("source %s: %v", src.Name, sourceErr))
			p.warn("source failed", "source", src.Name, "error", sourceErr)
		}

		// Bookkeeping is stamped success or failure so a broken source
		// neither retries every cycle nor vanishes silently.
		if err := p.sources.UpdateBookkeeping(ctx, src.ID, time.Now(), lastError); err != nil {
			summary.AddError(fmt.Sprintf("source %s bookkeeping: %v", src.Name, err))
		}
		summary.SourcesProcessed++

		if i < len(sources)-1 && p.policy.SourceDelay > 0 {
			p.sleep(p.policy.SourceDelay)
		}
	}

	summary.FinishedAt = time.Now()
	p.info("pass finished",
		"sources", summary.SourcesProcessed,
		"articles", summary.ArticlesProcessed,
		"new", summary.NewReleases,
		"updated", summary.UpdatedReleases,
		"errors", len(summary.Errors))

	if p.notifier != nil {
		if err := p.notifier.PublishSummary(ctx, summary); err != nil {
			p.warn("publish summary", "error", err)
		}
	}

	return summary, nil
}

func (p *Pipeline) processSource(ctx context.Context, src domain.FeedSource, summary *domain.PassSummary) error {
	reader, err := p.registry.Resolve(src.Kind)
	if err != nil {
		return err
	}

	articles, err := reader.Read(ctx, src)
	if err != nil {
		return fmt.Errorf("read feed: %w", err)
	}

	// Articles run in feed order; pauses between them respect the
	// third-party services' rate limits.
	for i, article := range articles {
		p.processArticle(ctx, src, article, summary)
		if i < len(articles)-1 && p.policy.ArticleDelay > 0 {
			p.sleep(p.policy.ArticleDelay)
		}
	}

	return nil
}

func (p *Pipeline) processArticle(ctx context.Context, src domain.FeedSource, article domain.Article, summary *domain.PassSummary) {
	if verdict := filter.ScreenArticle(article); verdict.Skip {
		p.debug("article screened out", "url", article.URL, "rule", verdict.Rule, "reason", verdict.Reason)
		summary.ArticlesSkipped++
		return
	}

	seen, err := p.processed.Seen(ctx, src.Name, article.URL)
	if err != nil {
		summary.AddError(fmt.Sprintf("article %s: idempotency check: %v", article.URL, err))
		return
	}
	if seen {
		summary.ArticlesSkipped++
		return
	}

	// Embedded feed content is cheap; the live page is fetched only
	// when the embedded version is too short or has no images.
	if len(article.Content) < p.policy.MinContentChars || len(article.ImageURLs) == 0 {
		p.enrichFromPage(ctx, &article)
	}

	extraction, extractErr := p.extractor.Extract(ctx, article)
	if extractErr != nil {
		// Malformed output fails closed: zero products, error on record.
		p.record(ctx, src, article, 0, extractErr.Error(), summary)
		summary.ArticlesProcessed++
		return
	}

	var kept []domain.ExtractedProduct
	if extraction.Relevant {
		for _, product := range extraction.Products {
			if ok, reason := filter.KeepProduct(product); ok {
				kept = append(kept, product)
			} else {
				p.debug("product dropped", "name", product.Name, "reason", reason)
			}
		}
	}

	var composite *images.Composite
	if len(kept) > 1 && len(article.ImageURLs) > 0 && p.images != nil {
		composite = p.images.FindComposite(ctx, productNames(kept), article.ImageURLs)
	}

	for _, product := range kept {
		if err := p.processProduct(ctx, src, article, product, composite, summary); err != nil {
			summary.AddError(fmt.Sprintf("product %q (%s): %v", product.Name, article.URL, err))
			p.warn("product failed", "name", product.Name, "error", err)
		}
	}

	p.record(ctx, src, article, len(kept), "", summary)
	summary.ArticlesProcessed++
}

// enrichFromPage replaces thin feed content with the scraped live page
// when possible. A scrape failure keeps the cheaper feed content.
func (p *Pipeline) enrichFromPage(ctx context.Context, article *domain.Article) {
	if p.scraper == nil {
		return
	}
	content, imgs, err := p.scraper.Scrape(ctx, article.URL)
	if err != nil {
		p.debug("page scrape failed, keeping feed content", "url", article.URL, "error", err)
		return
	}
	if len(content) > len(article.Content) {
		article.Content = content
	}
	article.ImageURLs = mergeURLs(article.ImageURLs, imgs)
}

func (p *Pipeline) processProduct(ctx context.Context, src domain.FeedSource, article domain.Article, product domain.ExtractedProduct, composite *images.Composite, summary *domain.PassSummary) error {
	key := p.canonical.Key(product.Name)

	match, err := p.resolver.Resolve(ctx, dedup.Candidate{
		Title:        product.Name,
		CanonicalKey: key,
		ImageURL:     product.ImageURL,
		SourceURL:    article.URL,
	})

	switch {
	case err == nil && !match.Review:
		return p.enrichExisting(ctx, src, article, product, composite, match, summary)
	case err == nil && match.Review:
		// Below the auto-merge threshold: create the release and leave
		// the pairing to the admin duplicate-review query.
		p.info("possible duplicate left for review",
			"name", product.Name, "candidate", match.ReleaseID, "score", match.Confidence)
		return p.createRelease(ctx, src, article, product, key, composite, summary)
	case errors.Is(err, dedup.ErrNoMatch):
		return p.createRelease(ctx, src, article, product, key, composite, summary)
	default:
		return fmt.Errorf("dedup: %w", err)
	}
}

func (p *Pipeline) createRelease(ctx context.Context, src domain.FeedSource, article domain.Article, product domain.ExtractedProduct, key string, composite *images.Composite, summary *domain.PassSummary) error {
	release := &domain.Release{
		ID:             newReleaseID(),
		Title:          product.Name,
		Description:    product.Category,
		CanonicalKey:   key,
		SourceURL:      article.URL,
		SourceName:     src.Name,
		Park:           pickPark(product.Park, src.Park),
		Category:       product.Category,
		EstimatedPrice: product.Price,
		LimitedEdition: product.LimitedEdition,
		ProjectedDate:  product.ProjectedDate,
	}

	if err := p.lifecycle.Advance(release, product.StatusGuess, nil); err != nil {
		return fmt.Errorf("initial status: %w", err)
	}

	if p.images != nil {
		if err := p.images.Attach(ctx, release, product, composite, article.ImageURLs); err != nil {
			// An image is nice to have; the release is still created.
			summary.AddError(fmt.Sprintf("image for %q: %v", product.Name, err))
		}
	}

	if err := p.releases.Create(ctx, release); err != nil {
		return fmt.Errorf("create release: %w", err)
	}
	summary.NewReleases++

	if err := p.releases.AppendProvenance(ctx, domain.ArticleSourceLink{
		ReleaseID:  release.ID,
		ArticleURL: article.URL,
		SourceName: src.Name,
		SeenAt:     time.Now(),
	}); err != nil {
		summary.AddError(fmt.Sprintf("provenance for %q: %v", product.Name, err))
	}

	p.info("release created", "id", release.ID, "title", release.Title, "status", release.Status)
	return nil
}

// enrichExisting backfills a matched release instead of inserting a
// duplicate, and appends the new article to its provenance.
func (p *Pipeline) enrichExisting(ctx context.Context, src domain.FeedSource, article domain.Article, product domain.ExtractedProduct, composite *images.Composite, match dedup.Match, summary *domain.PassSummary) error {
	release, err := p.releases.Get(ctx, match.ReleaseID)
	if err != nil {
		return fmt.Errorf("load matched release: %w", err)
	}
	if release == nil {
		return fmt.Errorf("matched release %s vanished", match.ReleaseID)
	}

	if release.ImageURL == "" && p.images != nil {
		if err := p.images.Attach(ctx, release, product, composite, article.ImageURLs); err != nil {
			summary.AddError(fmt.Sprintf("image backfill for %q: %v", product.Name, err))
		}
	}
	if release.Description == "" {
		release.Description = product.Category
	}
	if release.EstimatedPrice == 0 && product.Price > 0 {
		release.EstimatedPrice = product.Price
	}
	if release.ProjectedDate == nil && product.ProjectedDate != nil {
		release.ProjectedDate = product.ProjectedDate
	}
	if product.LimitedEdition {
		release.LimitedEdition = true
	}

	if product.StatusGuess.Valid() {
		if err := p.lifecycle.Advance(release, product.StatusGuess, nil); err != nil {
			// A stale source claiming an earlier stage is expected
			// noise; the release keeps its current status.
			p.debug("status advance rejected", "id", release.ID, "from", release.Status, "to", product.StatusGuess)
		}
	}

	if err := p.releases.Update(ctx, release); err != nil {
		return fmt.Errorf("update release: %w", err)
	}
	summary.UpdatedReleases++

	if err := p.releases.AppendProvenance(ctx, domain.ArticleSourceLink{
		ReleaseID:  release.ID,
		ArticleURL: article.URL,
		SourceName: src.Name,
		SeenAt:     time.Now(),
	}); err != nil {
		summary.AddError(fmt.Sprintf("provenance for %q: %v", product.Name, err))
	}

	p.info("release enriched", "id", release.ID, "title", release.Title,
		"confidence", match.Confidence, "reason", match.Reason)
	return nil
}

// record writes the idempotency row; it is written regardless of the
// article's outcome.
func (p *Pipeline) record(ctx context.Context, src domain.FeedSource, article domain.Article, items int, errMsg string, summary *domain.PassSummary) {
	err := p.processed.Record(ctx, domain.ProcessedArticle{
		SourceName:  src.Name,
		ArticleURL:  article.URL,
		ItemsFound:  items,
		Error:       errMsg,
		ProcessedAt: time.Now(),
	})
	if err != nil {
		summary.AddError(fmt.Sprintf("article %s: record processed: %v", article.URL, err))
	}
	if errMsg != "" {
		summary.AddError(fmt.Sprintf("article %s: extraction: %s", article.URL, errMsg))
	}
}

// newReleaseID pre-assigns the id so image storage keys can be
// namespaced before the insert happens.
func newReleaseID() string {
	return uuid.NewString()
}

func productNames(products []domain.ExtractedProduct) []string {
	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	return names
}

func mergeURLs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, u := range append(a, b...) {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		merged = append(merged, u)
	}
	return merged
}

func pickPark(extracted, fallback string) string {
	if extracted != "" {
		return extracted
	}
	return fallback
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
