// Package feeds reads RSS/Atom sources into articles.
package feeds

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"MerchScanner/internal/domain"
	"MerchScanner/internal/infrastructure/scrape"
	"MerchScanner/internal/ports"
)

// Reader fetches a source's feed and maps entries to articles in feed
// order, with candidate images pulled from embedded content and
// enclosures.
type Reader struct {
	fetcher ports.Fetcher
	parser  *gofeed.Parser
	logger  *slog.Logger
}

var _ ports.FeedReader = (*Reader)(nil)

// New builds a Reader on the shared fetcher.
func New(fetcher ports.Fetcher, logger *slog.Logger) *Reader {
	return &Reader{
		fetcher: fetcher,
		parser:  gofeed.NewParser(),
		logger:  logger,
	}
}

// Read fetches and parses one source's feed. Entry order is preserved.
func (r *Reader) Read(ctx context.Context, src domain.FeedSource) ([]domain.Article, error) {
	raw, err := r.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", src.Name, err)
	}

	feed, err := r.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.Name, err)
	}

	articles := make([]domain.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Link == "" {
			continue
		}
		articles = append(articles, domain.Article{
			URL:         item.Link,
			Title:       item.Title,
			Content:     itemContent(item),
			ImageURLs:   itemImages(item),
			Source:      src.Name,
			PublishedAt: itemPublished(item),
		})
	}

	if r.logger != nil {
		r.logger.Debug("feed read", "source", src.Name, "entries", len(articles))
	}
	return articles, nil
}

func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// itemImages collects candidate images from enclosures and from <img>
// tags inside the embedded content, junk-filtered like page scrapes.
func itemImages(item *gofeed.Item) []string {
	var urls []string
	seen := map[string]struct{}{}

	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, enc := range item.Enclosures {
		if enc != nil && len(enc.Type) >= 5 && enc.Type[:5] == "image" {
			add(enc.URL)
		}
	}
	if item.Image != nil {
		add(item.Image.URL)
	}

	if html := itemContent(item); html != "" {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html))); err == nil {
			for _, u := range scrape.ExtractImageURLs(doc) {
				add(u)
			}
		}
	}

	return urls
}

func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}
