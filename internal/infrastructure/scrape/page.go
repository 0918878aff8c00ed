// Package scrape extracts readable text and candidate image URLs from
// live article pages.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"MerchScanner/internal/ports"
)

// PageScraper fetches an article page and distills its body text and
// product-photo candidates.
type PageScraper struct {
	fetcher ports.Fetcher
	logger  *slog.Logger
}

var _ ports.PageScraper = (*PageScraper)(nil)

// New wires the scraper to the shared fetcher (which handles proxy
// routing for blocked domains).
func New(fetcher ports.Fetcher, logger *slog.Logger) *PageScraper {
	return &PageScraper{fetcher: fetcher, logger: logger}
}

// Scrape downloads the page, runs readability extraction for the body
// text, and collects candidate image URLs from the raw document.
func (s *PageScraper) Scrape(ctx context.Context, pageURL string) (string, []string, error) {
	raw, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return "", nil, fmt.Errorf("fetch page: %w", err)
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse url: %w", err)
	}

	var content string
	article, err := readability.FromReader(bytes.NewReader(raw), parsedURL)
	if err != nil {
		// Readability failing on messy markup is not fatal; image
		// candidates may still be usable.
		if s.logger != nil {
			s.logger.Debug("readability extraction failed", "url", pageURL, "error", err)
		}
	} else {
		content = article.TextContent
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return content, nil, fmt.Errorf("parse document: %w", err)
	}

	return content, ExtractImageURLs(doc), nil
}
