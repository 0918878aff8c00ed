// Package fetch is the outbound HTTP door for feeds, article pages,
// and images, with proxy routing for domains that block direct
// requests.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"MerchScanner/internal/ports"
)

const (
	userAgent = "MerchScanner/1.0"
	// Hard cap on any single download; image validation applies its
	// own tighter limit afterwards.
	maxBodyBytes = 16 << 20
)

// Client fetches raw bytes for a URL. Requests to configured blocked
// domains are routed through the fetch proxy instead of going direct.
type Client struct {
	http     *http.Client
	proxyURL string
	blocked  map[string]struct{}
	logger   *slog.Logger
}

var _ ports.Fetcher = (*Client)(nil)

// New builds a Client. A zero timeout defaults to 20 seconds.
func New(proxyURL string, blockedDomains []string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	blocked := make(map[string]struct{}, len(blockedDomains))
	for _, d := range blockedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			blocked[d] = struct{}{}
		}
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		proxyURL: proxyURL,
		blocked:  blocked,
		logger:   logger,
	}
}

// Fetch retrieves the URL's body. Timeouts and HTTP failures are
// returned as errors for the caller to treat as recoverable per-item
// failures.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target := rawURL
	if c.routeViaProxy(rawURL) {
		target = c.proxied(rawURL)
		if c.logger != nil {
			c.logger.Debug("routing through fetch proxy", "url", rawURL)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", rawURL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return data, nil
}

func (c *Client) routeViaProxy(rawURL string) bool {
	if c.proxyURL == "" || len(c.blocked) == 0 {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for domain := range c.blocked {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func (c *Client) proxied(rawURL string) string {
	return c.proxyURL + "?url=" + url.QueryEscape(rawURL)
}
