// Package objectstore is a thin HTTP client for the durable image
// bucket.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MerchScanner/internal/config"
	"MerchScanner/internal/ports"
)

// Client puts raw bytes into an S3-style HTTP storage API and returns
// the object's public URL.
type Client struct {
	endpoint   string
	bucket     string
	apiKey     string
	publicBase string
	httpClient *http.Client
}

var _ ports.ObjectStore = (*Client)(nil)

// New builds a client from configuration. When no separate public base
// URL is configured, public URLs are derived from the endpoint.
func New(cfg config.StorageConfig) *Client {
	publicBase := cfg.PublicURL
	if publicBase == "" {
		publicBase = strings.TrimSuffix(cfg.Endpoint, "/") + "/object/public"
	}
	return &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		bucket:     cfg.Bucket,
		apiKey:     cfg.APIKey,
		publicBase: strings.TrimSuffix(publicBase, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Put uploads the object and returns its public URL. Existing objects
// under the same key are overwritten.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	uploadURL := fmt.Sprintf("%s/object/%s/%s", c.endpoint, c.bucket, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("storage error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return fmt.Sprintf("%s/%s/%s", c.publicBase, c.bucket, key), nil
}
