package feeds

import (
	"context"
	"errors"
	"testing"

	"MerchScanner/internal/domain"
)

type fakeFetcher struct {
	body []byte
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	return f.body, f.err
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Merch Blog</title>
  <item>
    <title>New Spirit Jersey Arrives</title>
    <link>https://blog.example.com/spirit-jersey</link>
    <description><![CDATA[<p>A new spirit jersey hit shelves.</p><img src="https://blog.example.com/img/jersey.jpg"><img src="https://blog.example.com/img/site-logo.png">]]></description>
    <pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
    <enclosure url="https://blog.example.com/img/jersey-hero.jpg" type="image/jpeg" length="1000"/>
  </item>
  <item>
    <title>Second Post</title>
    <link>https://blog.example.com/second</link>
    <description>No merch here.</description>
  </item>
</channel>
</rss>`

func TestRead(t *testing.T) {
	t.Parallel()

	r := New(&fakeFetcher{body: []byte(sampleRSS)}, nil)
	articles, err := r.Read(context.Background(), domain.FeedSource{Name: "merch-blog", URL: "https://blog.example.com/feed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 2 {
		t.Fatalf("articles = %d, want 2", len(articles))
	}

	// Feed order preserved.
	first := articles[0]
	if first.Title != "New Spirit Jersey Arrives" {
		t.Fatalf("first title = %q", first.Title)
	}
	if first.Source != "merch-blog" {
		t.Fatalf("source = %q", first.Source)
	}
	if first.PublishedAt.IsZero() {
		t.Fatal("pubDate not parsed")
	}

	// Enclosure first, then content images, logo filtered out.
	if len(first.ImageURLs) != 2 {
		t.Fatalf("images = %v", first.ImageURLs)
	}
	if first.ImageURLs[0] != "https://blog.example.com/img/jersey-hero.jpg" {
		t.Fatalf("images[0] = %q", first.ImageURLs[0])
	}
	if first.ImageURLs[1] != "https://blog.example.com/img/jersey.jpg" {
		t.Fatalf("images[1] = %q", first.ImageURLs[1])
	}
}

func TestReadFetchError(t *testing.T) {
	t.Parallel()

	r := New(&fakeFetcher{err: errors.New("dns failure")}, nil)
	if _, err := r.Read(context.Background(), domain.FeedSource{Name: "x", URL: "https://x/feed"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadMalformedFeed(t *testing.T) {
	t.Parallel()

	r := New(&fakeFetcher{body: []byte("not xml at all")}, nil)
	if _, err := r.Read(context.Background(), domain.FeedSource{Name: "x", URL: "https://x/feed"}); err == nil {
		t.Fatal("expected parse error")
	}
}
