package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

type fakeFetcher struct {
	body []byte
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	return f.body, f.err
}

const samplePage = `<!DOCTYPE html>
<html><head><title>New Spirit Jersey</title></head>
<body>
<article>
<h1>New Spirit Jersey Arrives</h1>
<p>A brand new spirit jersey appeared at the Emporium this morning, priced at $79.99.</p>
<p>It joins the castle ear headband released last week.</p>
<img src="https://blog.example.com/uploads/jersey-front.jpg">
<img src="https://blog.example.com/uploads/jersey-back.jpg">
<img src="https://blog.example.com/uploads/jersey-front.jpg">
<img src="https://blog.example.com/theme/site-logo.png">
<img src="https://blog.example.com/avatars/author-avatar.jpg">
<img src="/relative/not-kept.jpg">
</article>
</body></html>`

func TestScrape(t *testing.T) {
	t.Parallel()

	s := New(&fakeFetcher{body: []byte(samplePage)}, nil)
	content, imgs, err := s.Scrape(context.Background(), "https://blog.example.com/post")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "spirit jersey") {
		t.Fatalf("content missing body text: %q", content)
	}
	want := []string{
		"https://blog.example.com/uploads/jersey-front.jpg",
		"https://blog.example.com/uploads/jersey-back.jpg",
	}
	if len(imgs) != len(want) {
		t.Fatalf("images = %v", imgs)
	}
	for i, u := range want {
		if imgs[i] != u {
			t.Fatalf("images[%d] = %q, want %q", i, imgs[i], u)
		}
	}
}

func TestScrapeFetchError(t *testing.T) {
	t.Parallel()

	s := New(&fakeFetcher{err: errors.New("timeout")}, nil)
	if _, _, err := s.Scrape(context.Background(), "https://blog.example.com/post"); err == nil {
		t.Fatal("expected fetch error to surface")
	}
}

func TestExtractImageURLsFiltersJunk(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(samplePage))
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range ExtractImageURLs(doc) {
		if strings.Contains(u, "logo") || strings.Contains(u, "avatar") {
			t.Fatalf("junk image kept: %s", u)
		}
	}
}
