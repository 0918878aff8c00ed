package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Filename fragments that mark an image as chrome rather than product
// photography.
var junkImageFragments = []string{
	"avatar", "logo", "icon", "favicon", "gravatar", "sprite",
	"badge", "button", "banner-ad", "pixel.", "1x1", "spacer",
}

// ExtractImageURLs pulls candidate product-photo URLs from an HTML
// document, dropping avatars, logos, and icons by filename heuristics.
// Order follows document order; duplicates are removed.
func ExtractImageURLs(doc *goquery.Document) []string {
	seen := map[string]struct{}{}
	var urls []string

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			if src, ok = sel.Attr("data-src"); !ok || src == "" {
				return
			}
		}
		if !strings.HasPrefix(src, "http") {
			return
		}
		if junkImage(src) {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		urls = append(urls, src)
	})

	return urls
}

func junkImage(src string) bool {
	lower := strings.ToLower(src)
	for _, fragment := range junkImageFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
