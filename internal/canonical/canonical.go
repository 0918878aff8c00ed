// Package canonical derives the stable dedup key for a product title.
package canonical

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// Stop words are generic marketing qualifiers and the venue's own brand
// vocabulary. They fragment dedup keys without carrying identity, so
// they are removed before slugging.
var defaultStopWords = []string{
	"anniversary",
	"edition",
	"limited",
	"exclusive",
	"collection",
	"new",
	"official",
	"disney",
	"disneyland",
	"parks",
	"park",
	"world",
	"land",
	"resort",
	"walt",
}

// Normalizer turns free-text product titles into canonical slugs.
// The zero value is not usable; build one with New.
type Normalizer struct {
	stop map[string]struct{}
}

// New builds a Normalizer with the default stop-word set plus any
// extras (typically from config).
func New(extra ...string) *Normalizer {
	stop := make(map[string]struct{}, len(defaultStopWords)+len(extra))
	for _, w := range defaultStopWords {
		stop[w] = struct{}{}
	}
	for _, w := range extra {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			stop[w] = struct{}{}
		}
	}
	return &Normalizer{stop: stop}
}

// Key returns the canonical dedup key for title: lowercase words joined
// by hyphens, punctuation stripped, stop words removed. Pure and
// deterministic, and idempotent: Key(Key(t)) == Key(t).
//
// A title that loses every word to stop-word removal falls back to a
// short hash of the original so two such titles never collide on an
// empty key.
func (n *Normalizer) Key(title string) string {
	cleaned := stripPunct(strings.ToLower(title))

	var words []string
	for _, w := range strings.Fields(cleaned) {
		w = strings.Trim(w, "-")
		if w == "" {
			continue
		}
		if _, skip := n.stop[w]; skip {
			continue
		}
		words = append(words, w)
	}

	if len(words) == 0 {
		return hashFallback(title)
	}

	return strings.Join(words, "-")
}

// stripPunct keeps letters, digits, spaces, and hyphens. Hyphens are
// turned into spaces so already-slugged input re-splits into the same
// words it was built from.
func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '-':
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func hashFallback(title string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	return fmt.Sprintf("untitled-%08x", h.Sum64()&0xffffffff)
}
