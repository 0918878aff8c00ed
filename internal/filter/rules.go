// Package filter screens articles and extracted products before they
// spend extraction or image budget. Screening is an ordered list of
// named predicate rules over normalized text; each rule that fires
// yields a skip reason, so the pipeline's filtering behavior is
// enumerable and testable rule by rule.
package filter

import (
	"strings"

	"MerchScanner/internal/domain"
)

// Verdict is the outcome of screening one article.
type Verdict struct {
	Skip   bool
	Rule   string
	Reason string
}

// Rule is one named predicate over lowercased article text.
type Rule struct {
	Name string
	// Test returns a non-empty reason when the rule says skip.
	Test func(text string) string
}

var merchKeywords = []string{
	"merchandise", "merch", "collectible", "plush", "spirit jersey",
	"loungefly", "popcorn bucket", "ears", "headband", "pin", "t-shirt",
	"tshirt", "shirt", "hoodie", "sweatshirt", "mug", "tumbler", "ornament",
	"figurine", "toy", "backpack", "souvenir", "apparel", "sipper",
}

var regionExcludeKeywords = []string{
	"disneyland paris", "tokyo disney", "hong kong disneyland",
	"shanghai disney", "aulani", "disney cruise",
}

var discountKeywords = []string{
	"% off", "percent off", "discount", "clearance", "sale price",
	"price drop", "coupon", "promo code", "flash sale",
}

var retailerKeywords = []string{
	"amazon", "walmart", "target.com", "boxlunch", "hot topic",
	"entertainment earth", "ebay",
}

var onlineExclusiveKeywords = []string{
	"online exclusive", "online-only", "online only",
	"shopdisney exclusive", "web exclusive",
}

// ArticleRules is the ordered screening list applied to each feed
// entry. The first firing rule wins; later rules are not evaluated.
func ArticleRules() []Rule {
	return []Rule{
		{
			Name: "require-merch-keyword",
			Test: func(text string) string {
				if containsAny(text, merchKeywords) {
					return ""
				}
				return "no merchandise keyword in title or body"
			},
		},
		{
			Name: "exclude-out-of-region",
			Test: matchReason(regionExcludeKeywords, "out-of-region venue"),
		},
		{
			Name: "exclude-discount-language",
			Test: matchReason(discountKeywords, "discount/sale coverage"),
		},
		{
			Name: "exclude-non-venue-retailer",
			Test: matchReason(retailerKeywords, "third-party retailer"),
		},
		{
			Name: "exclude-online-exclusive",
			Test: matchReason(onlineExclusiveKeywords, "online-exclusive item"),
		},
	}
}

// ScreenArticle runs the ordered rules against the article's title and
// body and returns the first firing rule's verdict.
func ScreenArticle(article domain.Article) Verdict {
	text := strings.ToLower(article.Title + " " + article.Content)
	for _, rule := range ArticleRules() {
		if reason := rule.Test(text); reason != "" {
			return Verdict{Skip: true, Rule: rule.Name, Reason: reason}
		}
	}
	return Verdict{}
}

// KeepProduct decides whether an extracted product may proceed to
// dedup and image resolution. Online-only, out-of-region, and
// non-venue-brand items are dropped here, before any catalog write.
func KeepProduct(p domain.ExtractedProduct) (bool, string) {
	if p.OnlineOnly {
		return false, "online-only item"
	}

	lower := strings.ToLower(p.Name + " " + p.Park + " " + strings.Join(p.Tags, " "))
	if containsAny(lower, regionExcludeKeywords) {
		return false, "out-of-region item"
	}
	if containsAny(lower, retailerKeywords) {
		return false, "non-venue-brand item"
	}
	return true, ""
}

func matchReason(keywords []string, reason string) func(string) string {
	return func(text string) string {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return reason + ": " + kw
			}
		}
		return ""
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
