package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"MerchScanner/internal/config"
	"MerchScanner/internal/domain"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testExtractor(endpoint string) *Extractor {
	return NewExtractor(config.ExtractorConfig{
		Endpoint: endpoint,
		Model:    "gpt-4o-mini",
		APIKey:   "sk-test",
	}, nil)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	payload := `{"is_merchandise_relevant": true, "products": [
		{"name": "Castle Ear Headband", "category": "accessories", "park": "Magic Kingdom",
		 "price": 34.99, "is_limited_edition": true, "is_online_only": false,
		 "tags": ["ears"], "demand_score": 8, "status": "available", "projected_date": "2026-04-01"},
		{"name": "  ", "category": "ignored"},
		{"name": "World T-Shirt", "is_online_only": true, "demand_score": 40, "status": "nonsense"}
	]}`
	srv := completionServer(t, payload)
	defer srv.Close()

	got, err := testExtractor(srv.URL).Extract(context.Background(), domain.Article{Title: "New Merch"})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Relevant {
		t.Fatal("relevance flag lost")
	}
	if len(got.Products) != 2 {
		t.Fatalf("products = %d, want 2 (blank name dropped)", len(got.Products))
	}

	first := got.Products[0]
	if first.Name != "Castle Ear Headband" || !first.LimitedEdition || first.DemandScore != 8 {
		t.Fatalf("first product = %+v", first)
	}
	if first.StatusGuess != domain.StatusAvailable {
		t.Fatalf("status = %s", first.StatusGuess)
	}
	if first.ProjectedDate == nil {
		t.Fatal("projected date not parsed")
	}

	second := got.Products[1]
	if !second.OnlineOnly {
		t.Fatal("online-only flag lost")
	}
	if second.DemandScore != 10 {
		t.Fatalf("demand score not clamped: %d", second.DemandScore)
	}
	if second.StatusGuess != domain.StatusAnnounced {
		t.Fatalf("unknown status must default to announced, got %s", second.StatusGuess)
	}
}

func TestExtractMalformedFailsClosed(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, "Sure! Here are the products I found: castle ears and a shirt.")
	defer srv.Close()

	got, err := testExtractor(srv.URL).Extract(context.Background(), domain.Article{Title: "x"})
	if err == nil {
		t.Fatal("malformed output must return an error")
	}
	if len(got.Products) != 0 {
		t.Fatalf("fail-closed extraction produced %d products", len(got.Products))
	}
}

func TestExtractFencedJSONAccepted(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, "```json\n{\"is_merchandise_relevant\": false, \"products\": []}\n```")
	defer srv.Close()

	got, err := testExtractor(srv.URL).Extract(context.Background(), domain.Article{Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Relevant {
		t.Fatal("relevance should be false")
	}
}

func TestExtractAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := testExtractor(srv.URL).Extract(context.Background(), domain.Article{}); err == nil {
		t.Fatal("expected API error")
	}
}

func TestVisionDetectComposite(t *testing.T) {
	t.Parallel()

	payload := `{"is_composite": true, "regions": [
		{"name": "Castle Ear Headband", "x": 0, "y": 0, "w": 50, "h": 100},
		{"name": "World T-Shirt", "x": 50, "y": 0, "w": 50, "h": 100},
		{"name": "", "x": 0, "y": 0, "w": 10, "h": 10},
		{"name": "Zero Width", "x": 0, "y": 0, "w": 0, "h": 10}
	]}`
	srv := completionServer(t, payload)
	defer srv.Close()

	v := NewVision(config.ExtractorConfig{Endpoint: srv.URL, VisionModel: "gpt-4o", APIKey: "sk-test"}, nil)
	boxes, err := v.DetectComposite(context.Background(), "https://x/img.jpg", []string{"Castle Ear Headband", "World T-Shirt"})
	if err != nil {
		t.Fatal(err)
	}
	if len(boxes) != 2 {
		t.Fatalf("boxes = %d, want 2 (invalid regions dropped)", len(boxes))
	}
}

func TestVisionNotComposite(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, `{"is_composite": false, "regions": []}`)
	defer srv.Close()

	v := NewVision(config.ExtractorConfig{Endpoint: srv.URL, VisionModel: "gpt-4o", APIKey: "sk-test"}, nil)
	boxes, err := v.DetectComposite(context.Background(), "https://x/img.jpg", []string{"A", "B"})
	if err != nil {
		t.Fatal(err)
	}
	if boxes != nil {
		t.Fatalf("boxes = %v, want nil", boxes)
	}
}

func TestVisionVerifyProduct(t *testing.T) {
	t.Parallel()

	cases := []struct {
		content string
		match   bool
		conf    string
	}{
		{`{"match": true, "confidence": "High"}`, true, "high"},
		{`{"match": false, "confidence": "low"}`, false, "low"},
	}
	for i, tc := range cases {
		srv := completionServer(t, tc.content)
		v := NewVision(config.ExtractorConfig{Endpoint: srv.URL, VisionModel: "gpt-4o", APIKey: "sk-test"}, nil)
		got, err := v.VerifyProduct(context.Background(), "https://x/img.jpg", "Figment Plush")
		srv.Close()
		if err != nil {
			t.Fatal(err)
		}
		if got.Match != tc.match || got.Confidence != tc.conf {
			t.Fatalf("case %d: got %+v", i, got)
		}
	}
}
