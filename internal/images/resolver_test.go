package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"MerchScanner/internal/domain"
	"MerchScanner/internal/ports"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fakeFetcher struct {
	pages map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return data, nil
}

type fakeAnalyzer struct {
	composites map[string][]ports.BoundingBox
	verify     map[string]ports.ImageMatch
	errs       map[string]error
}

func (f *fakeAnalyzer) VerifyProduct(_ context.Context, imageURL, _ string) (ports.ImageMatch, error) {
	if err := f.errs[imageURL]; err != nil {
		return ports.ImageMatch{}, err
	}
	return f.verify[imageURL], nil
}

func (f *fakeAnalyzer) DetectComposite(_ context.Context, imageURL string, _ []string) ([]ports.BoundingBox, error) {
	if err := f.errs[imageURL]; err != nil {
		return nil, err
	}
	return f.composites[imageURL], nil
}

type fakeStore struct {
	puts []string
}

func (f *fakeStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.puts = append(f.puts, key)
	return "https://cdn.example.com/" + key, nil
}

func TestFindCompositeAndAttach(t *testing.T) {
	t.Parallel()

	const compositeURL = "https://blog.example.com/both.png"
	names := []string{"Castle Ear Headband", "World T-Shirt"}

	fetcher := &fakeFetcher{pages: map[string][]byte{compositeURL: testPNG(t, 400, 200)}}
	analyzer := &fakeAnalyzer{composites: map[string][]ports.BoundingBox{
		compositeURL: {
			{Name: "Castle Ear Headband", X: 0, Y: 0, W: 50, H: 100},
			{Name: "World T-Shirt", X: 50, Y: 0, W: 50, H: 100},
		},
	}}
	store := &fakeStore{}
	r := New(fetcher, analyzer, store, nil)

	comp := r.FindComposite(context.Background(), names, []string{compositeURL})
	if comp == nil {
		t.Fatal("expected a composite")
	}
	if _, ok := comp.Crop("Castle Ear Headband"); !ok {
		t.Fatal("missing crop for first product")
	}

	relA := &domain.Release{ID: "rel-a"}
	relB := &domain.Release{ID: "rel-b"}
	for _, pair := range []struct {
		rel  *domain.Release
		name string
	}{{relA, "Castle Ear Headband"}, {relB, "World T-Shirt"}} {
		err := r.Attach(context.Background(), pair.rel, domain.ExtractedProduct{Name: pair.name}, comp, nil)
		if err != nil {
			t.Fatal(err)
		}
	}

	if relA.ImageURL == "" || relB.ImageURL == "" {
		t.Fatal("both releases must reference a crop")
	}
	if relA.ImageURL == relB.ImageURL {
		t.Fatal("releases must get distinct crops")
	}
	if len(relA.Gallery) != 1 || relA.Gallery[0].Original == "" {
		t.Fatal("crop must link the original composite")
	}
	if relA.Gallery[0].Original != relB.Gallery[0].Original {
		t.Fatal("both releases must share one original link")
	}

	var originals int
	for _, key := range store.puts {
		if strings.Contains(key, "/originals/") {
			originals++
		}
		if !strings.HasPrefix(key, "releases/") {
			t.Fatalf("storage key %q not namespaced under releases/", key)
		}
	}
	if originals != 1 {
		t.Fatalf("original stored %d times, want once", originals)
	}
}

func TestFindCompositeNeedsMultipleProducts(t *testing.T) {
	t.Parallel()

	r := New(&fakeFetcher{}, &fakeAnalyzer{}, &fakeStore{}, nil)
	if comp := r.FindComposite(context.Background(), []string{"only one"}, []string{"https://x/img.png"}); comp != nil {
		t.Fatal("single-product article must skip the composite phase")
	}
}

func TestFindCompositeFirstSuccessWins(t *testing.T) {
	t.Parallel()

	good := "https://blog.example.com/good.png"
	bad := "https://blog.example.com/bad.png"
	names := []string{"A Plush", "B Plush"}

	fetcher := &fakeFetcher{pages: map[string][]byte{good: testPNG(t, 200, 200)}}
	analyzer := &fakeAnalyzer{
		errs: map[string]error{bad: errors.New("service timeout")},
		composites: map[string][]ports.BoundingBox{
			good: {
				{Name: "A Plush", X: 0, Y: 0, W: 100, H: 50},
				{Name: "B Plush", X: 0, Y: 50, W: 100, H: 50},
			},
		},
	}
	r := New(fetcher, analyzer, &fakeStore{}, nil)

	comp := r.FindComposite(context.Background(), names, []string{bad, good})
	if comp == nil || comp.SourceURL != good {
		t.Fatalf("expected composite from %s after swallowing the failure", good)
	}
}

func TestCropBelowFloorDiscarded(t *testing.T) {
	t.Parallel()

	data := testPNG(t, 100, 100)
	_, err := cropRegion(data, ports.BoundingBox{X: 0, Y: 0, W: 10, H: 10})
	if err == nil {
		t.Fatal("10x10 crop must be rejected")
	}
}

func TestAttachSingleMatchPhase(t *testing.T) {
	t.Parallel()

	low := "https://blog.example.com/maybe.png"
	yes := "https://blog.example.com/yes.png"

	fetcher := &fakeFetcher{pages: map[string][]byte{yes: testPNG(t, 80, 80)}}
	analyzer := &fakeAnalyzer{verify: map[string]ports.ImageMatch{
		low: {Match: true, Confidence: "low"},
		yes: {Match: true, Confidence: "medium"},
	}}
	store := &fakeStore{}
	r := New(fetcher, analyzer, store, nil)

	rel := &domain.Release{ID: "rel-1"}
	err := r.Attach(context.Background(), rel, domain.ExtractedProduct{Name: "Figment Plush"}, nil, []string{low, yes})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rel.ImageURL, "releases/rel-1/") {
		t.Fatalf("image URL %q not namespaced by release", rel.ImageURL)
	}
	if len(store.puts) != 1 {
		t.Fatalf("stored %d objects, want 1", len(store.puts))
	}
}

func TestAttachExhaustedLeavesNoImage(t *testing.T) {
	t.Parallel()

	var urls []string
	verify := map[string]ports.ImageMatch{}
	for i := 0; i < 12; i++ {
		u := fmt.Sprintf("https://blog.example.com/%d.png", i)
		urls = append(urls, u)
		verify[u] = ports.ImageMatch{Match: false}
	}
	analyzer := &fakeAnalyzer{verify: verify}
	r := New(&fakeFetcher{}, analyzer, &fakeStore{}, nil)

	rel := &domain.Release{ID: "rel-1"}
	if err := r.Attach(context.Background(), rel, domain.ExtractedProduct{Name: "Mystery Pin"}, nil, urls); err != nil {
		t.Fatal(err)
	}
	if rel.ImageURL != "" {
		t.Fatal("exhausted candidates must not guess an image")
	}
}

func TestAttachExplicitImageURL(t *testing.T) {
	t.Parallel()

	explicit := "https://blog.example.com/product.png"
	fetcher := &fakeFetcher{pages: map[string][]byte{explicit: testPNG(t, 60, 60)}}
	r := New(fetcher, &fakeAnalyzer{}, &fakeStore{}, nil)

	rel := &domain.Release{ID: "rel-1"}
	err := r.Attach(context.Background(), rel, domain.ExtractedProduct{Name: "Figment Plush", ImageURL: explicit}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rel.ImageURL == "" {
		t.Fatal("explicit extraction image must be stored")
	}
}

func TestValidateImage(t *testing.T) {
	t.Parallel()

	if _, _, err := validateImage([]byte("<html>not an image</html>")); err == nil {
		t.Fatal("HTML payload must be rejected")
	}

	big := make([]byte, maxImageBytes+1)
	if _, _, err := validateImage(big); err == nil {
		t.Fatal("oversized payload must be rejected")
	}

	ct, ext, err := validateImage(testPNG(t, 10, 10))
	if err != nil {
		t.Fatal(err)
	}
	if ct != "image/png" || ext != "png" {
		t.Fatalf("got %s/%s", ct, ext)
	}
}
