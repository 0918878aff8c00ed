// Package images decides which scraped image belongs to which product
// and persists the chosen bytes to durable object storage.
package images

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"MerchScanner/internal/domain"
	"MerchScanner/internal/ports"
)

const (
	// How many article images the composite phase inspects.
	maxCompositeCandidates = 5
	// How many article images the single-match phase tries per product.
	maxSingleCandidates = 10
)

// Composite holds the result of a successful composite detection: the
// original raster plus one crop per recognized product name.
type Composite struct {
	SourceURL string
	original  []byte
	crops     map[string][]byte
	// originalURL caches the stored location of the uncropped raster
	// so every release cut from this composite shares one link.
	originalURL string
}

// Crop returns the crop for a product name, if the composite produced one.
func (c *Composite) Crop(name string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	data, ok := c.crops[name]
	return data, ok
}

// Resolver runs the two-phase image policy against the vision service
// and object storage.
type Resolver struct {
	fetcher  ports.Fetcher
	analyzer ports.ImageAnalyzer
	store    ports.ObjectStore
	logger   *slog.Logger
}

// New wires the resolver's collaborators.
func New(fetcher ports.Fetcher, analyzer ports.ImageAnalyzer, store ports.ObjectStore, logger *slog.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, analyzer: analyzer, store: store, logger: logger}
}

// FindComposite runs the composite phase for one article: when the
// article yielded more than one product and at least one candidate
// image, the first five candidates are checked for a single photograph
// depicting multiple named products. The first composite wins. Any
// per-candidate failure (fetch, decode, service error) moves on to the
// next candidate; a nil return means no composite was found.
func (r *Resolver) FindComposite(ctx context.Context, names []string, candidateURLs []string) *Composite {
	if len(names) < 2 || len(candidateURLs) == 0 {
		return nil
	}

	limit := len(candidateURLs)
	if limit > maxCompositeCandidates {
		limit = maxCompositeCandidates
	}

	for _, candidate := range candidateURLs[:limit] {
		boxes, err := r.analyzer.DetectComposite(ctx, candidate, names)
		if err != nil {
			r.debug("composite analysis failed", "url", candidate, "error", err)
			continue
		}
		if len(boxes) < 2 {
			continue
		}

		data, err := r.fetchImage(ctx, candidate)
		if err != nil {
			r.debug("composite fetch failed", "url", candidate, "error", err)
			continue
		}

		crops := make(map[string][]byte, len(boxes))
		for _, box := range boxes {
			crop, err := cropRegion(data, box)
			if err != nil {
				r.debug("crop discarded", "url", candidate, "product", box.Name, "error", err)
				continue
			}
			crops[box.Name] = crop
		}
		if len(crops) == 0 {
			continue
		}

		return &Composite{SourceURL: candidate, original: data, crops: crops}
	}

	return nil
}

// Attach resolves and stores the image for one release. Priority: a
// composite crop for the product name, then the extraction-supplied
// explicit image URL, then the single-match phase over the article's
// candidates. Exhausting every option leaves the release without an
// image rather than guessing. Candidate-level network failures are
// swallowed; only object-storage failures surface as errors.
func (r *Resolver) Attach(ctx context.Context, release *domain.Release, product domain.ExtractedProduct, comp *Composite, candidateURLs []string) error {
	if crop, ok := comp.Crop(product.Name); ok {
		return r.attachCrop(ctx, release, comp, crop)
	}

	if product.ImageURL != "" {
		if err := r.attachDirect(ctx, release, product.ImageURL); err == nil {
			return nil
		} else if isStoreErr(err) {
			return err
		}
		// Unfetchable explicit URL: fall through to the candidates.
	}

	return r.attachFirstMatch(ctx, release, product.Name, candidateURLs)
}

func (r *Resolver) attachCrop(ctx context.Context, release *domain.Release, comp *Composite, crop []byte) error {
	url, err := r.put(ctx, releaseKey(release.ID), crop)
	if err != nil {
		return fmt.Errorf("store crop: %w", err)
	}

	// Keep the uncropped composite for later manual re-crop. Stored
	// once; every release cut from the same composite shares the link.
	if comp.originalURL == "" {
		originalURL, err := r.put(ctx, originalKey(release.ID), comp.original)
		if err != nil {
			return fmt.Errorf("store original: %w", err)
		}
		comp.originalURL = originalURL
	}

	release.ImageURL = url
	release.Gallery = append(release.Gallery, domain.GalleryImage{
		URL:      url,
		Tier:     domain.TierBlog,
		Original: comp.originalURL,
	})
	return nil
}

func (r *Resolver) attachDirect(ctx context.Context, release *domain.Release, imageURL string) error {
	data, err := r.fetchImage(ctx, imageURL)
	if err != nil {
		return err
	}
	url, err := r.put(ctx, releaseKey(release.ID), data)
	if err != nil {
		return storeErr{err}
	}
	release.ImageURL = url
	release.Gallery = append(release.Gallery, domain.GalleryImage{URL: url, Tier: domain.TierBlog})
	return nil
}

// attachFirstMatch is the single-match phase: up to ten candidates are
// shown to the verification service and the first positive answer with
// medium-or-higher confidence wins.
func (r *Resolver) attachFirstMatch(ctx context.Context, release *domain.Release, name string, candidateURLs []string) error {
	limit := len(candidateURLs)
	if limit > maxSingleCandidates {
		limit = maxSingleCandidates
	}

	for _, candidate := range candidateURLs[:limit] {
		verdict, err := r.analyzer.VerifyProduct(ctx, candidate, name)
		if err != nil {
			r.debug("verification failed", "url", candidate, "error", err)
			continue
		}
		if !verdict.Match || !confidentEnough(verdict.Confidence) {
			continue
		}

		data, err := r.fetchImage(ctx, candidate)
		if err != nil {
			r.debug("candidate fetch failed", "url", candidate, "error", err)
			continue
		}

		url, err := r.put(ctx, releaseKey(release.ID), data)
		if err != nil {
			return fmt.Errorf("store image: %w", err)
		}
		release.ImageURL = url
		release.Gallery = append(release.Gallery, domain.GalleryImage{URL: url, Tier: domain.TierBlog})
		return nil
	}

	// No candidate verified: the release proceeds without an image.
	return nil
}

func (r *Resolver) fetchImage(ctx context.Context, url string) ([]byte, error) {
	data, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if _, _, err := validateImage(data); err != nil {
		return nil, fmt.Errorf("validate %s: %w", url, err)
	}
	return data, nil
}

func (r *Resolver) put(ctx context.Context, key string, data []byte) (string, error) {
	contentType, ext, err := validateImage(data)
	if err != nil {
		return "", err
	}
	return r.store.Put(ctx, key+"."+ext, data, contentType)
}

func releaseKey(releaseID string) string {
	return fmt.Sprintf("releases/%s/%s", releaseID, uuid.NewString())
}

func originalKey(releaseID string) string {
	return fmt.Sprintf("releases/%s/originals/%s", releaseID, uuid.NewString())
}

func confidentEnough(confidence string) bool {
	return confidence == "medium" || confidence == "high"
}

type storeErr struct{ error }

func isStoreErr(err error) bool {
	_, ok := err.(storeErr)
	return ok
}

func (r *Resolver) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
