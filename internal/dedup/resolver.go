// Package dedup decides whether a candidate product matches an
// existing catalog release.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"MerchScanner/internal/ports"
)

// Match thresholds. AutoMatch merges on ingest without review;
// PossibleDuplicate is surfaced for manual review only.
const (
	AutoMatchThreshold         = 0.7
	PossibleDuplicateThreshold = 0.5
)

// ErrNoMatch means the candidate is a new product.
var ErrNoMatch = errors.New("dedup: no matching release")

// Candidate carries the dedup signals for one extracted product.
type Candidate struct {
	Title        string
	CanonicalKey string
	ImageURL     string
	SourceURL    string
}

// Match identifies an existing release the candidate resolved to.
type Match struct {
	ReleaseID  string
	Confidence float64
	Reason     string
	// Review marks a below-auto-threshold match that should not be
	// merged automatically.
	Review bool
}

// Resolver matches candidates against the catalog. It never writes:
// on a match the orchestrator enriches the existing release and
// appends provenance.
type Resolver struct {
	releases ports.ReleaseRepository
	logger   *slog.Logger
}

// New wires the resolver to the catalog repository.
func New(releases ports.ReleaseRepository, logger *slog.Logger) *Resolver {
	return &Resolver{releases: releases, logger: logger}
}

// Resolve runs the three matching levels in priority order: exact
// canonical key, store similarity search, then a title-prefix fallback
// when the similarity function errors. All levels consider only
// non-merged releases (enforced by the repository queries). Returns
// ErrNoMatch when the candidate is new.
func (r *Resolver) Resolve(ctx context.Context, c Candidate) (Match, error) {
	if existing, err := r.releases.GetByCanonicalKey(ctx, c.CanonicalKey); err != nil {
		return Match{}, fmt.Errorf("canonical lookup: %w", err)
	} else if existing != nil {
		return Match{
			ReleaseID:  existing.ID,
			Confidence: 1.0,
			Reason:     "exact canonical key match",
		}, nil
	}

	candidates, err := r.releases.FindSimilar(ctx, c.Title, c.ImageURL, c.SourceURL)
	if err != nil {
		r.debug("similarity search failed, using title fallback", "error", err)
		return r.fallback(ctx, c)
	}

	if len(candidates) == 0 {
		return Match{}, ErrNoMatch
	}

	// Results are ranked; ties break toward the first candidate.
	best := candidates[0]
	switch {
	case best.Score >= AutoMatchThreshold:
		return Match{ReleaseID: best.ReleaseID, Confidence: best.Score, Reason: best.Reason}, nil
	case best.Score >= PossibleDuplicateThreshold:
		return Match{ReleaseID: best.ReleaseID, Confidence: best.Score, Reason: best.Reason, Review: true}, nil
	}

	return Match{}, ErrNoMatch
}

// FindPotentialDuplicates is the out-of-hot-path admin review query:
// all similarity candidates at or above the review threshold.
func (r *Resolver) FindPotentialDuplicates(ctx context.Context, c Candidate) ([]ports.SimilarCandidate, error) {
	candidates, err := r.releases.FindSimilar(ctx, c.Title, c.ImageURL, c.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	var kept []ports.SimilarCandidate
	for _, cand := range candidates {
		if cand.Score >= PossibleDuplicateThreshold {
			kept = append(kept, cand)
		}
	}
	return kept, nil
}

// fallback searches active titles for the first three words of the
// candidate title.
func (r *Resolver) fallback(ctx context.Context, c Candidate) (Match, error) {
	words := strings.Fields(c.Title)
	if len(words) > 3 {
		words = words[:3]
	}
	prefix := strings.Join(words, " ")
	if prefix == "" {
		return Match{}, ErrNoMatch
	}

	existing, err := r.releases.FindByTitlePrefix(ctx, prefix)
	if err != nil {
		return Match{}, fmt.Errorf("title fallback: %w", err)
	}
	if existing == nil {
		return Match{}, ErrNoMatch
	}

	// A substring hit carries review-band confidence at best, so it is
	// never auto-merged.
	return Match{
		ReleaseID:  existing.ID,
		Confidence: PossibleDuplicateThreshold,
		Reason:     fmt.Sprintf("title substring match on %q", prefix),
		Review:     true,
	}, nil
}

func (r *Resolver) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
