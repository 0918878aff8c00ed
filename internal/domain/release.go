package domain

import "time"

// Status enumerates the release lifecycle. The order is total and a
// release only ever moves toward sold_out.
type Status string

const (
	StatusRumored    Status = "rumored"
	StatusAnnounced  Status = "announced"
	StatusComingSoon Status = "coming_soon"
	StatusAvailable  Status = "available"
	StatusSoldOut    Status = "sold_out"
)

var statusRank = map[Status]int{
	StatusRumored:    0,
	StatusAnnounced:  1,
	StatusComingSoon: 2,
	StatusAvailable:  3,
	StatusSoldOut:    4,
}

// Rank returns the position of s in the lifecycle order, or -1 for an
// unknown status.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is one of the five lifecycle states.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// TrustTier classifies where a gallery image came from. Tiers decide
// public visibility: manual uploads and blog scrapes are shown, images
// captured by the internal price checker are not.
type TrustTier string

const (
	TierManual     TrustTier = "manual"
	TierBlog       TrustTier = "blog"
	TierPriceCheck TrustTier = "internal-price-check"
)

// Public reports whether images of this tier may be surfaced outside
// the admin boundary.
func (t TrustTier) Public() bool {
	return t == TierManual || t == TierBlog
}

// GalleryImage is one stored image attached to a release.
type GalleryImage struct {
	URL  string
	Tier TrustTier
	// Original points at the uncropped composite this image was cut
	// from, when it was produced by a crop.
	Original string
}

// OnlineAvailability is the internal-only snapshot of whether a product
// is sellable outside the physical venue. Never exposed publicly.
type OnlineAvailability struct {
	Available bool
	CheckedAt *time.Time
	Price     float64
	URL       string
}

// Release is one catalog entry for a physical product discovered from
// content ingestion.
type Release struct {
	ID             string
	Title          string
	Description    string
	ImageURL       string
	Gallery        []GalleryImage
	CanonicalKey   string
	SourceURL      string
	SourceName     string
	Park           string
	Category       string
	EstimatedPrice float64
	LimitedEdition bool
	Featured       bool
	Status         Status

	ProjectedDate     *time.Time
	ActualReleaseDate *time.Time
	SoldOutDate       *time.Time

	// MergedInto marks this release as superseded by another. A merged
	// release is a soft tombstone: kept for audit, excluded from
	// matching, search, and notification queries.
	MergedInto *string

	Online OnlineAvailability

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Merged reports whether the release has been folded into another entry.
func (r *Release) Merged() bool {
	return r.MergedInto != nil && *r.MergedInto != ""
}
