// Package lifecycle enforces the forward-only release status order and
// the date stamps tied to status changes.
package lifecycle

import (
	"fmt"
	"time"

	"MerchScanner/internal/domain"
)

// ErrBackward is returned when a transition targets a state earlier in
// the lifecycle order than the release's current state.
var ErrBackward = fmt.Errorf("lifecycle: backward status transition rejected")

// Clock supplies today's date for implicit stamping. Swappable in tests.
type Clock func() time.Time

// Machine applies status transitions to releases.
type Machine struct {
	now Clock
}

// New builds a Machine. A nil clock defaults to time.Now.
func New(now Clock) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{now: now}
}

// Advance moves r to next. A backward move returns ErrBackward without
// mutating r. Moving to the same or a later state succeeds; on entering
// available the actual-release date is stamped with today unless an
// explicit date is supplied or one is already set, and likewise the
// sold-out date on entering sold_out. Stamps are written at most once.
func (m *Machine) Advance(r *domain.Release, next domain.Status, explicit *time.Time) error {
	if !next.Valid() {
		return fmt.Errorf("lifecycle: unknown status %q", next)
	}
	if !r.Status.Valid() {
		// Fresh release with no status yet: any state is reachable.
		r.Status = next
	} else if next.Rank() < r.Status.Rank() {
		return ErrBackward
	} else {
		r.Status = next
	}

	switch next {
	case domain.StatusAvailable:
		if r.ActualReleaseDate == nil {
			r.ActualReleaseDate = m.stampDate(explicit)
		}
	case domain.StatusSoldOut:
		if r.SoldOutDate == nil {
			r.SoldOutDate = m.stampDate(explicit)
		}
	}

	return nil
}

// stampDate reduces a moment to midnight of its own calendar day, so
// the stamped date matches the operator's timezone rather than UTC.
func (m *Machine) stampDate(explicit *time.Time) *time.Time {
	t := m.now()
	if explicit != nil {
		t = *explicit
	}
	year, month, day := t.Date()
	d := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	return &d
}
