// Package rounds decides which round a league screen shows and tracks the
// single active round while the user navigates.
package rounds

import (
	"time"

	"prode/internal/domain"
	"prode/pkg/errors"
)

// Selection maps round slug to whether it is the active round. At most one
// entry is true.
type Selection map[string]bool

// Has reports whether slug is one of the selection's rounds
func (s Selection) Has(slug string) bool {
	_, ok := s[slug]
	return ok
}

// Active returns the slug of the active round, if any
func (s Selection) Active() (string, bool) {
	for slug, active := range s {
		if active {
			return slug, true
		}
	}
	return "", false
}

// ComputeDefaultRound picks the round a screen opens on. First match wins:
//  1. the first pending round, in input order
//  2. the round with the earliest start date strictly after now
//  3. the first not-started round with no start date
//  4. the last round
func ComputeDefaultRound(rounds []domain.Round, now time.Time) (int, error) {
	if len(rounds) == 0 {
		return 0, errors.NewValidationError("rounds must not be empty", nil)
	}

	for _, r := range rounds {
		if r.State == domain.RoundStatePending {
			return r.ID, nil
		}
	}

	var next *domain.Round
	for i := range rounds {
		r := &rounds[i]
		if r.StartDate == nil || !r.StartDate.After(now) {
			continue
		}
		if next == nil || r.StartDate.Before(*next.StartDate) {
			next = r
		}
	}
	if next != nil {
		return next.ID, nil
	}

	for _, r := range rounds {
		if r.State == domain.RoundStateNotStarted && r.StartDate == nil {
			return r.ID, nil
		}
	}

	return rounds[len(rounds)-1].ID, nil
}

// BuildSelectionState marks activeSlug as the active round, or the first round
// when activeSlug is empty or unknown.
func BuildSelectionState(rounds []domain.Round, activeSlug string) Selection {
	sel := make(Selection, len(rounds))
	if len(rounds) == 0 {
		return sel
	}

	for _, r := range rounds {
		sel[r.Slug] = false
	}
	if activeSlug != "" && sel.Has(activeSlug) {
		sel[activeSlug] = true
	} else {
		sel[rounds[0].Slug] = true
	}
	return sel
}

// SetActiveRound returns a new selection where only slug is active. An unknown
// slug leaves every round inactive; callers that need a loud failure check Has first.
func SetActiveRound(sel Selection, slug string) Selection {
	next := make(Selection, len(sel))
	for key := range sel {
		next[key] = key == slug
	}
	return next
}
