package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RoundState mirrors the upstream round state enumeration. Values are the wire integers.
type RoundState int

const (
	RoundStateNotStarted RoundState = iota
	RoundStatePending
	RoundStateFinalized
	RoundStateCancelled
	RoundStatePostponed
	RoundStatePrePlayed
)

var roundStateNames = [...]string{
	"not_started",
	"pending",
	"finalized",
	"cancelled",
	"postponed",
	"pre_played",
}

func (s RoundState) String() string {
	if s < 0 || int(s) >= len(roundStateNames) {
		return fmt.Sprintf("round_state(%d)", int(s))
	}
	return roundStateNames[s]
}

// Round is one scheduled competition period within a league. Read-only on our side.
type Round struct {
	ID             int        `json:"id" validate:"gt=0"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug" validate:"required"`
	Number         int        `json:"number"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	State          RoundState `json:"state" validate:"min=0,max=5"`
	HasPredictions bool       `json:"has_predictions"`
}

// FindRound returns the round with the given slug
func FindRound(rounds []Round, slug string) (Round, bool) {
	for _, r := range rounds {
		if r.Slug == slug {
			return r, true
		}
	}
	return Round{}, false
}

// FindRoundByID returns the round with the given id
func FindRoundByID(rounds []Round, id int) (Round, bool) {
	for _, r := range rounds {
		if r.ID == id {
			return r, true
		}
	}
	return Round{}, false
}

// dateLayouts are the formats the upstream uses for round dates
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate parses an upstream date. Empty input yields nil.
func ParseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", value)
}

// UnmarshalJSON accepts both full timestamps and bare dates for start/end
func (r *Round) UnmarshalJSON(data []byte) error {
	type plain Round
	var wire struct {
		plain
		StartDate *string `json:"start_date"`
		EndDate   *string `json:"end_date"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = Round(wire.plain)
	var err error
	if wire.StartDate != nil {
		if r.StartDate, err = ParseDate(*wire.StartDate); err != nil {
			return fmt.Errorf("round %d start_date: %w", r.ID, err)
		}
	}
	if wire.EndDate != nil {
		if r.EndDate, err = ParseDate(*wire.EndDate); err != nil {
			return fmt.Errorf("round %d end_date: %w", r.ID, err)
		}
	}
	return nil
}
