package domain

// LeaderboardEntry is one participant's ranked standing for a round or tournament.
// The place flags are only populated in paid mode.
type LeaderboardEntry struct {
	Position         int    `json:"position" validate:"gte=1"`
	DisplayName      string `json:"username"`
	Avatar           string `json:"avatar,omitempty"`
	Points           int    `json:"points" validate:"gte=0"`
	ExactPredictions int    `json:"exact_predictions" validate:"gte=0"`
	FirstPlace       bool   `json:"first_place,omitempty"`
	SecondPlace      bool   `json:"second_place,omitempty"`
	ThirdPlace       bool   `json:"third_place,omitempty"`
}

// LeaderboardPage is one batch of rank-ordered entries plus the continuation cursor.
// Next is nil exactly when no further pages exist.
type LeaderboardPage struct {
	Entries []LeaderboardEntry `json:"results" validate:"dive"`
	Next    *string            `json:"next"`
}

// LegacyResultsPage is the offset-paginated shape of the older results endpoint
type LegacyResultsPage struct {
	Count    int                `json:"count" validate:"gte=0"`
	Next     *string            `json:"next"`
	Previous *string            `json:"previous"`
	Results  []LeaderboardEntry `json:"results" validate:"dive"`
}

// LeaderboardView is a snapshot of what a pager has accumulated
type LeaderboardView struct {
	RoundSlug    string             `json:"round_slug"`
	TournamentID int                `json:"tournament_id"`
	Entries      []LeaderboardEntry `json:"entries"`
	HasMore      bool               `json:"has_more"`
	Loaded       bool               `json:"loaded"`
}
