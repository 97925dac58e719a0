package domain

// Side selects which score of a match prediction is being changed
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// Valid reports whether s is a known side
func (s Side) Valid() bool {
	return s == SideHome || s == SideAway
}

// PredictionEdit is an unsaved change to a match's predicted score
type PredictionEdit struct {
	MatchID   int `json:"match_id" validate:"gt=0"`
	HomeScore int `json:"home_score" validate:"gte=0"`
	AwayScore int `json:"away_score" validate:"gte=0"`
}

// PredictionBatch is the body persisted upstream for one round
type PredictionBatch struct {
	Predictions []PredictionEdit `json:"predictions" validate:"min=1,dive"`
}
