package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeyLeagueRounds is the cache key of one user's view of a league's round list.
// has_predictions differs per user, so lists are never shared across users.
func (kb *KeyBuilder) KeyLeagueRounds(leagueID int, notGeneralRound bool, userScope string) string {
	return kb.BuildKey(fmt.Sprintf(KeyLeagueRounds, leagueID, notGeneralRound, userScope))
}

// PatternLeagueRounds matches every cached round list of a league
func (kb *KeyBuilder) PatternLeagueRounds(leagueID int) string {
	return kb.BuildKey(fmt.Sprintf(KeyLeagueRoundsScan, leagueID))
}
