package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"prode/internal/domain"
	"prode/pkg/auth"
	"prode/pkg/redis"
)

// CacheService provides cache-aside access to round lists
type CacheService struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	// generations counts invalidations per league; a fill that started
	// under an older generation must not land.
	genMu       sync.Mutex
	generations map[int]uint64
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *CacheService {
	return &CacheService{
		redis:       redisClient,
		ttl:         ttl,
		logger:      logger,
		generations: make(map[int]uint64),
	}
}

// GetLeagueRoundsWithCache retrieves a league's rounds with the cache-aside pattern.
// Cache errors and corrupted entries fall through to the upstream.
func (c *CacheService) GetLeagueRoundsWithCache(ctx context.Context, leagueID int, notGeneralRound bool, fallback func(ctx context.Context, leagueID int, notGeneralRound bool) ([]domain.Round, error)) ([]domain.Round, error) {
	cacheKey := c.redis.KeyBuilder.KeyLeagueRounds(leagueID, notGeneralRound, userScope(ctx))

	cachedData, err := c.redis.Get(ctx, cacheKey)
	if err == nil && cachedData != "" {
		var rounds []domain.Round
		if marshalErr := json.Unmarshal([]byte(cachedData), &rounds); marshalErr == nil {
			c.logger.Debug("Rounds cache hit", zap.Int("league_id", leagueID))
			return rounds, nil
		} else {
			c.logger.Warn("Rounds cache corrupted, falling back to API",
				zap.Int("league_id", leagueID),
				zap.Error(marshalErr))
		}
	} else if err != nil && !stderrors.Is(err, redis.Nil) {
		c.logger.Warn("Rounds cache error, falling back to API",
			zap.Int("league_id", leagueID),
			zap.Error(err))
	}

	c.logger.Debug("Rounds cache miss", zap.Int("league_id", leagueID))
	gen := c.generation(leagueID)
	rounds, err := fallback(ctx, leagueID, notGeneralRound)
	if err != nil {
		return nil, fmt.Errorf("rounds API fallback failed: %w", err)
	}

	if len(rounds) > 0 {
		go c.cacheRoundsAsync(cacheKey, leagueID, gen, rounds)
	}

	return rounds, nil
}

// InvalidateLeagueRounds drops every cached round list of a league
func (c *CacheService) InvalidateLeagueRounds(ctx context.Context, leagueID int) error {
	c.genMu.Lock()
	c.generations[leagueID]++
	c.genMu.Unlock()

	if err := c.redis.InvalidatePattern(ctx, c.redis.KeyBuilder.PatternLeagueRounds(leagueID)); err != nil {
		c.logger.Error("Failed to invalidate league rounds",
			zap.Int("league_id", leagueID),
			zap.Error(err))
		return err
	}

	c.logger.Debug("League rounds invalidated", zap.Int("league_id", leagueID))
	return nil
}

// HealthCheck performs a health check on the cache system
func (c *CacheService) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := c.redis.Health(ctx)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Cache health check failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Cache health check passed", zap.Duration("duration", duration))
	return nil
}

func (c *CacheService) generation(leagueID int) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.generations[leagueID]
}

// cacheRoundsAsync caches a round list asynchronously unless the league was
// invalidated after gen was read
func (c *CacheService) cacheRoundsAsync(cacheKey string, leagueID int, gen uint64, rounds []domain.Round) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.generation(leagueID) != gen {
		c.logger.Debug("Skipping stale rounds fill", zap.Int("league_id", leagueID))
		return
	}

	data, err := json.Marshal(rounds)
	if err != nil {
		c.logger.Error("Failed to marshal rounds for caching",
			zap.Int("league_id", leagueID),
			zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, cacheKey, string(data), c.ttl); err != nil {
		c.logger.Error("Failed to cache rounds",
			zap.Int("league_id", leagueID),
			zap.Error(err))
		return
	}

	// an invalidation may have run between the check and the write
	if c.generation(leagueID) != gen {
		if err := c.redis.Delete(ctx, cacheKey); err != nil {
			c.logger.Warn("Failed to drop stale rounds fill",
				zap.Int("league_id", leagueID),
				zap.Error(err))
		}
		return
	}
	c.logger.Debug("Rounds cached successfully", zap.Int("league_id", leagueID))
}

// userScope derives a short, non-reversible cache scope from the caller's token
func userScope(ctx context.Context) string {
	token, _ := auth.TokenFromContext(ctx)
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
