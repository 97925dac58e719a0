package container

import (
	"prode/internal/config"
	"prode/internal/guard"
	"prode/internal/service"
	"prode/pkg/logger"
	"prode/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	RedisClient  *redis.Client
	APIClient    *service.APIClient
	CacheService *service.CacheService
	Services     *service.Services
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *logger.Logger) (*Container, error) {
	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Named("redis").Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without caching")
	}

	var cacheService *service.CacheService
	if redisClient != nil {
		cacheService = service.NewCacheService(redisClient, cfg.RoundsCacheTTL, logger.Named("cache").Logger)
	}

	apiClient := service.NewAPIClient(cfg, logger)
	roundService := service.NewRoundService(apiClient, cacheService, logger)
	sessionService := service.NewSessionService(apiClient, roundService, dismissPolicy(cfg), cfg.SessionIdleTimeout, logger)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		RedisClient:  redisClient,
		APIClient:    apiClient,
		CacheService: cacheService,
		Services: &service.Services{
			API:      apiClient,
			Rounds:   roundService,
			Sessions: sessionService,
		},
	}, nil
}

func dismissPolicy(cfg *config.Config) guard.DismissPolicy {
	if cfg.GuardDismissKeepsDirty {
		return guard.DismissKeepsDirty
	}
	return guard.DismissClearsDirty
}

// GetRoundService returns the round service
func (c *Container) GetRoundService() service.RoundService {
	return c.Services.Rounds
}

// GetSessionService returns the session service
func (c *Container) GetSessionService() service.SessionService {
	return c.Services.Sessions
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// GetCacheService returns the cache service (nil if Redis is not available)
func (c *Container) GetCacheService() *service.CacheService {
	return c.CacheService
}

// Close releases the container's connections
func (c *Container) Close() error {
	if c.RedisClient != nil {
		return c.RedisClient.Close()
	}
	return nil
}
