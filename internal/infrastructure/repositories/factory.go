package repositories

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pairnet/internal/core/ports"
	"pairnet/internal/infrastructure/repositories/memory"
	redisrepo "pairnet/internal/infrastructure/repositories/redis"
	"pairnet/pkg/config"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis     bool
	redisClient  *redis.Client
	memoryRoster *memory.MemoryRoster
	logger       *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.Connect(context.Background(), redisrepo.ClientOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("Failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("Using Redis repositories")
		}
	}

	if !factory.useRedis {
		factory.memoryRoster = memory.NewMemoryRoster()
		logger.Info("Using memory repositories")
	}

	return factory, nil
}

// CreateMatchRepository creates the match record sink (Redis or memory with fallback)
func (f *RepositoryFactory) CreateMatchRepository() ports.MatchRecordRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisMatchRepository(f.redisClient)
	}
	return memory.NewMemoryMatchRepository()
}

// CreateConnectionRepository creates the connection record store (Redis or memory with fallback)
func (f *RepositoryFactory) CreateConnectionRepository() ports.ConnectionRecordRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisConnectionRepository(f.redisClient)
	}
	return memory.NewMemoryConnectionRepository()
}

// RedisClient returns the shared Redis client, or nil when running on
// memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// CreateProfileStore creates the read side for participant profiles
func (f *RepositoryFactory) CreateProfileStore() ports.ProfileStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisRoster(f.redisClient)
	}
	return f.memoryRoster
}

// CreateEventRoster creates the read side for event attendance
func (f *RepositoryFactory) CreateEventRoster() ports.EventRoster {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisRoster(f.redisClient)
	}
	return f.memoryRoster
}

// MemoryRoster exposes the seedable roster when Redis is disabled, nil
// otherwise. The dev admin endpoints use it.
func (f *RepositoryFactory) MemoryRoster() *memory.MemoryRoster {
	return f.memoryRoster
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
