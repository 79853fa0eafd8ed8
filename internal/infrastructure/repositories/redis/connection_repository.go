package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

type RedisConnectionRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisConnectionRepository(client *redis.Client) ports.ConnectionRecordRepository {
	return &RedisConnectionRepository{
		client: client,
		prefix: "pairnet:connection:",
	}
}

func (r *RedisConnectionRepository) connectionKey(id string) string {
	return r.prefix + id
}

func (r *RedisConnectionRepository) matchIndexKey(matchID string) string {
	return r.prefix + "match:" + matchID
}

func (r *RedisConnectionRepository) userKey(userID domain.UserID) string {
	return fmt.Sprintf("pairnet:user:%s:connections", userID)
}

// Create stores one connection per match; a duplicate create for the same
// match is a no-op.
func (r *RedisConnectionRepository) Create(ctx context.Context, record *domain.ConnectionRecord) error {
	claimed, err := r.client.SetNX(ctx, r.matchIndexKey(record.MatchID), record.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim connection for match: %w", err)
	}
	if !claimed {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal connection record: %w", err)
	}
	if err := r.client.Set(ctx, r.connectionKey(record.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set connection record in Redis: %w", err)
	}

	for _, userID := range []domain.UserID{record.UserA, record.UserB} {
		if err := r.client.SAdd(ctx, r.userKey(userID), record.ID).Err(); err != nil {
			return fmt.Errorf("failed to index connection by user: %w", err)
		}
	}
	return nil
}

func (r *RedisConnectionRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.ConnectionRecord, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user connections: %w", err)
	}

	records := make([]*domain.ConnectionRecord, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.connectionKey(id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get connection record from Redis: %w", err)
		}

		var record domain.ConnectionRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connection record: %w", err)
		}
		records = append(records, &record)
	}
	return records, nil
}
