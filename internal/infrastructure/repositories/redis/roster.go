package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

// RedisRoster reads profiles and event attendance written by the
// surrounding application. The engine never writes these keys.
type RedisRoster struct {
	client *redis.Client
}

var (
	_ ports.ProfileStore = (*RedisRoster)(nil)
	_ ports.EventRoster  = (*RedisRoster)(nil)
)

func NewRedisRoster(client *redis.Client) *RedisRoster {
	return &RedisRoster{client: client}
}

func (r *RedisRoster) profileKey(userID domain.UserID) string {
	return fmt.Sprintf("pairnet:profile:%s", userID)
}

func (r *RedisRoster) activeKey(eventID domain.EventID) string {
	return fmt.Sprintf("pairnet:event:%s:active", eventID)
}

func (r *RedisRoster) GetProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	data, err := r.client.Get(ctx, r.profileKey(userID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile from Redis: %w", err)
	}

	var profile domain.Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

func (r *RedisRoster) ListActiveParticipants(ctx context.Context, eventID domain.EventID) ([]domain.UserID, error) {
	members, err := r.client.SMembers(ctx, r.activeKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active participants: %w", err)
	}

	users := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		users = append(users, domain.UserID(m))
	}
	return users, nil
}
