package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

type RedisMatchRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisMatchRepository(client *redis.Client) ports.MatchRecordRepository {
	return &RedisMatchRepository{
		client: client,
		prefix: "pairnet:match:",
	}
}

func (r *RedisMatchRepository) recordKey(id string) string {
	return r.prefix + id
}

func (r *RedisMatchRepository) indexKey(key string) string {
	return r.prefix + "key:" + key
}

func (r *RedisMatchRepository) eventKey(eventID domain.EventID) string {
	return fmt.Sprintf("pairnet:event:%s:matches", eventID)
}

// Upsert writes a record idempotently: SETNX on the idempotency-key index
// decides which write claims the record ID, every later write for the same
// key updates the claimed record.
func (r *RedisMatchRepository) Upsert(ctx context.Context, record *domain.MatchRecord) error {
	claimed, err := r.client.SetNX(ctx, r.indexKey(record.Key()), record.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim match key: %w", err)
	}

	id := record.ID
	if !claimed {
		id, err = r.client.Get(ctx, r.indexKey(record.Key())).Result()
		if err != nil {
			return fmt.Errorf("failed to resolve match key: %w", err)
		}
	}

	stored := *record
	stored.ID = id
	if !claimed {
		// A later write for the same key merges with the claimed record so
		// a connection outcome set mid-session survives the terminal write.
		if existing, err := r.getByID(ctx, id); err == nil {
			if !stored.Outcome.Supersedes(existing.Outcome) {
				stored.Outcome = existing.Outcome
			}
			if stored.EndedAt.IsZero() {
				stored.EndedAt = existing.EndedAt
			}
		}
	}
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal match record: %w", err)
	}

	if err := r.client.Set(ctx, r.recordKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set match record in Redis: %w", err)
	}
	if err := r.client.SAdd(ctx, r.eventKey(record.EventID), id).Err(); err != nil {
		return fmt.Errorf("failed to index match record by event: %w", err)
	}
	return nil
}

func (r *RedisMatchRepository) GetByKey(ctx context.Context, key string) (*domain.MatchRecord, error) {
	id, err := r.client.Get(ctx, r.indexKey(key)).Result()
	if err == redis.Nil {
		return nil, domain.ErrMatchRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve match key: %w", err)
	}
	return r.getByID(ctx, id)
}

func (r *RedisMatchRepository) getByID(ctx context.Context, id string) (*domain.MatchRecord, error) {
	data, err := r.client.Get(ctx, r.recordKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrMatchRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match record from Redis: %w", err)
	}

	var record domain.MatchRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match record: %w", err)
	}
	return &record, nil
}

func (r *RedisMatchRepository) SetOutcome(ctx context.Context, matchID string, outcome domain.MatchOutcome) error {
	record, err := r.getByID(ctx, matchID)
	if err != nil {
		return err
	}

	if !outcome.Supersedes(record.Outcome) {
		return nil
	}
	record.Outcome = outcome
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal match record: %w", err)
	}
	return r.client.Set(ctx, r.recordKey(matchID), data, 0).Err()
}

func (r *RedisMatchRepository) ListByEvent(ctx context.Context, eventID domain.EventID) ([]*domain.MatchRecord, error) {
	ids, err := r.client.SMembers(ctx, r.eventKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list event matches: %w", err)
	}

	records := make([]*domain.MatchRecord, 0, len(ids))
	for _, id := range ids {
		record, err := r.getByID(ctx, id)
		if err == domain.ErrMatchRecordNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
