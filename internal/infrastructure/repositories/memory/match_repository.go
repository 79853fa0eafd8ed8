package memory

import (
	"context"
	"sync"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

type MemoryMatchRepository struct {
	records map[string]*domain.MatchRecord // by ID
	byKey   map[string]string              // idempotency key -> ID
	byEvent map[domain.EventID][]string
	mu      sync.RWMutex
}

func NewMemoryMatchRepository() ports.MatchRecordRepository {
	return &MemoryMatchRepository{
		records: make(map[string]*domain.MatchRecord),
		byKey:   make(map[string]string),
		byEvent: make(map[domain.EventID][]string),
	}
}

// Upsert stores a record keyed by its idempotency key. A second write for
// the same key updates the stored record in place and keeps the first ID.
func (r *MemoryMatchRepository) Upsert(ctx context.Context, record *domain.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := record.Key()
	if existingID, exists := r.byKey[key]; exists {
		existing := r.records[existingID]
		if record.Outcome.Supersedes(existing.Outcome) {
			existing.Outcome = record.Outcome
		}
		if !record.EndedAt.IsZero() {
			existing.EndedAt = record.EndedAt
		}
		existing.Score = record.Score
		return nil
	}

	stored := *record
	r.records[stored.ID] = &stored
	r.byKey[key] = stored.ID
	r.byEvent[stored.EventID] = append(r.byEvent[stored.EventID], stored.ID)
	return nil
}

func (r *MemoryMatchRepository) GetByKey(ctx context.Context, key string) (*domain.MatchRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byKey[key]
	if !exists {
		return nil, domain.ErrMatchRecordNotFound
	}
	record := *r.records[id]
	return &record, nil
}

func (r *MemoryMatchRepository) SetOutcome(ctx context.Context, matchID string, outcome domain.MatchOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[matchID]
	if !exists {
		return domain.ErrMatchRecordNotFound
	}
	if outcome.Supersedes(record.Outcome) {
		record.Outcome = outcome
	}
	return nil
}

func (r *MemoryMatchRepository) ListByEvent(ctx context.Context, eventID domain.EventID) ([]*domain.MatchRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byEvent[eventID]
	records := make([]*domain.MatchRecord, 0, len(ids))
	for _, id := range ids {
		record := *r.records[id]
		records = append(records, &record)
	}
	return records, nil
}
