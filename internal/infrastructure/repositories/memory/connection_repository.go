package memory

import (
	"context"
	"sync"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

type MemoryConnectionRepository struct {
	connections []*domain.ConnectionRecord
	mu          sync.RWMutex
}

func NewMemoryConnectionRepository() ports.ConnectionRecordRepository {
	return &MemoryConnectionRepository{}
}

func (r *MemoryConnectionRepository) Create(ctx context.Context, record *domain.ConnectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// One connection per match.
	for _, existing := range r.connections {
		if existing.MatchID == record.MatchID {
			return nil
		}
	}

	stored := *record
	r.connections = append(r.connections, &stored)
	return nil
}

func (r *MemoryConnectionRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*domain.ConnectionRecord
	for _, c := range r.connections {
		if c.UserA == userID || c.UserB == userID {
			record := *c
			records = append(records, &record)
		}
	}
	return records, nil
}
