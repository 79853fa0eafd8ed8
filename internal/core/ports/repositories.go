package ports

import (
	"context"

	"pairnet/internal/core/domain"
)

// ProfileStore reads profiles from the surrounding application. Consumed at
// room entry only.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error)
}

// EventRoster lists who RSVP'd and is currently marked active for an event.
// The room service re-polls it to detect joins and leaves mid-occurrence.
type EventRoster interface {
	ListActiveParticipants(ctx context.Context, eventID domain.EventID) ([]domain.UserID, error)
}

// MatchRecordRepository is the persistence sink for match records. Upsert is
// idempotent by record key: writing the same key twice must not create a
// duplicate.
type MatchRecordRepository interface {
	Upsert(ctx context.Context, record *domain.MatchRecord) error
	GetByKey(ctx context.Context, key string) (*domain.MatchRecord, error)
	SetOutcome(ctx context.Context, matchID string, outcome domain.MatchOutcome) error
	ListByEvent(ctx context.Context, eventID domain.EventID) ([]*domain.MatchRecord, error)
}

// ConnectionRecordRepository stores opt-in connections derived from matches.
type ConnectionRecordRepository interface {
	Create(ctx context.Context, record *domain.ConnectionRecord) error
	ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.ConnectionRecord, error)
}
