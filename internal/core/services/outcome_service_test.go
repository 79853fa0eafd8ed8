package services_test

import (
	"context"
	"testing"
	"time"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/services"
	"pairnet/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSession(started time.Time) *domain.Session {
	return &domain.Session{
		ID:           "session-1",
		RoomID:       "room-1",
		EventID:      "event-1",
		ParticipantA: "alice",
		ParticipantB: "bob",
		Score:        55,
		StartedAt:    started,
		Duration:     5 * time.Minute,
		Remaining:    5 * time.Minute,
		Status:       domain.SessionActive,
	}
}

func TestRecordMatchIsIdempotentPerPairing(t *testing.T) {
	matches := memory.NewMemoryMatchRepository()
	recorder := services.NewOutcomeRecorder(matches, memory.NewMemoryConnectionRepository(), zap.NewNop().Sugar())
	ctx := context.Background()

	session := testSession(time.Now())

	first, err := recorder.RecordMatch(ctx, session, domain.OutcomeCompleted)
	require.NoError(t, err)
	require.NotNil(t, first)

	// The end-of-session write reuses the same key and must converge on the
	// record created at session start.
	session.Status = domain.SessionEnded
	session.Remaining = 0
	second, err := recorder.RecordMatch(ctx, session, domain.OutcomeSkipped)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	records, err := matches.ListByEvent(ctx, "event-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeSkipped, records[0].Outcome)
	assert.False(t, records[0].EndedAt.IsZero())
}

func TestRecordMatchOrderIndependentKey(t *testing.T) {
	started := time.Now()
	a := &domain.MatchRecord{EventID: "event-1", ParticipantA: "alice", ParticipantB: "bob", StartedAt: started}
	b := &domain.MatchRecord{EventID: "event-1", ParticipantA: "bob", ParticipantB: "alice", StartedAt: started}
	assert.Equal(t, a.Key(), b.Key())
}

func TestRecordMatchDoesNotDowngradeConnectionOutcome(t *testing.T) {
	matches := memory.NewMemoryMatchRepository()
	recorder := services.NewOutcomeRecorder(matches, memory.NewMemoryConnectionRepository(), zap.NewNop().Sugar())
	ctx := context.Background()

	session := testSession(time.Now())
	record, err := recorder.RecordMatch(ctx, session, domain.OutcomeCompleted)
	require.NoError(t, err)

	require.NoError(t, recorder.SetOutcome(ctx, record.ID, domain.OutcomeConnectionRequested))
	require.NoError(t, recorder.SetOutcome(ctx, record.ID, domain.OutcomeConnectionApproved))

	// The terminal write at session end reuses the idempotency key; the
	// mutual opt-in must survive it.
	session.Status = domain.SessionEnded
	session.Remaining = 0
	_, err = recorder.RecordMatch(ctx, session, domain.OutcomeCompleted)
	require.NoError(t, err)

	records, err := matches.ListByEvent(ctx, "event-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeConnectionApproved, records[0].Outcome)
	assert.False(t, records[0].EndedAt.IsZero())

	// A late single-sided request cannot downgrade the approval either.
	require.NoError(t, recorder.SetOutcome(ctx, record.ID, domain.OutcomeConnectionRequested))
	got, err := matches.GetByKey(ctx, records[0].Key())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConnectionApproved, got.Outcome)
}

func TestSetOutcomeUnknownMatch(t *testing.T) {
	recorder := services.NewOutcomeRecorder(memory.NewMemoryMatchRepository(), memory.NewMemoryConnectionRepository(), zap.NewNop().Sugar())

	err := recorder.SetOutcome(context.Background(), "missing", domain.OutcomeSkipped)
	assert.ErrorIs(t, err, domain.ErrMatchRecordNotFound)
}

func TestRecordConnectionDeduplicatesPerMatch(t *testing.T) {
	conns := memory.NewMemoryConnectionRepository()
	recorder := services.NewOutcomeRecorder(memory.NewMemoryMatchRepository(), conns, zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, recorder.RecordConnection(ctx, "match-1", "alice", "bob"))
	require.NoError(t, recorder.RecordConnection(ctx, "match-1", "alice", "bob"))

	forAlice, err := conns.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, forAlice, 1)

	forBob, err := conns.ListByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, forBob, 1)
}
