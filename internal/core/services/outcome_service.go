package services

import (
	"context"
	"time"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/pkg/retry"
	"pairnet/pkg/utils"

	"go.uber.org/zap"
)

// outcomeService persists match and connection records. One retry per write;
// a persistent failure is logged and surfaced but the rotation continues.
type outcomeService struct {
	matches     ports.MatchRecordRepository
	connections ports.ConnectionRecordRepository
	retryCfg    retry.Config
	logger      *zap.SugaredLogger
}

// NewOutcomeRecorder builds the recorder over the given repositories.
func NewOutcomeRecorder(matches ports.MatchRecordRepository, connections ports.ConnectionRecordRepository, logger *zap.SugaredLogger) ports.OutcomeRecorder {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 1
	cfg.InitialDelay = 50 * time.Millisecond
	return &outcomeService{
		matches:     matches,
		connections: connections,
		retryCfg:    cfg,
		logger:      logger,
	}
}

func (o *outcomeService) RecordMatch(ctx context.Context, session *domain.Session, outcome domain.MatchOutcome) (*domain.MatchRecord, error) {
	record := &domain.MatchRecord{
		ID:           utils.GenerateMatchID(),
		EventID:      session.EventID,
		RoomID:       session.RoomID,
		ParticipantA: session.ParticipantA,
		ParticipantB: session.ParticipantB,
		Score:        session.Score,
		Outcome:      outcome,
		StartedAt:    session.StartedAt,
	}
	if session.Status == domain.SessionEnded {
		record.EndedAt = session.StartedAt.Add(session.Duration - session.Remaining)
	}

	stored, err := retry.RetryWithResult(ctx, o.retryCfg, func() (*domain.MatchRecord, error) {
		if err := o.matches.Upsert(ctx, record); err != nil {
			return nil, err
		}
		// Upsert may have kept an earlier record for the same key; return
		// whatever is actually stored so callers hold the canonical ID.
		return o.matches.GetByKey(ctx, record.Key())
	})
	if err != nil {
		o.logger.Warnw("match record write failed after retry",
			"key", record.Key(),
			"error", err,
		)
		return nil, err
	}
	return stored, nil
}

func (o *outcomeService) SetOutcome(ctx context.Context, matchID string, outcome domain.MatchOutcome) error {
	return retry.Retry(ctx, o.retryCfg, func() error {
		return o.matches.SetOutcome(ctx, matchID, outcome)
	})
}

func (o *outcomeService) RecordConnection(ctx context.Context, matchID string, userA, userB domain.UserID) error {
	record := &domain.ConnectionRecord{
		ID:        utils.GenerateConnectionID(),
		MatchID:   matchID,
		UserA:     userA,
		UserB:     userB,
		CreatedAt: time.Now(),
	}
	return retry.Retry(ctx, o.retryCfg, func() error {
		return o.connections.Create(ctx, record)
	})
}
