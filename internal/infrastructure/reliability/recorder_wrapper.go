package reliability

import (
	"context"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/pkg/circuitbreaker"
	"pairnet/pkg/retry"

	"go.uber.org/zap"
)

// RecorderWrapper wraps an OutcomeRecorder with retry logic and a
// circuit breaker. Record writes go to the persistence backend, which
// may be remote; a flaky backend must not take the rotation loop down
// with it.
type RecorderWrapper struct {
	recorder ports.OutcomeRecorder
	logger   *zap.SugaredLogger

	retryConfig retry.Config
	breaker     *circuitbreaker.CircuitBreaker
}

// NewRecorderWrapper creates a wrapper with retry and circuit breaker.
func NewRecorderWrapper(
	recorder ports.OutcomeRecorder,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *RecorderWrapper {
	return &RecorderWrapper{
		recorder:    recorder,
		logger:      logger,
		retryConfig: retryConfig,
		breaker:     circuitbreaker.New(cbConfig),
	}
}

// RecordMatch records a match with retry logic.
func (w *RecorderWrapper) RecordMatch(ctx context.Context, session *domain.Session, outcome domain.MatchOutcome) (*domain.MatchRecord, error) {
	if !w.retryConfig.Enabled {
		return w.recorder.RecordMatch(ctx, session, outcome)
	}

	return retry.RetryWithResult(ctx, w.retryConfig, func() (*domain.MatchRecord, error) {
		var record *domain.MatchRecord
		err := w.breaker.Execute(ctx, func() error {
			var innerErr error
			record, innerErr = w.recorder.RecordMatch(ctx, session, outcome)
			return innerErr
		})
		return record, err
	})
}

// SetOutcome updates a match outcome with retry logic.
func (w *RecorderWrapper) SetOutcome(ctx context.Context, matchID string, outcome domain.MatchOutcome) error {
	if !w.retryConfig.Enabled {
		return w.recorder.SetOutcome(ctx, matchID, outcome)
	}

	return retry.Retry(ctx, w.retryConfig, func() error {
		return w.breaker.Execute(ctx, func() error {
			return w.recorder.SetOutcome(ctx, matchID, outcome)
		})
	})
}

// RecordConnection records a mutual connection with retry logic.
func (w *RecorderWrapper) RecordConnection(ctx context.Context, matchID string, userA, userB domain.UserID) error {
	if !w.retryConfig.Enabled {
		return w.recorder.RecordConnection(ctx, matchID, userA, userB)
	}

	return retry.Retry(ctx, w.retryConfig, func() error {
		return w.breaker.Execute(ctx, func() error {
			return w.recorder.RecordConnection(ctx, matchID, userA, userB)
		})
	})
}

// BreakerState exposes the circuit breaker state for health reporting.
func (w *RecorderWrapper) BreakerState() circuitbreaker.State {
	return w.breaker.State()
}
