package services

import (
	"context"
	"sync"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"

	"go.uber.org/zap"
)

const claimRetries = 3

// matchService selects the best available partner for a requester. Scoring
// runs outside the pool lock; availability is re-validated by the claim step
// and the whole selection retries on conflict.
type matchService struct {
	pool   ports.ParticipantPool
	scorer ports.CompatibilityScorer
	logger *zap.SugaredLogger

	onConflict func()
}

// NewMatchSelector builds a selector over the given pool and scorer.
// onConflict may be nil; it fires on each claim conflict (metrics hook).
func NewMatchSelector(pool ports.ParticipantPool, scorer ports.CompatibilityScorer, onConflict func(), logger *zap.SugaredLogger) ports.MatchSelector {
	return &matchService{
		pool:       pool,
		scorer:     scorer,
		logger:     logger,
		onConflict: onConflict,
	}
}

func (m *matchService) FindMatch(ctx context.Context, requester domain.ParticipantID) (*domain.MatchCandidate, error) {
	for attempt := 0; attempt <= claimRetries; attempt++ {
		candidate, err := m.selectOnce(ctx, requester)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, nil
		}

		// Scoring may have taken a while; the claim re-validates that both
		// sides are still matchable.
		if err := m.pool.Claim(ctx, requester, candidate.Partner); err != nil {
			if err == domain.ErrAlreadyClaimed {
				if m.onConflict != nil {
					m.onConflict()
				}
				m.logger.Debugw("claim conflict, reselecting",
					"requester", requester,
					"partner", candidate.Partner,
					"attempt", attempt,
				)
				continue
			}
			return nil, err
		}
		return candidate, nil
	}

	// Retries exhausted: back to searching, the caller re-polls.
	m.logger.Warnw("claim retries exhausted", "requester", requester)
	return nil, nil
}

func (m *matchService) selectOnce(ctx context.Context, requester domain.ParticipantID) (*domain.MatchCandidate, error) {
	self, err := m.pool.Get(ctx, requester)
	if err != nil {
		return nil, err
	}

	candidates, repeats, err := m.pool.ListAvailable(ctx, requester)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Score every candidate concurrently; calls are independent and the
	// scorer is stateless.
	results := make([]*domain.Compatibility, len(candidates))
	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, other *domain.Participant) {
			defer wg.Done()
			compat, err := m.scorer.Score(ctx, self.Profile, other.Profile)
			if err != nil {
				// The fallback scorer cannot fail; treat a broken custom
				// scorer as a zero-score candidate rather than aborting.
				m.logger.Warnw("scoring failed", "requester", requester, "candidate", other.ID, "error", err)
				compat = &domain.Compatibility{}
			}
			results[i] = compat
		}(i, candidate)
	}
	wg.Wait()

	// Candidates arrive sorted by pool-join time, so taking strictly-greater
	// scores implements the earliest-join tie break deterministically.
	best := 0
	for i := 1; i < len(candidates); i++ {
		if results[i].Score > results[best].Score {
			best = i
		}
	}

	partner := candidates[best]
	compat := results[best]

	initiator := requester
	if partner.ID < initiator {
		initiator = partner.ID
	}

	return &domain.MatchCandidate{
		Requester:            requester,
		Partner:              partner.ID,
		Initiator:            initiator,
		Score:                compat.Score,
		Rationale:            compat.Rationale,
		Strengths:            compat.Strengths,
		Opportunities:        compat.Opportunities,
		ConversationStarters: compat.ConversationStarters,
		Repeat:               repeats,
	}, nil
}
