package services

import (
	"context"
	"fmt"
	"strings"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"

	"go.uber.org/zap"
)

const (
	goalSkillBonus   = 20
	industryBonus    = 15
	partnershipBonus = 25
)

// localScorer is the deterministic fallback. It is symmetric: the goal/skill
// pass runs in both directions and the industry/partnership bonuses depend
// only on the unordered pair.
type localScorer struct{}

// NewLocalScorer returns the deterministic compatibility scorer.
func NewLocalScorer() ports.CompatibilityScorer {
	return &localScorer{}
}

func (s *localScorer) Score(ctx context.Context, a, b domain.Profile) (*domain.Compatibility, error) {
	score := 0
	var strengths []string
	var starters []string

	pairs := goalSkillPairs(a, b)
	pairs = append(pairs, goalSkillPairs(b, a)...)
	for _, p := range pairs {
		score += goalSkillBonus
		strengths = append(strengths, fmt.Sprintf("goal %q lines up with skill %q", p.goal, p.skill))
		starters = append(starters, fmt.Sprintf("Ask about their experience with %s.", p.skill))
	}

	if a.Industry != "" && strings.EqualFold(a.Industry, b.Industry) {
		score += industryBonus
		strengths = append(strengths, fmt.Sprintf("both work in %s", a.Industry))
	}

	if hasPartnershipGoal(a) && hasPartnershipGoal(b) {
		score += partnershipBonus
		strengths = append(strengths, "both are looking for partnerships")
		starters = append(starters, "Ask what kind of partnership they are after.")
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	var opportunities []string
	if len(pairs) == 0 {
		opportunities = append(opportunities, "no direct goal/skill overlap; compare what each is building")
	}
	if len(starters) == 0 {
		starters = append(starters, "Ask what brought them to this event.")
	}

	return &domain.Compatibility{
		Score:                score,
		Rationale:            rationaleFor(score, len(pairs)),
		Strengths:            strengths,
		Opportunities:        opportunities,
		ConversationStarters: starters,
	}, nil
}

type goalSkillPair struct {
	goal  string
	skill string
}

// goalSkillPairs matches a's goals against b's skills. A pair counts when one
// string is a case-insensitive substring of the other.
func goalSkillPairs(a, b domain.Profile) []goalSkillPair {
	var pairs []goalSkillPair
	for _, goal := range a.Goals {
		g := strings.ToLower(strings.TrimSpace(goal))
		if g == "" {
			continue
		}
		for _, skill := range b.Skills {
			sk := strings.ToLower(strings.TrimSpace(skill))
			if sk == "" {
				continue
			}
			if strings.Contains(g, sk) || strings.Contains(sk, g) {
				pairs = append(pairs, goalSkillPair{goal: goal, skill: skill})
			}
		}
	}
	return pairs
}

func hasPartnershipGoal(p domain.Profile) bool {
	for _, goal := range p.Goals {
		if strings.Contains(strings.ToLower(goal), "partnership") {
			return true
		}
	}
	return false
}

func rationaleFor(score, overlaps int) string {
	switch {
	case score >= 70:
		return fmt.Sprintf("strong fit: %d goal/skill overlaps", overlaps)
	case score >= 35:
		return fmt.Sprintf("moderate fit: %d goal/skill overlaps", overlaps)
	default:
		return "limited profile overlap"
	}
}

// fallbackScorer tries the remote reasoning path first and degrades to the
// local formula on any failure. Scoring must never block matching, so the
// error is logged and swallowed.
type fallbackScorer struct {
	primary    ports.ReasoningService
	fallback   ports.CompatibilityScorer
	onFallback func()
	logger     *zap.SugaredLogger
}

// NewFallbackScorer composes the remote reasoning path with the local
// deterministic scorer. onFallback may be nil; when set it is invoked every
// time the remote path fails (metrics hook).
func NewFallbackScorer(primary ports.ReasoningService, fallback ports.CompatibilityScorer, onFallback func(), logger *zap.SugaredLogger) ports.CompatibilityScorer {
	return &fallbackScorer{
		primary:    primary,
		fallback:   fallback,
		onFallback: onFallback,
		logger:     logger,
	}
}

func (s *fallbackScorer) Score(ctx context.Context, a, b domain.Profile) (*domain.Compatibility, error) {
	if s.primary != nil {
		result, err := s.primary.Evaluate(ctx, a, b)
		if err == nil && result != nil && result.Score >= 0 && result.Score <= 100 {
			return result, nil
		}
		if s.logger != nil {
			s.logger.Warnw("remote scoring failed, using local scorer",
				"user_a", a.UserID,
				"user_b", b.UserID,
				"error", err,
			)
		}
		if s.onFallback != nil {
			s.onFallback()
		}
	}
	return s.fallback.Score(ctx, a, b)
}
