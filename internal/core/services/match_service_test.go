package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/internal/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func searchingPool(t *testing.T, ids ...string) ports.ParticipantPool {
	t.Helper()
	pool := services.NewParticipantPool()
	ctx := context.Background()
	base := time.Now()
	for i, id := range ids {
		require.NoError(t, pool.Join(ctx, newParticipant(id, base.Add(time.Duration(i)*time.Second))))
		require.NoError(t, pool.SetState(ctx, domain.ParticipantID(id), domain.StateSearching))
	}
	return pool
}

func TestFindMatchPicksHighestScore(t *testing.T) {
	pool := services.NewParticipantPool()
	ctx := context.Background()
	base := time.Now()

	alice := newParticipant("alice", base)
	alice.Profile.Goals = []string{"fundraising"}
	bob := newParticipant("bob", base.Add(time.Second))
	carol := newParticipant("carol", base.Add(2*time.Second))
	carol.Profile.Skills = []string{"fundraising"}

	for _, p := range []*domain.Participant{alice, bob, carol} {
		require.NoError(t, pool.Join(ctx, p))
		require.NoError(t, pool.SetState(ctx, p.ID, domain.StateSearching))
	}

	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), nil, zap.NewNop().Sugar())

	candidate, err := selector.FindMatch(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, candidate)

	assert.Equal(t, domain.ParticipantID("carol"), candidate.Partner)
	assert.Equal(t, 20, candidate.Score)
	assert.False(t, candidate.Repeat)
}

func TestFindMatchTieBreaksByEarliestJoin(t *testing.T) {
	pool := searchingPool(t, "alice", "bob", "carol")
	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), nil, zap.NewNop().Sugar())

	candidate, err := selector.FindMatch(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, candidate)

	// All scores are zero, so the earliest joiner wins.
	assert.Equal(t, domain.ParticipantID("bob"), candidate.Partner)
}

func TestFindMatchInitiatorIsSmallerID(t *testing.T) {
	pool := searchingPool(t, "zoe", "adam")
	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), nil, zap.NewNop().Sugar())

	candidate, err := selector.FindMatch(context.Background(), "zoe")
	require.NoError(t, err)
	require.NotNil(t, candidate)

	assert.Equal(t, domain.ParticipantID("adam"), candidate.Initiator)
}

func TestFindMatchClaimsBothSides(t *testing.T) {
	pool := searchingPool(t, "alice", "bob")
	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), nil, zap.NewNop().Sugar())

	candidate, err := selector.FindMatch(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, candidate)

	a, err := pool.Get(context.Background(), "alice")
	require.NoError(t, err)
	b, err := pool.Get(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, a.State)
	assert.Equal(t, domain.StatePending, b.State)
}

func TestFindMatchNoCandidates(t *testing.T) {
	pool := searchingPool(t, "alice")
	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), nil, zap.NewNop().Sugar())

	candidate, err := selector.FindMatch(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, candidate)
}

func TestFindMatchRotatesThroughPoolBeforeRepeating(t *testing.T) {
	pool := searchingPool(t, "alice", "bob", "carol")
	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), nil, zap.NewNop().Sugar())
	ctx := context.Background()

	seen := map[domain.ParticipantID]bool{}
	for i := 0; i < 2; i++ {
		candidate, err := selector.FindMatch(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, candidate)
		assert.False(t, candidate.Repeat)
		assert.False(t, seen[candidate.Partner], "partner %s repeated before rotation finished", candidate.Partner)
		seen[candidate.Partner] = true

		require.NoError(t, pool.RecordMeeting(ctx, "alice", candidate.Partner))
		require.NoError(t, pool.SetState(ctx, "alice", domain.StateSearching))
		require.NoError(t, pool.SetState(ctx, candidate.Partner, domain.StateSearching))
	}

	// Everyone has been met; the next selection is flagged as a repeat.
	candidate, err := selector.FindMatch(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.True(t, candidate.Repeat)
}

// contestedPool simulates another claimant winning a participant: claims
// against the contested partner fail, and on the first conflict the partner
// is flipped to pending as the winner would have done.
type contestedPool struct {
	ports.ParticipantPool
	contested domain.ParticipantID
	sticky    bool // keep the partner contestable on every attempt

	mu    sync.Mutex
	fired bool
}

func (p *contestedPool) Claim(ctx context.Context, requester, partner domain.ParticipantID) error {
	if partner != p.contested {
		return p.ParticipantPool.Claim(ctx, requester, partner)
	}
	p.mu.Lock()
	first := !p.fired
	p.fired = true
	p.mu.Unlock()
	if first && !p.sticky {
		p.ParticipantPool.SetState(ctx, p.contested, domain.StatePending)
	}
	return domain.ErrAlreadyClaimed
}

func TestFindMatchReselectsAfterClaimConflict(t *testing.T) {
	inner := services.NewParticipantPool()
	ctx := context.Background()
	base := time.Now()

	alice := newParticipant("alice", base)
	alice.Profile.Goals = []string{"fundraising"}
	bob := newParticipant("bob", base.Add(time.Second))
	bob.Profile.Skills = []string{"fundraising"}
	carol := newParticipant("carol", base.Add(2*time.Second))

	for _, p := range []*domain.Participant{alice, bob, carol} {
		require.NoError(t, inner.Join(ctx, p))
		require.NoError(t, inner.SetState(ctx, p.ID, domain.StateSearching))
	}

	pool := &contestedPool{ParticipantPool: inner, contested: "bob"}
	conflicts := 0
	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), func() { conflicts++ }, zap.NewNop().Sugar())

	// bob scores highest but is snatched away at claim time; the selection
	// retries and converges on carol.
	candidate, err := selector.FindMatch(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, candidate)

	assert.Equal(t, domain.ParticipantID("carol"), candidate.Partner)
	assert.Equal(t, 1, conflicts)
}

func TestFindMatchGivesUpAfterRepeatedClaimConflicts(t *testing.T) {
	inner := services.NewParticipantPool()
	ctx := context.Background()
	require.NoError(t, inner.Join(ctx, newParticipant("alice", time.Now())))
	require.NoError(t, inner.Join(ctx, newParticipant("bob", time.Now().Add(time.Second))))
	require.NoError(t, inner.SetState(ctx, "alice", domain.StateSearching))
	require.NoError(t, inner.SetState(ctx, "bob", domain.StateSearching))

	pool := &contestedPool{ParticipantPool: inner, contested: "bob", sticky: true}
	conflicts := 0
	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), func() { conflicts++ }, zap.NewNop().Sugar())

	candidate, err := selector.FindMatch(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, candidate)

	// One try plus three retries, every one of them contested.
	assert.Equal(t, 4, conflicts)
}

func TestFindMatchUnknownRequester(t *testing.T) {
	pool := searchingPool(t)
	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), nil, zap.NewNop().Sugar())

	_, err := selector.FindMatch(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}
