package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/internal/core/services"
	"pairnet/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// manualClock drives the countdown from the test. Tickers share one channel;
// After falls through to real time so search and requeue backoffs still fire.
type manualClock struct {
	ticks chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{ticks: make(chan time.Time, 64)}
}

func (c *manualClock) Now() time.Time { return time.Now() }

func (c *manualClock) NewTicker(time.Duration) ports.Ticker { return &manualTicker{c: c.ticks} }

func (c *manualClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (c *manualClock) tick(n int) {
	for i := 0; i < n; i++ {
		c.ticks <- time.Now()
	}
}

type manualTicker struct {
	c chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               {}

// signalRecorder captures every notification pushed to each participant.
type signalRecorder struct {
	mu       sync.Mutex
	messages map[domain.ParticipantID][]map[string]interface{}
}

func newSignalRecorder() *signalRecorder {
	return &signalRecorder{messages: make(map[domain.ParticipantID][]map[string]interface{})}
}

func (r *signalRecorder) SendToParticipant(id domain.ParticipantID, message interface{}) error {
	msg, ok := message.(map[string]interface{})
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[id] = append(r.messages[id], msg)
	return nil
}

func (r *signalRecorder) received(id domain.ParticipantID, msgType string) []map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]interface{}
	for _, msg := range r.messages[id] {
		if msg["type"] == msgType {
			out = append(out, msg)
		}
	}
	return out
}

func (r *signalRecorder) waitFor(t *testing.T, id domain.ParticipantID, msgType string) map[string]interface{} {
	t.Helper()
	var found map[string]interface{}
	require.Eventually(t, func() bool {
		msgs := r.received(id, msgType)
		if len(msgs) == 0 {
			return false
		}
		found = msgs[len(msgs)-1]
		return true
	}, 2*time.Second, 5*time.Millisecond, "no %q notification for %s", msgType, id)
	return found
}

type controllerFixture struct {
	controller ports.SessionController
	pool       ports.ParticipantPool
	clock      *manualClock
	signals    *signalRecorder
	matches    ports.MatchRecordRepository
	conns      ports.ConnectionRecordRepository
}

// fixtureOpts lets individual tests interpose on the pool or swap the
// extension policy while keeping the default wiring.
type fixtureOpts struct {
	wrapPool func(ports.ParticipantPool) ports.ParticipantPool
	policy   ports.ExtensionPolicy
}

func newControllerFixture(t *testing.T, cfg services.SessionConfig) *controllerFixture {
	return newCustomControllerFixture(t, cfg, fixtureOpts{})
}

func newCustomControllerFixture(t *testing.T, cfg services.SessionConfig, opts fixtureOpts) *controllerFixture {
	t.Helper()
	log := zap.NewNop().Sugar()

	pool := ports.ParticipantPool(services.NewParticipantPool())
	if opts.wrapPool != nil {
		pool = opts.wrapPool(pool)
	}
	policy := opts.policy
	if policy == nil {
		policy = services.NewSingleSidedExtensionPolicy()
	}
	selector := services.NewMatchSelector(pool, services.NewLocalScorer(), nil, log)
	matches := memory.NewMemoryMatchRepository()
	conns := memory.NewMemoryConnectionRepository()
	recorder := services.NewOutcomeRecorder(matches, conns, log)
	clock := newManualClock()
	signals := newSignalRecorder()

	controller := services.NewSessionController(
		"room-1",
		"event-1",
		pool,
		selector,
		recorder,
		policy,
		nil, // signaling-only; media is covered by the webrtc package
		signals,
		clock,
		services.NopObserver{},
		cfg,
		log,
	)
	t.Cleanup(func() { controller.Shutdown(context.Background()) })

	return &controllerFixture{
		controller: controller,
		pool:       pool,
		clock:      clock,
		signals:    signals,
		matches:    matches,
		conns:      conns,
	}
}

// testConfig keeps requeue far in the future so ended participants do not
// instantly re-pair underneath the assertions.
func testConfig() services.SessionConfig {
	return services.SessionConfig{
		Duration:       3 * time.Second,
		ExtendBy:       2 * time.Second,
		Tick:           time.Second,
		RequeueDelay:   time.Hour,
		SearchInterval: 5 * time.Millisecond,
	}
}

func enter(t *testing.T, f *controllerFixture, id string) {
	t.Helper()
	require.NoError(t, f.controller.Enter(context.Background(), newParticipant(id, time.Now())))
}

func TestControllerPairsTwoParticipants(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")

	msgA := f.signals.waitFor(t, "alice", "match_found")
	msgB := f.signals.waitFor(t, "bob", "match_found")

	assert.Equal(t, domain.ParticipantID("bob"), msgA["partner_id"])
	assert.Equal(t, domain.ParticipantID("alice"), msgB["partner_id"])
	assert.Equal(t, 3, msgA["duration_seconds"])

	// alice < bob, so alice drives the media offer.
	assert.Equal(t, true, msgA["initiator"])
	assert.Equal(t, false, msgB["initiator"])

	session, err := f.controller.ActiveSession(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, session.Status)
	assert.True(t, session.Involves("bob"))
}

func TestControllerCountdownEndsSession(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	f.clock.tick(3)

	ended := f.signals.waitFor(t, "alice", "session_ended")
	assert.Equal(t, "timeout", ended["reason"])
	f.signals.waitFor(t, "bob", "session_ended")

	_, err := f.controller.ActiveSession(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// One record for the pairing, completed on timeout.
	require.Eventually(t, func() bool {
		records, err := f.matches.ListByEvent(context.Background(), "event-1")
		return err == nil && len(records) == 1 && records[0].Outcome == domain.OutcomeCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestControllerTimerNotifications(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	f.clock.tick(1)

	timer := f.signals.waitFor(t, "alice", "timer")
	assert.Equal(t, 2, timer["remaining_seconds"])
}

func TestControllerSkipRequeuesBothSides(t *testing.T) {
	cfg := testConfig()
	cfg.RequeueDelay = 5 * time.Millisecond
	f := newControllerFixture(t, cfg)

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	require.NoError(t, f.controller.Skip(context.Background(), "alice"))

	ended := f.signals.waitFor(t, "bob", "session_ended")
	assert.Equal(t, "skip", ended["reason"])

	// Both return to searching and, with only each other available, re-pair
	// as a repeat.
	require.Eventually(t, func() bool {
		msgs := f.signals.received("alice", "match_found")
		return len(msgs) >= 2 && msgs[len(msgs)-1]["repeat"] == true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestControllerSkipWithoutSession(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	err := f.controller.Skip(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestControllerExtendOnce(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	session, err := f.controller.Extend(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, session.Extended)
	assert.Equal(t, 5*time.Second, session.Remaining)

	extended := f.signals.waitFor(t, "bob", "session_extended")
	assert.Equal(t, 2, extended["added_seconds"])

	// The extension applies once per session, no matter who asks.
	_, err = f.controller.Extend(context.Background(), "bob")
	assert.ErrorIs(t, err, domain.ErrAlreadyExtended)
}

func TestControllerExtendWithoutSession(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	_, err := f.controller.Extend(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestControllerLeaveEndsSessionAndRemovesParticipant(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	require.NoError(t, f.controller.Leave(context.Background(), "alice"))

	ended := f.signals.waitFor(t, "bob", "session_ended")
	assert.Equal(t, "leave", ended["reason"])

	// The leaver is gone from the pool and gets no end notification.
	_, err := f.pool.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	assert.Empty(t, f.signals.received("alice", "session_ended"))

	require.Eventually(t, func() bool {
		records, err := f.matches.ListByEvent(context.Background(), "event-1")
		return err == nil && len(records) == 1 && records[0].Outcome == domain.OutcomeAbandoned
	}, 2*time.Second, 5*time.Millisecond)
}

func TestControllerLeaveIsIdempotentAgainstTimeout(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	// Leave and a concurrent final tick race; the session must end exactly
	// once and the leave must win the recorded reason.
	require.NoError(t, f.controller.Leave(context.Background(), "alice"))
	require.NoError(t, f.controller.Leave(context.Background(), "alice"))

	assert.Len(t, f.signals.received("bob", "session_ended"), 1)
}

func TestControllerConnectionRequiresBothSides(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	require.NoError(t, f.controller.RequestConnection(context.Background(), "alice"))

	records, err := f.matches.ListByEvent(context.Background(), "event-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeConnectionRequested, records[0].Outcome)

	conns, err := f.conns.ListByUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, conns)

	require.NoError(t, f.controller.RequestConnection(context.Background(), "bob"))

	f.signals.waitFor(t, "alice", "connection_made")
	f.signals.waitFor(t, "bob", "connection_made")

	records, err = f.matches.ListByEvent(context.Background(), "event-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeConnectionApproved, records[0].Outcome)

	conns, err = f.conns.ListByUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, records[0].ID, conns[0].MatchID)
}

func TestControllerHandleMediaSignalWithoutSession(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	err := f.controller.HandleMediaSignal(context.Background(), "alice", []byte(`{"type":"offer"}`))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestControllerHandleMediaSignalWithoutMedia(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	err := f.controller.HandleMediaSignal(context.Background(), "alice", []byte(`{"type":"offer"}`))
	assert.ErrorIs(t, err, domain.ErrMediaUnavailable)
}

func TestControllerThreeWayRotation(t *testing.T) {
	cfg := testConfig()
	cfg.RequeueDelay = 5 * time.Millisecond
	f := newControllerFixture(t, cfg)

	enter(t, f, "alice")
	enter(t, f, "bob")
	enter(t, f, "carol")

	// First pairing forms between two of the three; the third keeps
	// searching until a skip frees a partner.
	f.signals.waitFor(t, "alice", "match_found")

	require.NoError(t, f.controller.Skip(context.Background(), "alice"))

	// After the skip everyone has a fresh candidate available, so the
	// previously unpaired participant gets a session.
	require.Eventually(t, func() bool {
		for _, id := range []domain.ParticipantID{"alice", "bob", "carol"} {
			if len(f.signals.received(id, "match_found")) == 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestControllerSessionEndKeepsConnectionOutcome(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	require.NoError(t, f.controller.RequestConnection(context.Background(), "alice"))
	require.NoError(t, f.controller.RequestConnection(context.Background(), "bob"))
	f.signals.waitFor(t, "alice", "connection_made")

	f.clock.tick(3)
	f.signals.waitFor(t, "alice", "session_ended")

	// The terminal write must not fold the mutual opt-in back to a plain
	// timeout outcome.
	require.Eventually(t, func() bool {
		records, err := f.matches.ListByEvent(context.Background(), "event-1")
		if err != nil || len(records) != 1 {
			return false
		}
		return records[0].Outcome == domain.OutcomeConnectionApproved && !records[0].EndedAt.IsZero()
	}, 2*time.Second, 5*time.Millisecond)
}

// vanishingClaimPool removes the partner right after the first successful
// claim, landing a leave in the window before the pairing is confirmed.
type vanishingClaimPool struct {
	ports.ParticipantPool
	mu   sync.Mutex
	gone domain.ParticipantID
}

func (p *vanishingClaimPool) Claim(ctx context.Context, requester, partner domain.ParticipantID) error {
	if err := p.ParticipantPool.Claim(ctx, requester, partner); err != nil {
		return err
	}
	p.mu.Lock()
	fire := p.gone == ""
	if fire {
		p.gone = partner
	}
	p.mu.Unlock()
	if fire {
		p.ParticipantPool.Leave(ctx, partner)
	}
	return nil
}

func (p *vanishingClaimPool) vanished() domain.ParticipantID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gone
}

func TestControllerRollsBackPairingWhenPartnerLeavesAfterClaim(t *testing.T) {
	var vp *vanishingClaimPool
	f := newCustomControllerFixture(t, testConfig(), fixtureOpts{
		wrapPool: func(inner ports.ParticipantPool) ports.ParticipantPool {
			vp = &vanishingClaimPool{ParticipantPool: inner}
			return vp
		},
	})

	enter(t, f, "alice")
	enter(t, f, "bob")

	require.Eventually(t, func() bool { return vp.vanished() != "" }, 2*time.Second, 5*time.Millisecond)

	// The claim rolls back: no session forms around the departed side.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.signals.received("alice", "match_found"))
	assert.Empty(t, f.signals.received("bob", "match_found"))
	_, err := f.controller.ActiveSession(context.Background(), vp.vanished())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// The remaining side is released back to searching and pairs with a
	// newcomer instead.
	enter(t, f, "carol")
	msg := f.signals.waitFor(t, "carol", "match_found")
	survivor := domain.ParticipantID("alice")
	if vp.vanished() == "alice" {
		survivor = "bob"
	}
	assert.Equal(t, survivor, msg["partner_id"])
}

// gatedPolicy blocks inside Approve until the test releases it.
type gatedPolicy struct {
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPolicy) Approve(ctx context.Context, session *domain.Session, requester domain.ParticipantID) (bool, error) {
	p.entered <- struct{}{}
	<-p.release
	return true, nil
}

func TestControllerExtendLosesRaceWithSessionEnd(t *testing.T) {
	policy := &gatedPolicy{entered: make(chan struct{}), release: make(chan struct{})}
	f := newCustomControllerFixture(t, testConfig(), fixtureOpts{policy: policy})

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	errs := make(chan error, 1)
	go func() {
		_, err := f.controller.Extend(context.Background(), "alice")
		errs <- err
	}()

	// End the session while the extension decision is still pending.
	<-policy.entered
	require.NoError(t, f.controller.Skip(context.Background(), "bob"))
	f.signals.waitFor(t, "alice", "session_ended")
	close(policy.release)

	assert.ErrorIs(t, <-errs, domain.ErrSessionEnded)
	assert.Empty(t, f.signals.received("alice", "session_extended"))
	assert.Empty(t, f.signals.received("bob", "session_extended"))
}

func TestControllerShutdownEndsActiveSessions(t *testing.T) {
	f := newControllerFixture(t, testConfig())

	enter(t, f, "alice")
	enter(t, f, "bob")
	f.signals.waitFor(t, "alice", "match_found")

	require.NoError(t, f.controller.Shutdown(context.Background()))

	assert.NotEmpty(t, f.signals.received("alice", "session_ended"))
	_, err := f.controller.ActiveSession(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
