package services

import (
	"context"
	"sync"
	"time"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/pkg/utils"

	"go.uber.org/zap"
)

// SessionConfig holds the countdown parameters for one room.
type SessionConfig struct {
	Duration       time.Duration // default 300s
	ExtendBy       time.Duration // single extension increment
	Tick           time.Duration // countdown granularity
	RequeueDelay   time.Duration // pause before re-entering the pool
	SearchInterval time.Duration // re-poll backoff while searching
}

// DefaultSessionConfig returns the standard five-minute rotation.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Duration:       300 * time.Second,
		ExtendBy:       180 * time.Second,
		Tick:           time.Second,
		RequeueDelay:   time.Second,
		SearchInterval: time.Second,
	}
}

// RoomObserver receives room lifecycle events for metrics.
type RoomObserver interface {
	ParticipantJoined(roomID domain.RoomID)
	ParticipantLeft(roomID domain.RoomID)
	MatchMade(roomID domain.RoomID, score int, repeat bool)
	SessionEnded(roomID domain.RoomID, duration time.Duration, reason domain.EndReason)
	ClaimConflict(roomID domain.RoomID)
	ScorerFallback()
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) ParticipantJoined(domain.RoomID)                             {}
func (NopObserver) ParticipantLeft(domain.RoomID)                               {}
func (NopObserver) MatchMade(domain.RoomID, int, bool)                          {}
func (NopObserver) SessionEnded(domain.RoomID, time.Duration, domain.EndReason) {}
func (NopObserver) ClaimConflict(domain.RoomID)                                 {}
func (NopObserver) ScorerFallback()                                             {}

// activeSession is the controller's book-keeping for one live pairing.
type activeSession struct {
	session    *domain.Session
	media      map[domain.ParticipantID]ports.MediaSession
	requested  map[domain.ParticipantID]bool
	record     *domain.MatchRecord
	stopTicker chan struct{}
}

type sessionService struct {
	pool     ports.ParticipantPool
	selector ports.MatchSelector
	recorder ports.OutcomeRecorder
	policy   ports.ExtensionPolicy
	media    ports.MediaSessionFactory // nil = signaling-only room
	signals  ports.SignalSender
	clock    ports.Clock
	observer RoomObserver
	cfg      SessionConfig
	logger   *zap.SugaredLogger

	roomID  domain.RoomID
	eventID domain.EventID

	mu            sync.Mutex
	sessions      map[domain.SessionID]*activeSession
	byParticipant map[domain.ParticipantID]*activeSession
	searchers     map[domain.ParticipantID]context.CancelFunc

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSessionController wires the rotation engine for one room occurrence.
func NewSessionController(
	roomID domain.RoomID,
	eventID domain.EventID,
	pool ports.ParticipantPool,
	selector ports.MatchSelector,
	recorder ports.OutcomeRecorder,
	policy ports.ExtensionPolicy,
	media ports.MediaSessionFactory,
	signals ports.SignalSender,
	clock ports.Clock,
	observer RoomObserver,
	cfg SessionConfig,
	logger *zap.SugaredLogger,
) ports.SessionController {
	if observer == nil {
		observer = NopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &sessionService{
		roomID:        roomID,
		eventID:       eventID,
		pool:          pool,
		selector:      selector,
		recorder:      recorder,
		policy:        policy,
		media:         media,
		signals:       signals,
		clock:         clock,
		observer:      observer,
		cfg:           cfg,
		logger:        logger,
		sessions:      make(map[domain.SessionID]*activeSession),
		byParticipant: make(map[domain.ParticipantID]*activeSession),
		searchers:     make(map[domain.ParticipantID]context.CancelFunc),
		rootCtx:       ctx,
		cancel:        cancel,
	}
}

func (s *sessionService) Enter(ctx context.Context, p *domain.Participant) error {
	if err := s.pool.Join(ctx, p); err != nil {
		return err
	}
	s.observer.ParticipantJoined(s.roomID)
	s.logger.Infow("participant entered room",
		"room_id", s.roomID,
		"participant_id", p.ID,
	)

	s.mu.Lock()
	s.startSearcherLocked(p.ID)
	s.mu.Unlock()
	return nil
}

// startSearcherLocked launches the searching loop for a participant. Caller
// holds s.mu.
func (s *sessionService) startSearcherLocked(id domain.ParticipantID) {
	if _, running := s.searchers[id]; running {
		return
	}
	ctx, cancel := context.WithCancel(s.rootCtx)
	s.searchers[id] = cancel

	s.wg.Add(1)
	go s.searchLoop(ctx, id)
}

func (s *sessionService) searchLoop(ctx context.Context, id domain.ParticipantID) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.searchers, id)
		s.mu.Unlock()
	}()

	if err := s.pool.SetState(ctx, id, domain.StateSearching); err != nil {
		return
	}
	s.notify(id, map[string]interface{}{"type": "searching"})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		candidate, err := s.selector.FindMatch(ctx, id)
		if err != nil {
			if err == domain.ErrParticipantNotFound {
				return
			}
			s.logger.Warnw("match selection failed", "participant_id", id, "error", err)
			candidate = nil
		}

		if candidate != nil {
			if s.confirmMatch(ctx, candidate) {
				return
			}
			// Confirmation lost a race (e.g. partner left between claim and
			// confirm); fall through to the backoff and search again.
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.SearchInterval):
		}
	}
}

// confirmMatch turns a claimed candidate into an active session for both
// sides. Returns false when the pairing could not be established and the
// claim was rolled back.
func (s *sessionService) confirmMatch(ctx context.Context, c *domain.MatchCandidate) bool {
	s.mu.Lock()

	if _, busy := s.byParticipant[c.Requester]; busy {
		s.mu.Unlock()
		s.pool.Release(ctx, c.Requester, c.Partner)
		return false
	}
	if _, busy := s.byParticipant[c.Partner]; busy {
		s.mu.Unlock()
		s.pool.Release(ctx, c.Requester, c.Partner)
		return false
	}

	// Either side may have left between the claim and this registration;
	// the pool is the source of truth for membership.
	if _, err := s.pool.Get(ctx, c.Requester); err != nil {
		s.mu.Unlock()
		s.pool.Release(ctx, c.Requester, c.Partner)
		return false
	}
	if _, err := s.pool.Get(ctx, c.Partner); err != nil {
		s.mu.Unlock()
		s.pool.Release(ctx, c.Requester, c.Partner)
		return false
	}

	session := &domain.Session{
		ID:           domain.SessionID(utils.GenerateSessionID()),
		RoomID:       s.roomID,
		EventID:      s.eventID,
		ParticipantA: c.Requester,
		ParticipantB: c.Partner,
		Initiator:    c.Initiator,
		Score:        c.Score,
		StartedAt:    s.clock.Now(),
		Duration:     s.cfg.Duration,
		Remaining:    s.cfg.Duration,
		Status:       domain.SessionActive,
	}

	as := &activeSession{
		session:    session,
		media:      make(map[domain.ParticipantID]ports.MediaSession),
		requested:  make(map[domain.ParticipantID]bool),
		stopTicker: make(chan struct{}),
	}
	s.sessions[session.ID] = as
	s.byParticipant[c.Requester] = as
	s.byParticipant[c.Partner] = as

	// The partner's own searcher is now redundant.
	if cancel, running := s.searchers[c.Partner]; running {
		cancel()
	}
	s.mu.Unlock()

	s.pool.SetState(ctx, c.Requester, domain.StateMatched)
	s.pool.SetState(ctx, c.Partner, domain.StateMatched)
	s.pool.RecordMeeting(ctx, c.Requester, c.Partner)

	if record, err := s.recorder.RecordMatch(ctx, session, domain.OutcomeCompleted); err != nil {
		s.logger.Warnw("match record write failed at session start", "session_id", session.ID, "error", err)
	} else {
		s.mu.Lock()
		as.record = record
		s.mu.Unlock()
	}

	s.observer.MatchMade(s.roomID, c.Score, c.Repeat)
	s.logger.Infow("session started",
		"session_id", session.ID,
		"participant_a", c.Requester,
		"participant_b", c.Partner,
		"score", c.Score,
		"repeat", c.Repeat,
	)

	for _, id := range []domain.ParticipantID{c.Requester, c.Partner} {
		s.notify(id, map[string]interface{}{
			"type":                  "match_found",
			"session_id":            session.ID,
			"partner_id":            session.Partner(id),
			"initiator":             session.Initiator == id,
			"score":                 c.Score,
			"rationale":             c.Rationale,
			"strengths":             c.Strengths,
			"opportunities":         c.Opportunities,
			"conversation_starters": c.ConversationStarters,
			"repeat":                c.Repeat,
			"duration_seconds":      int(session.Duration.Seconds()),
		})
	}

	s.setupMedia(ctx, as)

	s.wg.Add(1)
	go s.runCountdown(as)
	return true
}

// setupMedia builds a media session per side. Failures are warnings: the
// countdown runs regardless of media state.
func (s *sessionService) setupMedia(ctx context.Context, as *activeSession) {
	if s.media == nil {
		return
	}
	session := as.session
	for _, id := range []domain.ParticipantID{session.ParticipantA, session.ParticipantB} {
		id := id
		remote := session.Partner(id)
		ms, err := s.media.NewSession(ctx, id, remote, session.Initiator == id)
		if err != nil {
			s.warnMedia(id, err)
			continue
		}
		ms.OnConnected(func() { s.MediaConnected(context.Background(), id) })
		ms.OnError(func(err error) { s.warnMedia(id, err) })

		s.mu.Lock()
		as.media[id] = ms
		s.mu.Unlock()

		if err := ms.Connect(ctx); err != nil {
			s.warnMedia(id, err)
		}
	}
}

func (s *sessionService) warnMedia(id domain.ParticipantID, err error) {
	s.logger.Warnw("media session degraded", "participant_id", id, "error", err)
	s.notify(id, map[string]interface{}{
		"type":    "media_warning",
		"message": "video connection degraded; the timer keeps running",
	})
}

func (s *sessionService) runCountdown(as *activeSession) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.rootCtx.Done():
			return
		case <-as.stopTicker:
			return
		case <-ticker.C():
			if s.tick(as) {
				return
			}
		}
	}
}

// tick advances the authoritative countdown by one step. Returns true when
// the session is over.
func (s *sessionService) tick(as *activeSession) bool {
	s.mu.Lock()
	session := as.session
	if session.Status == domain.SessionEnded || session.Status == domain.SessionEnding {
		s.mu.Unlock()
		return true
	}
	session.Remaining -= s.cfg.Tick
	if session.Remaining < 0 {
		session.Remaining = 0
	}
	remaining := session.Remaining
	s.mu.Unlock()

	for _, id := range []domain.ParticipantID{session.ParticipantA, session.ParticipantB} {
		s.notify(id, map[string]interface{}{
			"type":              "timer",
			"session_id":        session.ID,
			"remaining_seconds": int(remaining.Seconds()),
		})
	}

	if remaining == 0 {
		s.endSession(context.Background(), as, domain.EndReasonTimeout, nil)
		return true
	}
	return false
}

func (s *sessionService) Skip(ctx context.Context, id domain.ParticipantID) error {
	s.mu.Lock()
	as, active := s.byParticipant[id]
	s.mu.Unlock()
	if !active {
		return domain.ErrSessionNotFound
	}
	s.endSession(ctx, as, domain.EndReasonSkip, nil)
	return nil
}

func (s *sessionService) Leave(ctx context.Context, id domain.ParticipantID) error {
	s.mu.Lock()
	if cancel, running := s.searchers[id]; running {
		cancel()
	}
	as, active := s.byParticipant[id]
	s.mu.Unlock()

	if active {
		// Leave always wins over a concurrent tick or extension; the end
		// path is idempotent so a racing timeout is harmless.
		s.endSession(ctx, as, domain.EndReasonLeave, &id)
	}

	if _, err := s.pool.Leave(ctx, id); err != nil && err != domain.ErrParticipantNotFound {
		return err
	}

	// A pairing can be confirmed between the session check above and the
	// pool removal; re-check so the partner is never held with a departed
	// counterpart.
	s.mu.Lock()
	late, paired := s.byParticipant[id]
	s.mu.Unlock()
	if paired {
		s.endSession(ctx, late, domain.EndReasonLeave, &id)
	}

	s.observer.ParticipantLeft(s.roomID)
	s.logger.Infow("participant left room", "room_id", s.roomID, "participant_id", id)
	return nil
}

// endSession is the single convergent cleanup path for timeout, skip and
// leave. It is idempotent: only the first caller flips the status and writes
// the record.
func (s *sessionService) endSession(ctx context.Context, as *activeSession, reason domain.EndReason, leaver *domain.ParticipantID) {
	s.mu.Lock()
	session := as.session
	if session.Status == domain.SessionEnded {
		s.mu.Unlock()
		return
	}
	session.Status = domain.SessionEnded
	session.EndReason = reason
	close(as.stopTicker)

	delete(s.sessions, session.ID)
	delete(s.byParticipant, session.ParticipantA)
	delete(s.byParticipant, session.ParticipantB)
	media := as.media
	as.media = map[domain.ParticipantID]ports.MediaSession{}
	s.mu.Unlock()

	for _, ms := range media {
		if err := ms.Destroy(); err != nil {
			s.logger.Warnw("media teardown failed", "session_id", session.ID, "error", err)
		}
	}

	outcome := outcomeFor(reason)
	if _, err := s.recorder.RecordMatch(ctx, session, outcome); err != nil {
		// Analytics never blocks rotation.
		s.logger.Warnw("match record write failed", "session_id", session.ID, "error", err)
	}

	elapsed := session.Duration - session.Remaining
	s.observer.SessionEnded(s.roomID, elapsed, reason)
	s.logger.Infow("session ended",
		"session_id", session.ID,
		"reason", reason,
		"elapsed", elapsed,
	)

	for _, id := range []domain.ParticipantID{session.ParticipantA, session.ParticipantB} {
		if leaver != nil && id == *leaver {
			continue
		}
		s.notify(id, map[string]interface{}{
			"type":       "session_ended",
			"session_id": session.ID,
			"reason":     string(reason),
		})
		s.pool.SetState(ctx, id, domain.StateEnding)
		s.requeueAfterDelay(id)
	}
}

// requeueAfterDelay re-enters a former partner into the pool after the
// configured pause, which prevents instant re-pairing loops.
func (s *sessionService) requeueAfterDelay(id domain.ParticipantID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.rootCtx.Done():
			return
		case <-s.clock.After(s.cfg.RequeueDelay):
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		// The participant may have left during the delay.
		if _, err := s.pool.Get(context.Background(), id); err != nil {
			return
		}
		s.startSearcherLocked(id)
	}()
}

func (s *sessionService) Extend(ctx context.Context, id domain.ParticipantID) (*domain.Session, error) {
	s.mu.Lock()
	as, active := s.byParticipant[id]
	if !active {
		s.mu.Unlock()
		return nil, domain.ErrSessionNotFound
	}
	session := as.session
	if session.Status == domain.SessionEnded {
		s.mu.Unlock()
		return nil, domain.ErrSessionEnded
	}
	if session.Extended {
		s.mu.Unlock()
		return nil, domain.ErrAlreadyExtended
	}
	session.Status = domain.SessionExtending
	s.mu.Unlock()

	approved, err := s.policy.Approve(ctx, session, id)

	s.mu.Lock()
	if session.Status == domain.SessionEnded {
		// The countdown or a leave finished the session while the policy
		// was deciding; extending a dead session would push notifications
		// after session_ended.
		s.mu.Unlock()
		return nil, domain.ErrSessionEnded
	}
	if session.Status == domain.SessionExtending {
		session.Status = domain.SessionActive
	}
	if err != nil || !approved {
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyExtended
	}
	if session.Extended {
		// A concurrent request won the race; the increment applies once.
		s.mu.Unlock()
		return nil, domain.ErrAlreadyExtended
	}
	session.Extended = true
	session.Remaining += s.cfg.ExtendBy
	session.Duration += s.cfg.ExtendBy
	s.mu.Unlock()

	for _, pid := range []domain.ParticipantID{session.ParticipantA, session.ParticipantB} {
		s.notify(pid, map[string]interface{}{
			"type":              "session_extended",
			"session_id":        session.ID,
			"added_seconds":     int(s.cfg.ExtendBy.Seconds()),
			"remaining_seconds": int(session.Remaining.Seconds()),
		})
	}
	s.logger.Infow("session extended", "session_id", session.ID, "by", id)
	return session, nil
}

func (s *sessionService) RequestConnection(ctx context.Context, id domain.ParticipantID) error {
	s.mu.Lock()
	as, active := s.byParticipant[id]
	if !active {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	session := as.session
	as.requested[id] = true
	both := as.requested[session.ParticipantA] && as.requested[session.ParticipantB]
	record := as.record
	s.mu.Unlock()

	if record == nil {
		return domain.ErrSessionNotFound
	}

	outcome := domain.OutcomeConnectionRequested
	if both {
		outcome = domain.OutcomeConnectionApproved
	}
	if err := s.recorder.SetOutcome(ctx, record.ID, outcome); err != nil {
		s.logger.Warnw("outcome update failed", "match_id", record.ID, "error", err)
	}

	if both {
		a, errA := s.pool.Get(ctx, session.ParticipantA)
		b, errB := s.pool.Get(ctx, session.ParticipantB)
		var userA, userB domain.UserID
		if errA == nil {
			userA = a.Profile.UserID
		}
		if errB == nil {
			userB = b.Profile.UserID
		}
		if err := s.recorder.RecordConnection(ctx, record.ID, userA, userB); err != nil {
			s.logger.Warnw("connection record write failed", "match_id", record.ID, "error", err)
		}
		for _, pid := range []domain.ParticipantID{session.ParticipantA, session.ParticipantB} {
			s.notify(pid, map[string]interface{}{
				"type":       "connection_made",
				"session_id": session.ID,
			})
		}
	}
	return nil
}

// HandleMediaSignal feeds a client's signaling payload into its media
// session. Payloads arriving outside an active pairing are rejected.
func (s *sessionService) HandleMediaSignal(ctx context.Context, from domain.ParticipantID, payload []byte) error {
	s.mu.Lock()
	as, active := s.byParticipant[from]
	var ms ports.MediaSession
	if active {
		ms = as.media[from]
	}
	s.mu.Unlock()

	if !active {
		return domain.ErrSessionNotFound
	}
	if ms == nil {
		return domain.ErrMediaUnavailable
	}
	return ms.HandleSignal(ctx, payload)
}

// MediaConnected is observational: it upgrades matched to in-call but never
// gates the countdown.
func (s *sessionService) MediaConnected(ctx context.Context, id domain.ParticipantID) {
	s.mu.Lock()
	as, active := s.byParticipant[id]
	s.mu.Unlock()
	if !active || as.session.Status == domain.SessionEnded {
		return
	}
	s.pool.SetState(ctx, id, domain.StateInCall)
	s.logger.Debugw("media connected", "participant_id", id)
}

func (s *sessionService) ActiveSession(ctx context.Context, id domain.ParticipantID) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as, active := s.byParticipant[id]
	if !active {
		return nil, domain.ErrSessionNotFound
	}
	return as.session, nil
}

func (s *sessionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	actives := make([]*activeSession, 0, len(s.sessions))
	for _, as := range s.sessions {
		actives = append(actives, as)
	}
	s.mu.Unlock()

	for _, as := range actives {
		s.endSession(ctx, as, domain.EndReasonLeave, nil)
	}
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *sessionService) notify(id domain.ParticipantID, message interface{}) {
	if s.signals == nil {
		return
	}
	if err := s.signals.SendToParticipant(id, message); err != nil {
		s.logger.Debugw("signal delivery failed", "participant_id", id, "error", err)
	}
}

func outcomeFor(reason domain.EndReason) domain.MatchOutcome {
	switch reason {
	case domain.EndReasonSkip:
		return domain.OutcomeSkipped
	case domain.EndReasonLeave:
		return domain.OutcomeAbandoned
	default:
		return domain.OutcomeCompleted
	}
}
