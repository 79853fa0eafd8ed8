package services

import (
	"context"
	"time"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/pkg/cache"

	"go.uber.org/zap"
)

// RosterService keeps the room in sync with the event roster: newly active
// users are admitted with their profile, departed users are forced out. The
// roster is the surrounding application's source of truth; the room only
// re-polls it.
type RosterService struct {
	roomID     domain.RoomID
	eventID    domain.EventID
	roster     ports.EventRoster
	profiles   ports.ProfileStore
	controller ports.SessionController
	interval   time.Duration
	logger     *zap.SugaredLogger

	profileCache *cache.Cache[domain.Profile]
	known        map[domain.UserID]domain.ParticipantID

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRosterService builds the roster poller for one room occurrence.
func NewRosterService(
	roomID domain.RoomID,
	eventID domain.EventID,
	roster ports.EventRoster,
	profiles ports.ProfileStore,
	controller ports.SessionController,
	interval time.Duration,
	logger *zap.SugaredLogger,
) *RosterService {
	return &RosterService{
		roomID:       roomID,
		eventID:      eventID,
		roster:       roster,
		profiles:     profiles,
		controller:   controller,
		interval:     interval,
		logger:       logger,
		profileCache: cache.New[domain.Profile](5 * time.Minute),
		known:        make(map[domain.UserID]domain.ParticipantID),
		done:         make(chan struct{}),
	}
}

// Start launches the polling loop.
func (r *RosterService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.Sync(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sync(ctx)
			}
		}
	}()
}

// Stop halts polling; it does not evict anyone from the room.
func (r *RosterService) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// Sync performs one reconciliation pass against the roster.
func (r *RosterService) Sync(ctx context.Context) {
	active, err := r.roster.ListActiveParticipants(ctx, r.eventID)
	if err != nil {
		r.logger.Warnw("roster poll failed", "event_id", r.eventID, "error", err)
		return
	}

	activeSet := make(map[domain.UserID]bool, len(active))
	for _, userID := range active {
		activeSet[userID] = true
		if _, present := r.known[userID]; present {
			continue
		}
		r.admit(ctx, userID)
	}

	for userID, participantID := range r.known {
		if activeSet[userID] {
			continue
		}
		if err := r.controller.Leave(ctx, participantID); err != nil {
			r.logger.Warnw("forced leave failed", "participant_id", participantID, "error", err)
		}
		delete(r.known, userID)
	}
}

func (r *RosterService) admit(ctx context.Context, userID domain.UserID) {
	profile, ok := r.profileCache.Get(string(userID))
	if !ok {
		p, err := r.profiles.GetProfile(ctx, userID)
		if err != nil {
			r.logger.Warnw("profile lookup failed, skipping admission", "user_id", userID, "error", err)
			return
		}
		profile = *p
		r.profileCache.Set(string(userID), profile)
	}

	participant := &domain.Participant{
		ID:       domain.ParticipantID(userID),
		RoomID:   r.roomID,
		EventID:  r.eventID,
		Profile:  profile,
		JoinedAt: time.Now(),
	}
	if err := r.controller.Enter(ctx, participant); err != nil {
		r.logger.Warnw("admission failed", "user_id", userID, "error", err)
		return
	}
	r.known[userID] = participant.ID
}
