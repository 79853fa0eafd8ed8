package ports

import (
	"context"
	"time"

	"pairnet/internal/core/domain"
)

// ParticipantPool tracks who is present in a room and whether they can be
// matched. Claim/Release implement the atomic claim step: a claimed pair is
// invisible to ListAvailable until the session is confirmed or the claim is
// released.
type ParticipantPool interface {
	Join(ctx context.Context, p *domain.Participant) error
	Leave(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error)
	Get(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error)
	// ListAvailable returns matchable participants excluding the requester.
	// Participants in the requester's match history are filtered out unless
	// no unmet candidate remains; repeats reports whether the fallback fired.
	ListAvailable(ctx context.Context, excluding domain.ParticipantID) (candidates []*domain.Participant, repeats bool, err error)
	// Claim atomically moves both participants to matched-pending. It fails
	// with domain.ErrAlreadyClaimed if either side is no longer matchable.
	Claim(ctx context.Context, a, b domain.ParticipantID) error
	Release(ctx context.Context, ids ...domain.ParticipantID) error
	SetState(ctx context.Context, id domain.ParticipantID, state domain.ParticipantState) error
	RecordMeeting(ctx context.Context, a, b domain.ParticipantID) error
	List(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error)
}

// MatchSelector picks the best available partner for a requester.
type MatchSelector interface {
	// FindMatch returns nil (no error) when the pool has nobody to offer;
	// the caller stays in searching and retries on its backoff.
	FindMatch(ctx context.Context, requester domain.ParticipantID) (*domain.MatchCandidate, error)
}

// CompatibilityScorer estimates networking value between two profiles.
// Implementations must be stateless and side-effect free.
type CompatibilityScorer interface {
	Score(ctx context.Context, a, b domain.Profile) (*domain.Compatibility, error)
}

// SessionController owns the lifecycle of active pairings in a room.
type SessionController interface {
	Enter(ctx context.Context, p *domain.Participant) error
	Leave(ctx context.Context, id domain.ParticipantID) error
	Skip(ctx context.Context, id domain.ParticipantID) error
	Extend(ctx context.Context, id domain.ParticipantID) (*domain.Session, error)
	RequestConnection(ctx context.Context, id domain.ParticipantID) error
	// HandleMediaSignal routes a signaling payload from a participant's
	// client to its media session for the active pairing.
	HandleMediaSignal(ctx context.Context, from domain.ParticipantID, payload []byte) error
	MediaConnected(ctx context.Context, id domain.ParticipantID)
	ActiveSession(ctx context.Context, id domain.ParticipantID) (*domain.Session, error)
	Shutdown(ctx context.Context) error
}

// OutcomeRecorder persists match and connection records. Writes are
// idempotent by (event, pair, start time) and must never block the
// participant from re-entering the pool.
type OutcomeRecorder interface {
	RecordMatch(ctx context.Context, session *domain.Session, outcome domain.MatchOutcome) (*domain.MatchRecord, error)
	SetOutcome(ctx context.Context, matchID string, outcome domain.MatchOutcome) error
	RecordConnection(ctx context.Context, matchID string, userA, userB domain.UserID) error
}

// ExtensionPolicy decides whether an extension request is granted. The
// shipped policy approves single-sided; a mutual-consent policy can be
// swapped in without touching the session state machine.
type ExtensionPolicy interface {
	Approve(ctx context.Context, session *domain.Session, requester domain.ParticipantID) (bool, error)
}

// SignalSender pushes a payload to one participant over the signaling
// channel. The transport is external to the core.
type SignalSender interface {
	SendToParticipant(id domain.ParticipantID, message interface{}) error
}

// ReasoningService is the optional remote evaluation backend used by the
// primary scorer. Calls are bounded by timeout and never required for
// correctness.
type ReasoningService interface {
	Evaluate(ctx context.Context, a, b domain.Profile) (*domain.Compatibility, error)
}

// Clock abstracts time for the session countdown so tests can drive ticks.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}
