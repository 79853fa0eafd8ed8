package domain

import (
	"fmt"
	"time"
)

// MatchCandidate is an ephemeral scoring result. It is consumed immediately
// by the session controller and never persisted.
type MatchCandidate struct {
	Requester            ParticipantID
	Partner              ParticipantID
	Initiator            ParticipantID
	Score                int
	Rationale            string
	Strengths            []string
	Opportunities        []string
	ConversationStarters []string
	// Repeat is set when the pool was exhausted and the pair has already met
	// this occurrence.
	Repeat bool
}

// Compatibility is a scorer's verdict on a pair of profiles.
type Compatibility struct {
	Score                int
	Rationale            string
	Strengths            []string
	Opportunities        []string
	ConversationStarters []string
}

type MatchOutcome string

const (
	OutcomeCompleted           MatchOutcome = "completed"
	OutcomeSkipped             MatchOutcome = "skipped"
	OutcomeAbandoned           MatchOutcome = "abandoned"
	OutcomeConnectionRequested MatchOutcome = "connectionRequested"
	OutcomeConnectionApproved  MatchOutcome = "connectionApproved"
)

// Supersedes reports whether o may replace prev on a stored record.
// Connection outcomes are sticky: once a side has opted in, the terminal
// write at session end must not downgrade the record back to a plain
// end reason.
func (o MatchOutcome) Supersedes(prev MatchOutcome) bool {
	return o.connectionRank() >= prev.connectionRank()
}

func (o MatchOutcome) connectionRank() int {
	switch o {
	case OutcomeConnectionApproved:
		return 2
	case OutcomeConnectionRequested:
		return 1
	default:
		return 0
	}
}

// MatchRecord is the persisted, append-only record of one pairing. Outcome
// flags may be set once; nothing else is ever mutated.
type MatchRecord struct {
	ID           string
	EventID      EventID
	RoomID       RoomID
	ParticipantA ParticipantID
	ParticipantB ParticipantID
	Score        int
	Outcome      MatchOutcome
	StartedAt    time.Time
	EndedAt      time.Time
}

// Key returns the order-independent idempotency key for the record: the pair
// is sorted so both sides of a race produce the same key.
func (r *MatchRecord) Key() string {
	a, b := r.ParticipantA, r.ParticipantB
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s:%s:%d", r.EventID, a, b, r.StartedAt.Unix())
}

// ConnectionRecord is created when both sides of a match opt in to stay in
// touch. Its lifecycle is independent of any session.
type ConnectionRecord struct {
	ID        string
	MatchID   string
	EventID   EventID
	UserA     UserID
	UserB     UserID
	CreatedAt time.Time
}
