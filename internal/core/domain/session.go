package domain

import "time"

type SessionID string

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionExtending SessionStatus = "extending"
	SessionEnding    SessionStatus = "ending"
	SessionEnded     SessionStatus = "ended"
)

// EndReason records which path ended a session. All reasons converge on the
// same cleanup; the reason is kept for the match record.
type EndReason string

const (
	EndReasonTimeout EndReason = "timeout"
	EndReasonSkip    EndReason = "skip"
	EndReasonLeave   EndReason = "leave"
)

// Session is one timed pairing between two participants. Exactly one Session
// exists per participant at a time; the pool's claim step enforces that.
type Session struct {
	ID           SessionID
	RoomID       RoomID
	EventID      EventID
	ParticipantA ParticipantID
	ParticipantB ParticipantID
	// Initiator drives the media offer. Chosen deterministically (smaller
	// participant ID) so the two sides never race over the role.
	Initiator ParticipantID
	Score     int
	StartedAt time.Time
	Duration  time.Duration
	Remaining time.Duration
	Extended  bool
	Status    SessionStatus
	EndReason EndReason
}

// Partner returns the other side of the pairing.
func (s *Session) Partner(id ParticipantID) ParticipantID {
	if id == s.ParticipantA {
		return s.ParticipantB
	}
	return s.ParticipantA
}

// Involves reports whether id is one of the two paired participants.
func (s *Session) Involves(id ParticipantID) bool {
	return id == s.ParticipantA || id == s.ParticipantB
}
