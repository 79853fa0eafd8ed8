package domain

import "time"

type ParticipantID string

// ParticipantState is the per-participant position in the room loop.
type ParticipantState string

const (
	StateIdle      ParticipantState = "idle"
	StateSearching ParticipantState = "searching"
	// StatePending marks a participant selected for a match whose session
	// has not been confirmed yet. Pending participants are invisible to
	// ListAvailable, which is what prevents two concurrent selections from
	// picking the same partner.
	StatePending ParticipantState = "matched-pending"
	StateMatched ParticipantState = "matched"
	StateInCall  ParticipantState = "in-call"
	StateEnding  ParticipantState = "ending"
	StateLeft    ParticipantState = "left"
)

// Participant binds a Profile to one room occurrence.
type Participant struct {
	ID       ParticipantID
	RoomID   RoomID
	EventID  EventID
	Profile  Profile
	State    ParticipantState
	JoinedAt time.Time

	// MatchHistory holds partner IDs already paired this occurrence. It only
	// grows; repeats are allowed only once every other candidate has been
	// tried.
	MatchHistory map[ParticipantID]bool
}

// Matchable reports whether the participant can appear in candidate lists.
func (p *Participant) Matchable() bool {
	return p.State == StateIdle || p.State == StateSearching
}

// HasMet reports whether the participant was already paired with other this
// occurrence.
func (p *Participant) HasMet(other ParticipantID) bool {
	return p.MatchHistory[other]
}

// RecordMeeting appends other to the match history.
func (p *Participant) RecordMeeting(other ParticipantID) {
	if p.MatchHistory == nil {
		p.MatchHistory = make(map[ParticipantID]bool)
	}
	p.MatchHistory[other] = true
}
