package services

import (
	"sync"
	"time"

	"pairnet/internal/core/domain"
)

// teeObserver fans every event out to all wrapped observers.
type teeObserver struct {
	observers []RoomObserver
}

// TeeObservers combines several observers into one. Nil entries are skipped.
func TeeObservers(observers ...RoomObserver) RoomObserver {
	kept := make([]RoomObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			kept = append(kept, o)
		}
	}
	return &teeObserver{observers: kept}
}

func (t *teeObserver) ParticipantJoined(roomID domain.RoomID) {
	for _, o := range t.observers {
		o.ParticipantJoined(roomID)
	}
}

func (t *teeObserver) ParticipantLeft(roomID domain.RoomID) {
	for _, o := range t.observers {
		o.ParticipantLeft(roomID)
	}
}

func (t *teeObserver) MatchMade(roomID domain.RoomID, score int, repeat bool) {
	for _, o := range t.observers {
		o.MatchMade(roomID, score, repeat)
	}
}

func (t *teeObserver) SessionEnded(roomID domain.RoomID, duration time.Duration, reason domain.EndReason) {
	for _, o := range t.observers {
		o.SessionEnded(roomID, duration, reason)
	}
}

func (t *teeObserver) ClaimConflict(roomID domain.RoomID) {
	for _, o := range t.observers {
		o.ClaimConflict(roomID)
	}
}

func (t *teeObserver) ScorerFallback() {
	for _, o := range t.observers {
		o.ScorerFallback()
	}
}

// StatsObserver accumulates room counters and serves point-in-time
// snapshots for the stats endpoint.
type StatsObserver struct {
	mu sync.Mutex

	roomID         domain.RoomID
	present        int
	activeSessions int
	matchesMade    int
	scoreSum       int
	fallbacks      int
}

func NewStatsObserver(roomID domain.RoomID) *StatsObserver {
	return &StatsObserver{roomID: roomID}
}

func (s *StatsObserver) ParticipantJoined(domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present++
}

func (s *StatsObserver) ParticipantLeft(domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.present > 0 {
		s.present--
	}
}

func (s *StatsObserver) MatchMade(_ domain.RoomID, score int, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchesMade++
	s.scoreSum += score
	s.activeSessions++
}

func (s *StatsObserver) SessionEnded(domain.RoomID, time.Duration, domain.EndReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeSessions > 0 {
		s.activeSessions--
	}
}

func (s *StatsObserver) ClaimConflict(domain.RoomID) {}

func (s *StatsObserver) ScorerFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks++
}

// Snapshot returns the current counters. Searching is derived by the
// caller from the pool, not tracked here.
func (s *StatsObserver) Snapshot() domain.RoomMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	avg := 0.0
	if s.matchesMade > 0 {
		avg = float64(s.scoreSum) / float64(s.matchesMade)
	}

	return domain.RoomMetrics{
		RoomID:          s.roomID,
		Present:         s.present,
		ActiveSessions:  s.activeSessions,
		MatchesMade:     s.matchesMade,
		AverageScore:    avg,
		ScorerFallbacks: s.fallbacks,
		Timestamp:       time.Now().UTC(),
	}
}
