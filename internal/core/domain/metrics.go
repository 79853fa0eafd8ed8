package domain

import "time"

// RoomMetrics is a point-in-time snapshot of one room occurrence.
type RoomMetrics struct {
	RoomID           RoomID
	Present          int
	Searching        int
	ActiveSessions   int
	MatchesMade      int
	AverageScore     float64
	ScorerFallbacks  int
	Timestamp        time.Time
}
