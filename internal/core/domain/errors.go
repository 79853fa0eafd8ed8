package domain

import "errors"

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrNoCandidates        = errors.New("no available candidates")
	ErrAlreadyClaimed      = errors.New("participant already claimed")
	ErrAlreadyInSession    = errors.New("participant already in a session")
	ErrAlreadyExtended     = errors.New("session already extended")
	ErrSessionEnded        = errors.New("session already ended")
	ErrMatchRecordNotFound = errors.New("match record not found")
	ErrMediaUnavailable    = errors.New("media transport unavailable")
)
