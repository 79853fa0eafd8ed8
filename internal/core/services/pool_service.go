package services

import (
	"context"
	"sort"
	"sync"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

// poolService is the in-memory participant pool for one room process. All
// mutations run under one lock; the claim step is what keeps two concurrent
// selections from grabbing the same partner.
type poolService struct {
	mu           sync.RWMutex
	participants map[domain.ParticipantID]*domain.Participant
}

// NewParticipantPool creates an empty pool.
func NewParticipantPool() ports.ParticipantPool {
	return &poolService{
		participants: make(map[domain.ParticipantID]*domain.Participant),
	}
}

func (p *poolService) Join(ctx context.Context, participant *domain.Participant) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.participants[participant.ID]; exists {
		return domain.ErrAlreadyInSession
	}
	if participant.MatchHistory == nil {
		participant.MatchHistory = make(map[domain.ParticipantID]bool)
	}
	participant.State = domain.StateIdle
	p.participants[participant.ID] = participant
	return nil
}

func (p *poolService) Leave(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	participant, exists := p.participants[id]
	if !exists {
		return nil, domain.ErrParticipantNotFound
	}
	delete(p.participants, id)
	participant.State = domain.StateLeft
	return participant, nil
}

func (p *poolService) Get(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	participant, exists := p.participants[id]
	if !exists {
		return nil, domain.ErrParticipantNotFound
	}
	return participant, nil
}

func (p *poolService) ListAvailable(ctx context.Context, excluding domain.ParticipantID) ([]*domain.Participant, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	requester, exists := p.participants[excluding]
	if !exists {
		return nil, false, domain.ErrParticipantNotFound
	}

	var fresh []*domain.Participant
	var met []*domain.Participant
	for id, candidate := range p.participants {
		if id == excluding || !candidate.Matchable() {
			continue
		}
		if requester.HasMet(id) {
			met = append(met, candidate)
		} else {
			fresh = append(fresh, candidate)
		}
	}

	if len(fresh) > 0 {
		sortByJoin(fresh)
		return fresh, false, nil
	}
	// Pool exhausted: allow repeats rather than stalling a small room.
	sortByJoin(met)
	return met, true, nil
}

func (p *poolService) Claim(ctx context.Context, a, b domain.ParticipantID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pa, okA := p.participants[a]
	pb, okB := p.participants[b]
	if !okA || !okB {
		return domain.ErrParticipantNotFound
	}
	if !pa.Matchable() || !pb.Matchable() {
		return domain.ErrAlreadyClaimed
	}
	pa.State = domain.StatePending
	pb.State = domain.StatePending
	return nil
}

func (p *poolService) Release(ctx context.Context, ids ...domain.ParticipantID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range ids {
		if participant, exists := p.participants[id]; exists && participant.State == domain.StatePending {
			participant.State = domain.StateSearching
		}
	}
	return nil
}

func (p *poolService) SetState(ctx context.Context, id domain.ParticipantID, state domain.ParticipantState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	participant, exists := p.participants[id]
	if !exists {
		return domain.ErrParticipantNotFound
	}
	participant.State = state
	return nil
}

func (p *poolService) RecordMeeting(ctx context.Context, a, b domain.ParticipantID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pa, exists := p.participants[a]; exists {
		pa.RecordMeeting(b)
	}
	if pb, exists := p.participants[b]; exists {
		pb.RecordMeeting(a)
	}
	return nil
}

func (p *poolService) List(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*domain.Participant
	for _, participant := range p.participants {
		if participant.RoomID == roomID {
			out = append(out, participant)
		}
	}
	sortByJoin(out)
	return out, nil
}

// sortByJoin orders by join time, then ID, so candidate order is stable and
// tie-breaking is reproducible.
func sortByJoin(list []*domain.Participant) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
}
