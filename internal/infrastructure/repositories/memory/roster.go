package memory

import (
	"context"
	"sort"
	"sync"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

// MemoryRoster backs both the profile store and the event roster when no
// shared store is configured. The surrounding application seeds it through
// the admin API.
type MemoryRoster struct {
	profiles map[domain.UserID]*domain.Profile
	active   map[domain.EventID]map[domain.UserID]bool
	mu       sync.RWMutex
}

var (
	_ ports.ProfileStore = (*MemoryRoster)(nil)
	_ ports.EventRoster  = (*MemoryRoster)(nil)
)

func NewMemoryRoster() *MemoryRoster {
	return &MemoryRoster{
		profiles: make(map[domain.UserID]*domain.Profile),
		active:   make(map[domain.EventID]map[domain.UserID]bool),
	}
}

func (r *MemoryRoster) GetProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return nil, domain.ErrProfileNotFound
	}
	copied := *profile
	return &copied, nil
}

func (r *MemoryRoster) ListActiveParticipants(ctx context.Context, eventID domain.EventID) ([]domain.UserID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.UserID, 0, len(r.active[eventID]))
	for userID := range r.active[eventID] {
		users = append(users, userID)
	}
	// Stable order keeps roster sync logs readable.
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (r *MemoryRoster) SetProfile(profile *domain.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *profile
	r.profiles[profile.UserID] = &copied
}

func (r *MemoryRoster) SetActive(eventID domain.EventID, userID domain.UserID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[eventID] == nil {
		r.active[eventID] = make(map[domain.UserID]bool)
	}
	if active {
		r.active[eventID][userID] = true
	} else {
		delete(r.active[eventID], userID)
	}
}
