package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

// HealthChecker aggregates liveness probes for the room server's
// dependencies. Probes run on demand and concurrently, each under its own
// deadline, so one slow dependency cannot stall the health endpoint.
type HealthChecker struct {
	mu     sync.RWMutex
	probes []dependencyProbe
}

type dependencyProbe struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

// HealthStatus is the aggregate result served on /health.
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// AddCheck registers a named probe. run must honor ctx cancellation.
func (h *HealthChecker) AddCheck(name string, timeout time.Duration, run func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, dependencyProbe{name: name, timeout: timeout, run: run})
}

// AddRedisCheck probes the persistence backend.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", timeout, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// AddMatchRepositoryCheck verifies the match record sink answers reads for
// the event this room serves.
func (h *HealthChecker) AddMatchRepositoryCheck(repo ports.MatchRecordRepository, eventID domain.EventID, timeout time.Duration) {
	h.AddCheck("match_repository", timeout, func(ctx context.Context) error {
		_, err := repo.ListByEvent(ctx, eventID)
		return err
	})
}

// CheckAll runs every registered probe and reports per-probe results. The
// room is healthy only when all probes pass.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	probes := make([]dependencyProbe, len(h.probes))
	copy(probes, h.probes)
	h.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Checks:    make(map[string]string, len(probes)),
		Timestamp: time.Now().UTC(),
	}

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(probes))
	for _, p := range probes {
		p := p
		go func() {
			probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			results <- outcome{name: p.name, err: p.run(probeCtx)}
		}()
	}

	for range probes {
		r := <-results
		if r.err != nil {
			status.Healthy = false
			status.Checks[r.name] = r.err.Error()
			continue
		}
		status.Checks[r.name] = "ok"
	}
	return status
}
