package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/services"
)

// PrometheusCollector observes the rotation engine. It implements
// services.RoomObserver.
type PrometheusCollector struct {
	participantsActive *prometheus.GaugeVec
	sessionsActive     *prometheus.GaugeVec
	matchesTotal       *prometheus.CounterVec
	matchScore         prometheus.Histogram
	sessionDuration    *prometheus.HistogramVec
	claimConflicts     *prometheus.CounterVec
	scorerFallbacks    prometheus.Counter
}

var _ services.RoomObserver = (*PrometheusCollector)(nil)

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		participantsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pairnet_participants_active",
			Help: "Number of participants currently in each room",
		}, []string{"room_id"}),

		sessionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pairnet_sessions_active",
			Help: "Number of live pairings in each room",
		}, []string{"room_id"}),

		matchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairnet_matches_total",
			Help: "Total number of pairings made",
		}, []string{"room_id", "repeat"}),

		matchScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pairnet_match_score",
			Help:    "Compatibility score of made pairings (0-100)",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),

		sessionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pairnet_session_duration_seconds",
			Help:    "Wall-clock duration of ended sessions",
			Buckets: []float64{30, 60, 120, 180, 240, 300, 360, 420, 480},
		}, []string{"end_reason"}),

		claimConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pairnet_claim_conflicts_total",
			Help: "Match claims lost to a concurrent selector",
		}, []string{"room_id"}),

		scorerFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pairnet_scorer_fallbacks_total",
			Help: "Pair scorings served by the local fallback scorer",
		}),
	}
}

func (p *PrometheusCollector) ParticipantJoined(roomID domain.RoomID) {
	p.participantsActive.WithLabelValues(string(roomID)).Inc()
}

func (p *PrometheusCollector) ParticipantLeft(roomID domain.RoomID) {
	p.participantsActive.WithLabelValues(string(roomID)).Dec()
}

func (p *PrometheusCollector) MatchMade(roomID domain.RoomID, score int, repeat bool) {
	repeatLabel := "false"
	if repeat {
		repeatLabel = "true"
	}
	p.matchesTotal.WithLabelValues(string(roomID), repeatLabel).Inc()
	p.matchScore.Observe(float64(score))
	p.sessionsActive.WithLabelValues(string(roomID)).Inc()
}

func (p *PrometheusCollector) SessionEnded(roomID domain.RoomID, duration time.Duration, reason domain.EndReason) {
	p.sessionsActive.WithLabelValues(string(roomID)).Dec()
	p.sessionDuration.WithLabelValues(string(reason)).Observe(duration.Seconds())
}

func (p *PrometheusCollector) ClaimConflict(roomID domain.RoomID) {
	p.claimConflicts.WithLabelValues(string(roomID)).Inc()
}

func (p *PrometheusCollector) ScorerFallback() {
	p.scorerFallbacks.Inc()
}
