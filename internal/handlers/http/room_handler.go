package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/internal/core/services"
	apperrors "pairnet/pkg/errors"
	"pairnet/pkg/validation"
)

// RoomHandler exposes the rotation engine over HTTP. Real-time traffic
// (match notifications, timer, media signaling) goes over the websocket
// channel; these endpoints carry the participant's explicit actions.
type RoomHandler struct {
	roomID      domain.RoomID
	eventID     domain.EventID
	controller  ports.SessionController
	pool        ports.ParticipantPool
	profiles    ports.ProfileStore
	matches     ports.MatchRecordRepository
	connections ports.ConnectionRecordRepository
	stats       *services.StatsObserver
	logger      *zap.SugaredLogger
}

func NewRoomHandler(
	roomID domain.RoomID,
	eventID domain.EventID,
	controller ports.SessionController,
	pool ports.ParticipantPool,
	profiles ports.ProfileStore,
	matches ports.MatchRecordRepository,
	connections ports.ConnectionRecordRepository,
	stats *services.StatsObserver,
	logger *zap.SugaredLogger,
) *RoomHandler {
	return &RoomHandler{
		roomID:      roomID,
		eventID:     eventID,
		controller:  controller,
		pool:        pool,
		profiles:    profiles,
		matches:     matches,
		connections: connections,
		stats:       stats,
		logger:      logger,
	}
}

func (h *RoomHandler) SetupRoutes(api *gin.RouterGroup) {
	room := api.Group("/room")
	{
		room.POST("/enter", h.Enter)
		room.POST("/leave", h.Leave)
		room.POST("/skip", h.Skip)
		room.POST("/extend", h.Extend)
		room.POST("/connect", h.RequestConnection)
		room.GET("/session", h.ActiveSession)
		room.GET("/participants", h.ListParticipants)
		room.GET("/stats", h.Stats)
	}
	api.GET("/matches", h.ListMatches)
	api.GET("/connections", h.ListConnections)
}

// participantID resolves the caller's room identity from the token claims
// the auth middleware stored.
func (h *RoomHandler) participantID(c *gin.Context) (domain.ParticipantID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.Error(apperrors.NewUnauthorizedError("authentication required"))
		return "", false
	}
	userID, ok := userIDVal.(domain.UserID)
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("invalid user context"))
		return "", false
	}
	return domain.ParticipantID(userID), true
}

type enterRequest struct {
	// MediaReady reports whether the client obtained camera and microphone
	// access. Entry without it is refused; it is the one blocking error.
	MediaReady bool `json:"media_ready"`
}

func (h *RoomHandler) Enter(c *gin.Context) {
	id, ok := h.participantID(c)
	if !ok {
		return
	}

	var req enterRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if !req.MediaReady {
		c.Error(apperrors.NewMediaAccessError("camera and microphone access is required to enter the room"))
		return
	}

	profile, err := h.profiles.GetProfile(c.Request.Context(), domain.UserID(id))
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			c.Error(apperrors.NewNotFoundError("profile"))
			return
		}
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}
	if err := validation.ValidateName(profile.Name); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	participant := &domain.Participant{
		ID:       id,
		RoomID:   h.roomID,
		EventID:  h.eventID,
		Profile:  *profile,
		JoinedAt: time.Now(),
	}
	if err := h.controller.Enter(c.Request.Context(), participant); err != nil {
		if errors.Is(err, domain.ErrAlreadyInSession) {
			c.Error(apperrors.NewConflictError("already in the room"))
			return
		}
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id":        h.roomID,
		"participant_id": id,
		"state":          domain.StateSearching,
	})
}

func (h *RoomHandler) Leave(c *gin.Context) {
	id, ok := h.participantID(c)
	if !ok {
		return
	}

	if err := h.controller.Leave(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			c.Error(apperrors.NewNotFoundError("participant"))
			return
		}
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"left": true})
}

func (h *RoomHandler) Skip(c *gin.Context) {
	id, ok := h.participantID(c)
	if !ok {
		return
	}

	if err := h.controller.Skip(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.Error(apperrors.NewNotFoundError("active session"))
			return
		}
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"skipped": true})
}

func (h *RoomHandler) Extend(c *gin.Context) {
	id, ok := h.participantID(c)
	if !ok {
		return
	}

	session, err := h.controller.Extend(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			c.Error(apperrors.NewNotFoundError("active session"))
		case errors.Is(err, domain.ErrAlreadyExtended):
			c.Error(apperrors.NewConflictError("session already extended"))
		case errors.Is(err, domain.ErrSessionEnded):
			c.Error(apperrors.NewConflictError("session already ended"))
		default:
			c.Error(apperrors.NewInternalError(err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":        session.ID,
		"extended":          session.Extended,
		"remaining_seconds": int(session.Remaining.Seconds()),
	})
}

func (h *RoomHandler) RequestConnection(c *gin.Context) {
	id, ok := h.participantID(c)
	if !ok {
		return
	}

	if err := h.controller.RequestConnection(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.Error(apperrors.NewNotFoundError("active session"))
			return
		}
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"requested": true})
}

func (h *RoomHandler) ActiveSession(c *gin.Context) {
	id, ok := h.participantID(c)
	if !ok {
		return
	}

	session, err := h.controller.ActiveSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.Error(apperrors.NewNotFoundError("active session"))
			return
		}
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":        session.ID,
		"partner_id":        session.Partner(id),
		"initiator":         session.Initiator == id,
		"status":            session.Status,
		"extended":          session.Extended,
		"remaining_seconds": int(session.Remaining.Seconds()),
		"started_at":        session.StartedAt,
	})
}

func (h *RoomHandler) ListParticipants(c *gin.Context) {
	participants, err := h.pool.List(c.Request.Context(), h.roomID)
	if err != nil {
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	out := make([]gin.H, 0, len(participants))
	for _, p := range participants {
		out = append(out, gin.H{
			"participant_id": p.ID,
			"name":           p.Profile.Name,
			"state":          p.State,
			"joined_at":      p.JoinedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id":      h.roomID,
		"participants": out,
	})
}

func (h *RoomHandler) Stats(c *gin.Context) {
	snapshot := h.stats.Snapshot()

	participants, err := h.pool.List(c.Request.Context(), h.roomID)
	if err != nil {
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}
	for _, p := range participants {
		if p.State == domain.StateSearching {
			snapshot.Searching++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id":          snapshot.RoomID,
		"present":          snapshot.Present,
		"searching":        snapshot.Searching,
		"active_sessions":  snapshot.ActiveSessions,
		"matches_made":     snapshot.MatchesMade,
		"average_score":    snapshot.AverageScore,
		"scorer_fallbacks": snapshot.ScorerFallbacks,
		"timestamp":        snapshot.Timestamp,
	})
}

func (h *RoomHandler) ListMatches(c *gin.Context) {
	records, err := h.matches.ListByEvent(c.Request.Context(), h.eventID)
	if err != nil {
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id": h.eventID,
		"matches":  records,
	})
}

func (h *RoomHandler) ListConnections(c *gin.Context) {
	id, ok := h.participantID(c)
	if !ok {
		return
	}

	records, err := h.connections.ListByUser(c.Request.Context(), domain.UserID(id))
	if err != nil {
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"connections": records})
}
