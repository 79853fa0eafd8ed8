package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/services"
	"pairnet/internal/infrastructure/repositories/memory"
	apperrors "pairnet/pkg/errors"
	"pairnet/pkg/validation"
)

// AdminHandler carries the endpoints the surrounding application (or a dev
// setup) uses to seed the room: minting room tokens and, when the in-memory
// roster is active, registering profiles and attendance.
type AdminHandler struct {
	eventID domain.EventID
	auth    services.AuthService
	roster  *memory.MemoryRoster // nil when a shared store backs the roster
}

func NewAdminHandler(eventID domain.EventID, auth services.AuthService, roster *memory.MemoryRoster) *AdminHandler {
	return &AdminHandler{
		eventID: eventID,
		auth:    auth,
		roster:  roster,
	}
}

func (h *AdminHandler) SetupRoutes(router *gin.Engine) {
	admin := router.Group("/admin/v1")
	{
		admin.POST("/tokens", h.MintToken)
		admin.POST("/profiles", h.UpsertProfile)
		admin.POST("/attendance", h.SetAttendance)
	}
}

type mintTokenRequest struct {
	UserID string `json:"user_id" binding:"required,max=64"`
}

func (h *AdminHandler) MintToken(c *gin.Context) {
	var req mintTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateID("user_id", req.UserID); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	token, err := h.auth.GenerateRoomToken(domain.UserID(req.UserID), h.eventID)
	if err != nil {
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"event_id": h.eventID,
	})
}

type upsertProfileRequest struct {
	UserID   string   `json:"user_id" binding:"required,max=64"`
	Name     string   `json:"name" binding:"required,max=100"`
	Role     string   `json:"role" binding:"max=100"`
	Company  string   `json:"company" binding:"max=100"`
	Industry string   `json:"industry" binding:"max=100"`
	Goals    []string `json:"goals"`
	Skills   []string `json:"skills"`
	Bio      string   `json:"bio"`
}

func (h *AdminHandler) UpsertProfile(c *gin.Context) {
	if h.roster == nil {
		c.Error(apperrors.NewConflictError("profiles are managed by the shared store"))
		return
	}

	var req upsertProfileRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateID("user_id", req.UserID); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateName(req.Name); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateGoals(req.Goals); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateSkills(req.Skills); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateBio(req.Bio); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	h.roster.SetProfile(&domain.Profile{
		UserID:   domain.UserID(req.UserID),
		Name:     req.Name,
		Role:     req.Role,
		Company:  req.Company,
		Industry: req.Industry,
		Goals:    req.Goals,
		Skills:   req.Skills,
		Bio:      req.Bio,
	})

	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID})
}

type setAttendanceRequest struct {
	UserID string `json:"user_id" binding:"required,max=64"`
	Active bool   `json:"active"`
}

func (h *AdminHandler) SetAttendance(c *gin.Context) {
	if h.roster == nil {
		c.Error(apperrors.NewConflictError("attendance is managed by the shared store"))
		return
	}

	var req setAttendanceRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateID("user_id", req.UserID); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	h.roster.SetActive(h.eventID, domain.UserID(req.UserID), req.Active)

	c.JSON(http.StatusOK, gin.H{
		"user_id": req.UserID,
		"active":  req.Active,
	})
}
