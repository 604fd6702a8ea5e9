// Package restapi implements the small REST surface around the realtime
// editing subsystem: login, note metadata, and operational health/stats
// endpoints, grounded on this codebase's gin handler/route-group layout.
package restapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/notehub/collab/internal/config"
	"github.com/notehub/collab/internal/dto"
	"github.com/notehub/collab/internal/errors"
	"github.com/notehub/collab/internal/middleware"
	"github.com/notehub/collab/internal/notesvc"
	"github.com/notehub/collab/internal/realtime/registry"
	"github.com/notehub/collab/internal/session"
	"github.com/notehub/collab/internal/usersvc"
)

// sessionTTL is how long a freshly issued login session stays valid.
const sessionTTL = 7 * 24 * time.Hour

// Handler wires the REST surface's collaborators.
type Handler struct {
	sessions session.Service
	users    usersvc.Service
	notes    notesvc.Service
	registry *registry.Registry
	logger   *zap.Logger
	cfg      *config.Config

	startedAt time.Time
}

// NewHandler constructs a Handler.
func NewHandler(
	sessions session.Service,
	users usersvc.Service,
	notes notesvc.Service,
	reg *registry.Registry,
	logger *zap.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		sessions:  sessions,
		users:     users,
		notes:     notes,
		registry:  reg,
		logger:    logger,
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

// SetupRoutes registers every REST endpoint on router.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.health)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", h.login)

	notes := v1.Group("/notes")
	notes.Use(middleware.SessionAuth(h.sessions, h.users, h.cfg))
	notes.GET("/:idOrAlias", h.getNote)
	notes.GET("/:idOrAlias/stats", middleware.AdminOnly(), h.noteStats)

	admin := v1.Group("/admin")
	admin.Use(middleware.SessionAuth(h.sessions, h.users, h.cfg))
	admin.Use(middleware.AdminOnly())
	admin.GET("/stats", h.stats)
}

func (h *Handler) login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, errors.NewValidationError(err.Error()))
		return
	}

	user, err := h.users.ByUsername(req.Username)
	if err != nil {
		writeAPIError(c, errors.NewInvalidCredentialsError())
		return
	}

	if err := usersvc.CheckPassword(req.Password, user.Password); err != nil {
		writeAPIError(c, errors.NewInvalidCredentialsError())
		return
	}

	sessionID, err := h.sessions.CreateSession(c.Request.Context(), user.Username, sessionTTL)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		writeAPIError(c, errors.NewInternalError("could not create session"))
		return
	}

	cookieValue := session.SignCookie(sessionID, h.cfg.Session.Secret)
	c.SetCookie(h.cfg.Session.CookieName, cookieValue, int(sessionTTL.Seconds()), "/", "", false, true)

	c.JSON(http.StatusOK, dto.LoginResponse{
		BaseResponse: dto.BaseResponse{Success: true, Timestamp: time.Now()},
		User: dto.UserResponse{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
		},
	})
}

func (h *Handler) getNote(c *gin.Context) {
	note, err := h.notes.ByIDOrAlias(c.Param("idOrAlias"))
	if err != nil {
		writeAPIError(c, errors.NewNoteNotFoundError())
		return
	}

	c.JSON(http.StatusOK, dto.NoteResponse{
		ID:        string(note.ID),
		Alias:     note.Alias,
		Title:     note.Title,
		OwnerID:   note.OwnerID,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	})
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HubStatsResponse{
		BaseResponse:     dto.BaseResponse{Success: true, Timestamp: time.Now()},
		OpenHubs:         h.registry.OpenHubCount(),
		TotalConnections: h.registry.TotalConnections(),
	})
}

// noteStats reports the live connection/sync state of a single note's hub,
// or a zeroed response if the note currently has no open hub.
func (h *Handler) noteStats(c *gin.Context) {
	note, err := h.notes.ByIDOrAlias(c.Param("idOrAlias"))
	if err != nil {
		writeAPIError(c, errors.NewNoteNotFoundError())
		return
	}

	stats, open := h.registry.Stats(note.ID)
	c.JSON(http.StatusOK, dto.NoteStatsResponse{
		BaseResponse:    dto.BaseResponse{Success: true, Timestamp: time.Now()},
		NoteID:          string(note.ID),
		Open:            open,
		ConnectionCount: stats.ConnectionCount,
		SyncedCount:     stats.SyncedCount,
		ContentLength:   stats.ContentLength,
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		BaseResponse: dto.BaseResponse{Success: true, Timestamp: time.Now()},
		Status:       "healthy",
		Version:      "1.0.0",
		Uptime:       time.Since(h.startedAt).String(),
		Services:     map[string]string{"database": "ok", "redis": "ok"},
	})
}

func writeAPIError(c *gin.Context, apiErr *errors.APIError) {
	apiErr.WithRequestID(c.GetString("request_id"))
	c.JSON(apiErr.HTTPStatus(), dto.ErrorResponse{
		BaseResponse: dto.BaseResponse{
			Success:   false,
			Timestamp: time.Now(),
			RequestID: apiErr.RequestID,
		},
		Error: &dto.ErrorDetail{
			Code:    string(apiErr.Code),
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}
