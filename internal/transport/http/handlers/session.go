package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/readzone/identity-core/internal/transport/http/middleware"
	"github.com/readzone/identity-core/internal/usecase"
)

// SessionHandler exposes session management endpoints for the authenticated user.
type SessionHandler struct {
	auth     *usecase.AuthService
	sessions *usecase.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(auth *usecase.AuthService, sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{auth: auth, sessions: sessions}
}

// RegisterRoutes binds session routes onto the group. All routes require auth.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.Use(middleware.RequireAuth(h.auth))
	r.GET("", h.list)
	r.DELETE("/others", h.revokeOthers)
	r.DELETE("/:id", h.revoke)
}

func (h *SessionHandler) list(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	summaries, err := h.sessions.ListActive(c.Request.Context(), authCtx.User.ID, authCtx.Session.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: summaries})
}

func (h *SessionHandler) revoke(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	err := h.sessions.RevokeOwned(c.Request.Context(), authCtx.User.ID, c.Param("id"), "user_revoke")
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
			{Err: usecase.ErrSessionForbidden, Status: http.StatusNotFound, Message: "session not found"},
		}, http.StatusInternalServerError, "failed to revoke session")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session revoked"})
}

func (h *SessionHandler) revokeOthers(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if _, err := h.sessions.RevokeAllExcept(c.Request.Context(), authCtx.User.ID, authCtx.Session.ID, "user_revoke"); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "other sessions revoked"})
}
