package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/transport/http/middleware"
	"github.com/readzone/identity-core/internal/usecase"
)

const defaultAuditTrailLimit = 50

// AdminHandler exposes privileged user management endpoints.
type AdminHandler struct {
	auth  *usecase.AuthService
	admin *usecase.AdminService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(auth *usecase.AuthService, admin *usecase.AdminService) *AdminHandler {
	return &AdminHandler{auth: auth, admin: admin}
}

// RegisterRoutes binds admin routes onto the group. Routes require an ADMIN
// role up front; the services re-check the acting user on every call.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.Use(middleware.RequireAuth(h.auth), middleware.RequireRole(domain.RoleAdmin))
	r.PATCH("/users/:id", h.updateUser)
	r.DELETE("/users/:id", h.deleteUser)
	r.GET("/users/:id/audit", h.auditTrail)
}

func (h *AdminHandler) updateUser(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req AdminUpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid update payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	input := usecase.UpdateUserInput{
		SuspendedUntil: req.SuspendedUntil,
		IPAddress:      rc.IP,
		UserAgent:      rc.UserAgent,
	}
	if req.Role != nil {
		role := domain.UserRole(*req.Role)
		input.Role = &role
	}
	if req.Status != nil {
		status := domain.UserStatus(*req.Status)
		input.Status = &status
	}

	profile, err := h.admin.UpdateUser(c.Request.Context(), *authCtx.User, c.Param("id"), input)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrForbidden, Status: http.StatusForbidden, Message: "operation not permitted"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "failed to update user")
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *AdminHandler) deleteUser(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	rc := middleware.GetRequestContext(c)
	err := h.admin.ForceDelete(c.Request.Context(), *authCtx.User, c.Param("id"), rc.IP, rc.UserAgent)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrForbidden, Status: http.StatusForbidden, Message: "operation not permitted"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "failed to delete user")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "user deleted"})
}

func (h *AdminHandler) auditTrail(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	limit := defaultAuditTrailLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid limit"))
			return
		}
		limit = parsed
	}

	entries, err := h.admin.ListAuditTrail(c.Request.Context(), *authCtx.User, c.Param("id"), limit)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrForbidden, Status: http.StatusForbidden, Message: "operation not permitted"},
		}, http.StatusInternalServerError, "failed to load audit trail")
		return
	}

	views := make([]AuditEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, newAuditEntryView(entry))
	}

	c.JSON(http.StatusOK, AuditTrailResponse{Entries: views})
}
