package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/readzone/identity-core/internal/transport/http/middleware"
	"github.com/readzone/identity-core/internal/usecase"
)

// MFAHandler exposes TOTP enrollment and backup code endpoints.
type MFAHandler struct {
	auth *usecase.AuthService
	mfa  *usecase.MFAService
}

// NewMFAHandler constructs MFAHandler.
func NewMFAHandler(auth *usecase.AuthService, mfa *usecase.MFAService) *MFAHandler {
	return &MFAHandler{auth: auth, mfa: mfa}
}

// RegisterRoutes binds MFA routes onto the group. All routes require auth;
// the unauthenticated challenge verification lives under /auth instead.
func (h *MFAHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.Use(middleware.RequireAuth(h.auth))
	r.POST("/enable", h.beginEnable)
	r.POST("/enable/confirm", h.confirmEnable)
	r.POST("/disable", h.disable)
	r.POST("/backup-codes/regenerate", h.regenerateBackupCodes)
}

func (h *MFAHandler) beginEnable(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	enrollment, err := h.mfa.BeginEnable(c.Request.Context(), authCtx.User.ID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMFAAlreadyEnabled, Status: http.StatusConflict, Message: "mfa is already enabled"},
		}, http.StatusInternalServerError, "failed to start mfa enrollment")
		return
	}

	c.JSON(http.StatusOK, MFAEnrollmentResponse{
		Secret:       enrollment.Secret,
		ProvisionURI: enrollment.ProvisionURI,
		BackupCodes:  enrollment.BackupCodes,
	})
}

func (h *MFAHandler) confirmEnable(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req MFAConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid mfa payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	err := h.mfa.ConfirmEnable(c.Request.Context(), authCtx.User.ID, req.Code, rc.IP, rc.UserAgent)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoPendingSetup, Status: http.StatusConflict, Message: "no pending mfa enrollment"},
			{Err: usecase.ErrInvalidCode, Status: http.StatusBadRequest, Message: "invalid verification code"},
		}, http.StatusInternalServerError, "failed to confirm mfa enrollment")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "mfa enabled"})
}

func (h *MFAHandler) disable(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req MFADisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid mfa payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	err := h.mfa.Disable(c.Request.Context(), authCtx.User.ID, req.Password, rc.IP, rc.UserAgent)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "password is incorrect"},
			{Err: usecase.ErrMFANotEnabled, Status: http.StatusConflict, Message: "mfa is not enabled"},
		}, http.StatusInternalServerError, "failed to disable mfa")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "mfa disabled"})
}

func (h *MFAHandler) regenerateBackupCodes(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	rc := middleware.GetRequestContext(c)
	codes, err := h.mfa.RegenerateBackupCodes(c.Request.Context(), authCtx.User.ID, rc.IP, rc.UserAgent)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMFANotEnabled, Status: http.StatusConflict, Message: "mfa is not enabled"},
		}, http.StatusInternalServerError, "failed to regenerate backup codes")
		return
	}

	c.JSON(http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}
