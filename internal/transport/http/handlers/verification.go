package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/readzone/identity-core/internal/transport/http/middleware"
	"github.com/readzone/identity-core/internal/usecase"
)

// VerificationHandler exposes email verification and password reset endpoints.
type VerificationHandler struct {
	auth         *usecase.AuthService
	verification *usecase.VerificationService
}

// NewVerificationHandler constructs VerificationHandler.
func NewVerificationHandler(auth *usecase.AuthService, verification *usecase.VerificationService) *VerificationHandler {
	return &VerificationHandler{auth: auth, verification: verification}
}

// RegisterRoutes binds verification routes onto the group. Password reset is
// anonymous; requesting an email verification requires a signed-in user.
func (h *VerificationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/email/request", middleware.RequireAuth(h.auth), h.requestEmailVerification)
	r.POST("/email/confirm", h.confirmEmail)
	r.POST("/password/forgot", h.requestPasswordReset)
	r.POST("/password/reset", h.confirmPasswordReset)
}

func (h *VerificationHandler) requestEmailVerification(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	rc := middleware.GetRequestContext(c)
	if err := h.verification.RequestEmailVerification(c.Request.Context(), authCtx.User.ID, rc.IP, rc.UserAgent); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to send verification email")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "verification email sent"})
}

func (h *VerificationHandler) confirmEmail(c *gin.Context) {
	var req EmailConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	if err := h.verification.ConfirmEmail(c.Request.Context(), req.Token, rc.IP, rc.UserAgent); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidVerificationToken, Status: http.StatusBadRequest, Message: "invalid or expired verification token"},
		}, http.StatusInternalServerError, "failed to verify email")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "email verified"})
}

func (h *VerificationHandler) requestPasswordReset(c *gin.Context) {
	var req PasswordForgotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	if err := h.verification.RequestPasswordReset(c.Request.Context(), req.Email, rc.IP, rc.UserAgent); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to request password reset")
		return
	}

	// Unknown emails get the same response as known ones.
	c.JSON(http.StatusOK, MessageResponse{Message: "if the account exists, a reset email has been sent"})
}

func (h *VerificationHandler) confirmPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	if err := h.verification.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword, rc.IP, rc.UserAgent); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidVerificationToken, Status: http.StatusBadRequest, Message: "invalid or expired reset token"},
		}, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset; all sessions revoked"})
}
