package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/readzone/identity-core/internal/transport/http/middleware"
	"github.com/readzone/identity-core/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds authentication routes onto the group.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.POST("/mfa/verify", h.verifyMFA)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", middleware.RequireAuth(h.auth), h.logout)
	r.POST("/password/change", middleware.RequireAuth(h.auth), h.changePassword)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	profile, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		IPAddress:   rc.IP,
		UserAgent:   rc.UserAgent,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
		}, http.StatusInternalServerError, "failed to register account")
		return
	}

	c.JSON(http.StatusCreated, profile)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	result, err := h.auth.Login(c.Request.Context(), usecase.Credentials{
		Email:      req.Email,
		Password:   req.Password,
		IPAddress:  rc.IP,
		UserAgent:  rc.UserAgent,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(result))
}

func (h *AuthHandler) verifyMFA(c *gin.Context) {
	var req MFAChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid mfa payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	result, err := h.auth.VerifyMFA(c.Request.Context(), req.UserID, req.Code, usecase.Credentials{
		IPAddress:  rc.IP,
		UserAgent:  rc.UserAgent,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(result))
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidRefreshToken, Status: http.StatusUnauthorized, Message: "invalid or expired refresh token"},
			{Err: usecase.ErrSessionInvalid, Status: http.StatusUnauthorized, Message: "session is no longer active"},
			{Err: usecase.ErrAccountInactive, Status: http.StatusUnauthorized, Message: "account cannot authenticate"},
		}, http.StatusInternalServerError, "failed to refresh tokens")
		return
	}

	c.JSON(http.StatusOK, TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	rc := middleware.GetRequestContext(c)
	if err := h.auth.Logout(c.Request.Context(), authCtx.User.ID, authCtx.Session.ID, rc.IP, rc.UserAgent); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to log out"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

func (h *AuthHandler) changePassword(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password change payload"))
		return
	}

	rc := middleware.GetRequestContext(c)
	err := h.auth.ChangePassword(c.Request.Context(), authCtx.User.ID, req.CurrentPassword, req.NewPassword, authCtx.Session.ID, rc.IP, rc.UserAgent)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
		}, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed; other sessions revoked"})
}

// respondLoginError maps the shared login/MFA failure modes. Unknown emails,
// wrong passwords and bad MFA codes all collapse into one 401 message.
func respondLoginError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
		{Err: usecase.ErrAccountInactive, Status: http.StatusUnauthorized, Message: "account cannot authenticate"},
	}, http.StatusInternalServerError, "failed to sign in")
}

func newLoginResponse(result *usecase.LoginResult) LoginResponse {
	resp := LoginResponse{
		MFARequired: result.MFARequired,
		UserID:      result.UserID,
		User:        result.Profile,
		SessionID:   result.SessionID,
	}
	if result.Tokens != nil {
		resp.Tokens = &TokenPairResponse{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
		}
	}
	return resp
}
