package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// MissingTokenStrategy decides what the guard does when no Authorization
// header is present. A presented token is always verified regardless of
// strategy; only its absence is negotiable.
type MissingTokenStrategy int

const (
	// RejectMissing answers 401 when the header is absent.
	RejectMissing MissingTokenStrategy = iota
	// AllowMissing lets the request through anonymously.
	AllowMissing
)

// Guard validates the bearer token and resolves the caller's identity. The
// token signature alone is never trusted: validation checks the bound session
// and the account state on every request.
func Guard(auth *usecase.AuthService, strategy MissingTokenStrategy) gin.HandlerFunc {
	return func(c *gin.Context) {
		// An earlier guard on the chain may have resolved the caller already.
		if _, done := GetAuthContext(c); done {
			c.Next()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			if strategy == AllowMissing {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		authCtx, err := auth.ValidateAccess(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrInvalidAccessToken), errors.Is(err, usecase.ErrSessionInvalid):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid or expired access token"))
			case errors.Is(err, usecase.ErrAccountInactive):
				// Suspended and deleted accounts get the same thin answer as a
				// dead token; the caller learns nothing about the account state.
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "account cannot authenticate"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Set(authContextKey, authCtx)
		c.Next()
	}
}

// RequireAuth rejects unauthenticated requests.
func RequireAuth(auth *usecase.AuthService) gin.HandlerFunc {
	return Guard(auth, RejectMissing)
}

// OptionalAuth resolves the caller when a token is presented but admits
// anonymous requests. Used on endpoints whose rate-limit tier differs for
// authenticated traffic.
func OptionalAuth(auth *usecase.AuthService) gin.HandlerFunc {
	return Guard(auth, AllowMissing)
}

// RequireRole checks that the authenticated caller holds at least one of the
// listed roles.
func RequireRole(roles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		authCtx, ok := GetAuthContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		if !usecase.IsAuthorized(authCtx.User.Role, roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// GetAuthContext retrieves the resolved identity set by the guard.
func GetAuthContext(c *gin.Context) (*usecase.AuthContext, bool) {
	value, exists := c.Get(authContextKey)
	if !exists {
		return nil, false
	}
	authCtx, ok := value.(*usecase.AuthContext)
	return authCtx, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
