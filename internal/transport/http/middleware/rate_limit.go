package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/readzone/identity-core/internal/usecase"
)

// RequestRateLimit applies the general per-request admission tiers:
// authenticated callers are tracked by user id, anonymous callers by IP.
// Denials answer 429 with a Retry-After header. Endpoint-specific limits
// (login, register, password reset) live inside the usecases themselves, so
// they apply no matter which transport invokes them.
func RequestRateLimit(limiter *usecase.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		userID := ""
		if authCtx, ok := GetAuthContext(c); ok {
			userID = authCtx.User.ID
		}

		if err := limiter.AllowRequest(c.Request.Context(), userID, c.ClientIP()); err != nil {
			RespondRateLimited(c, err)
			return
		}

		c.Next()
	}
}

// RespondRateLimited writes the 429 response for a rate-limit denial,
// including Retry-After when the error carries the remaining window.
func RespondRateLimited(c *gin.Context, err error) {
	var rateErr *usecase.RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		seconds := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests,
		newErrorResponse(c, "too many requests"))
}
