package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/readzone/identity-core/internal/infra/security"
	"github.com/readzone/identity-core/internal/transport/http/middleware"
	"github.com/readzone/identity-core/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or
// falls back to a generic response. Rate limit denials and password policy
// violations carry extra payload and are handled before the case table.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	if errors.Is(err, usecase.ErrRateLimited) {
		middleware.RespondRateLimited(c, err)
		return
	}

	var policyErr *security.PasswordValidationError
	if errors.As(err, &policyErr) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, policyErr.Message))
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
