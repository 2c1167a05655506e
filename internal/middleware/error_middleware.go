package middleware

import (
	"errors"
	"net/http"

	"hola-chat/internal/transport/httpdto"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last handler error with a status derived from
// its sentinel.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, code := classify(err)
		if l != nil && status >= http.StatusInternalServerError {
			l.Errorf("request error: %s", err.Error())
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, hola_errors.ErrUnauthorized), errors.Is(err, hola_errors.ErrAuth):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, hola_errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, hola_errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, hola_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
