package middleware

import (
	"context"
	"net/http"
	"strings"

	"hola-chat/internal/auth"
	"hola-chat/internal/transport/httpdto"
	"hola-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type TokenParser interface {
	ParseAccessToken(token string) (auth.AccessClaims, error)
}

const userIDKey = "user_id"

// AuthMiddleware accepts a bearer token or, for websocket upgrades where
// headers are awkward, a token query parameter.
func AuthMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			token = c.Query("token")
		}
		claims, err := parser.ParseAccessToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		userID := strings.TrimSpace(claims.UserID)
		c.Set(userIDKey, userID)
		ctx := context.WithValue(c.Request.Context(), logger.UserIdKey, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserID returns the id stored by AuthMiddleware.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
