package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/squeaknode/node/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware stamps every request with a correlation ID,
// reusing one the caller already supplied, following
// web3-wallet-backend/internal/common/middleware.go's RequestIDMiddleware.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// loggerMiddleware logs each request's method, path, status, and
// latency, following web3-wallet-backend/internal/common/middleware.go's
// LoggerMiddleware.
func loggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		log.Info("admin request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString("request_id"),
		)
	}
}

// authMiddleware rejects requests without a bearer token signed with
// secret. This admin surface has exactly one operator and no notion of
// per-user claims, so the token's validity is the whole check — unlike
// pkg/infrastructure/security/jwt.go's multi-claim JWTService, there is
// no subject/role to inspect once the signature and expiry check out.
func authMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Kind: "unauthorized", Message: "missing bearer token"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		_, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Kind: "unauthorized", Message: "invalid bearer token"})
			return
		}
		c.Next()
	}
}
