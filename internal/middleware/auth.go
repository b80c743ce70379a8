package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jtoloui/motorway-takehome-backend/internal/errors"
	"go.uber.org/zap"
)

const claimsKey = "jwt_claims"

// JWTAuthMiddleware validates HS256 bearer tokens in the Authorization header
// when enabled. Signature, expiry and not-before are checked; the claims are
// stored on the context for handlers.
func JWTAuthMiddleware(logger *zap.Logger, enabled bool, secret string) gin.HandlerFunc {
	if !enabled {
		// Auth disabled - pass through
		return func(c *gin.Context) {
			c.Next()
		}
	}

	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		start := time.Now()

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			unauthorized(c, "Invalid Authorization header format")
			return
		}

		claims := jwt.RegisteredClaims{}
		_, err := parser.ParseWithClaims(strings.TrimSpace(parts[1]), &claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			logger.Debug("JWT auth rejected",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			if errors.Is(err, jwt.ErrTokenExpired) {
				unauthorized(c, "Token expired")
				return
			}
			unauthorized(c, "Invalid token")
			return
		}

		logger.Debug("JWT auth validated",
			zap.String("path", c.Request.URL.Path),
			zap.String("subject", claims.Subject),
			zap.Duration("auth_duration", time.Since(start)),
		)

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// GetClaims returns the claims stored by JWTAuthMiddleware.
func GetClaims(c *gin.Context) (jwt.RegisteredClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return jwt.RegisteredClaims{}, false
	}
	claims, ok := v.(jwt.RegisteredClaims)
	return claims, ok
}

func unauthorized(c *gin.Context, message string) {
	appErr := apperrors.NewUnauthorizedError(message)
	c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
		"error":  appErr.Message,
		"status": appErr.StatusCode,
	})
}
