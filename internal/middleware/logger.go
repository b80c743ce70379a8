package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jtoloui/motorway-takehome-backend/internal/metrics"
	"go.uber.org/zap"
)

const unmatchedRoute = "unmatched"

// Logger logs every request on the way in and out, and records its latency.
func Logger(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	logger = logger.Named("Routes")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		requestID := GetRequestID(c)

		logger.Info("Inbound request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		)

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), latency)

		logger.Info("Outbound response",
			zap.String("request_id", requestID),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
		)
	}
}
