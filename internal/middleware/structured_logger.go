// Package middleware provides HTTP middleware for the relay's control plane.
// This file implements structured request logging.
//
// Logged fields: request_id, method, path, query, status, duration_ms,
// client_ip, user_agent, and any errors Gin accumulated on the context.
// Log level follows status: 5xx is Error, 4xx is Warn, everything else Info.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/relay/internal/logger"
)

// StructuredLoggerConfig allows customization of structured logging.
type StructuredLoggerConfig struct {
	SkipPaths       []string
	SkipHealthCheck bool
	LogQuery        bool
	LogUserAgent    bool
}

// DefaultStructuredLoggerConfig skips /api/health and logs everything else.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipHealthCheck: true,
		LogQuery:        true,
		LogUserAgent:    true,
	}
}

// StructuredLogger logs every request with the default configuration.
func StructuredLogger() gin.HandlerFunc {
	return StructuredLoggerWithConfigFunc(DefaultStructuredLoggerConfig())
}

// StructuredLoggerWithConfigFunc builds a structured logger from config.
func StructuredLoggerWithConfigFunc(config StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	if config.SkipHealthCheck {
		skip["/api/health"] = true
	}

	log := logger.HTTP()

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		evt := log.Info()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400:
			evt = log.Warn()
		}

		evt = evt.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Str("client_ip", c.ClientIP())

		if config.LogQuery && raw != "" {
			evt = evt.Str("query", raw)
		}
		if config.LogUserAgent {
			evt = evt.Str("user_agent", c.Request.UserAgent())
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("http request")
	}
}
