// Package middleware holds the Gin middleware shared by every route:
// correlation IDs, access logging, panic recovery, Prometheus metrics,
// per-caller rate limiting and security headers.
//
// Install order is RequestID, Logger, Recovery so that a recovered panic is
// logged with the request's correlation ID and caller.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	loggerKey       = "logger"
	requestIDHeader = "X-Request-ID"

	maxRequestIDLen = 128
	maxPathLogLen   = 256
)

// quietRoutes are hit by health checks and scrapers every few seconds.
var quietRoutes = map[string]bool{"/health": true, "/ready": true, "/metrics": true}

// RequestID reuses a well-formed X-Request-ID from the client or mints a
// UUID, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

// validRequestID accepts short, printable ASCII ids only, so a client
// cannot smuggle control characters into the logs.
func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if b := s[i]; b < 0x21 || b > 0x7e {
			return false
		}
	}
	return true
}

// Logger emits one access line per request and installs a request-scoped
// logger on the gin context and on the request context, where services pick
// it up with zerolog.Ctx.
//
// The line carries the route pattern, the :id path parameter (doctor,
// ticket or assessment) and the caller identity. Levels: error for 5xx or
// when a handler attached an error, warn for 4xx, debug for health routes and
// 304 revalidations from polling dashboards, info otherwise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		kind, id := caller(c)

		lc := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("route", routeLabel(c)).
			Str("caller_kind", kind).
			Str("caller", id)
		if rid := c.Param("id"); rid != "" {
			lc = lc.Str("resource_id", clip(rid, maxCallerIDLen))
		}
		l := lc.Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= http.StatusInternalServerError:
			ev = l.Error()
		case status >= http.StatusBadRequest:
			ev = l.Warn()
		case status == http.StatusNotModified || quietRoutes[c.FullPath()]:
			ev = l.Debug()
		default:
			ev = l.Info()
		}
		ev.Int("status", status).
			Str("path", clip(c.Request.URL.Path, maxPathLogLen)).
			Str("remote_ip", c.ClientIP()).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Recovery turns a panic into the internal_error envelope. If the handler
// had already started the response, only the status is forced.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger installed by Logger, or the global logger.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*zerolog.Logger); ok {
			return l
		}
	}
	return &log.Logger
}

// abortJSON writes the API error envelope. It has the same shape as
// handlers.Fail.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.GetString(requestIDKey),
		"code":       code,
		"message":    msg,
	})
}
