package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Caller identity headers. They match handlers.HeaderUserID and
// handlers.HeaderSessionID; this package cannot import handlers.
const (
	userIDHeader    = "X-User-ID"
	sessionIDHeader = "X-Session-ID"

	maxCallerIDLen = 64
)

// Caller kinds, used as a bounded metric label.
const (
	callerUser    = "user"
	callerSession = "session"
	callerIP      = "ip"
)

// caller reports who is asking: the user header wins over the session
// header, and anonymous traffic falls back to the client IP.
func caller(c *gin.Context) (kind, id string) {
	if s := strings.TrimSpace(c.GetHeader(userIDHeader)); s != "" {
		return callerUser, clip(s, maxCallerIDLen)
	}
	if s := strings.TrimSpace(c.GetHeader(sessionIDHeader)); s != "" {
		return callerSession, clip(s, maxCallerIDLen)
	}
	return callerIP, c.ClientIP()
}

// callerKey is caller flattened to "kind:id".
func callerKey(c *gin.Context) string {
	kind, id := caller(c)
	return kind + ":" + id
}

// clip cuts s to at most n bytes and marks the cut with an ellipsis.
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
