package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/http/middleware"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"` // echo of X-Request-ID
	Code      string `json:"code"`                 // stable, machine-readable
	Message   string `json:"message"`              // safe to show to staff
}

// Owner identity headers. The user header is set by an upstream
// authenticating proxy; anonymous patients send a session id instead.
const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
)

// fail aborts with the error envelope. 5xx responses are also logged on the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's fallback and health handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// bindJSON decodes the request body into dst. On failure it writes 413 when
// the body cap was hit and 400 otherwise, and returns false.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
		return false
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
	return false
}

// bindOptionalJSON is bindJSON for endpoints whose body may be omitted,
// such as a walk-in ticket without notes.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst)
}

// owner reads the caller identity. Exactly one of the two headers must be
// present; otherwise it writes a 400 and returns false.
func owner(c *gin.Context) (domain.Owner, bool) {
	o := domain.Owner{
		UserID:    strings.TrimSpace(c.GetHeader(HeaderUserID)),
		SessionID: strings.TrimSpace(c.GetHeader(HeaderSessionID)),
	}
	if !o.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "exactly one of X-User-ID or X-Session-ID is required")
		return o, false
	}
	return o, true
}
