// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Service failures carry a services.Kind; writeErr maps each kind to an HTTP
// status and reuses the kind string as the response code, so clients see the
// same taxonomy the engine uses:
//
//	validation_error    400
//	not_found           404
//	invalid_transition  409
//	slot_occupied       409
//	no_waiting_ticket   404
//	allocation_failed   503
//	service_unavailable 503
//
// Transport-level problems (malformed JSON, missing owner headers, unknown
// routes) use the generic codes below.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "slot_occupied",
//	  "message": "doctor dr-a already has a patient in consultation"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-queue/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeNotFound         = "not_found"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// statusFor maps a service error kind to its HTTP status.
func statusFor(k services.Kind) int {
	switch k {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound, services.KindNoWaitingTicket:
		return http.StatusNotFound
	case services.KindInvalidTransition, services.KindSlotOccupied:
		return http.StatusConflict
	case services.KindAllocationFailed, services.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErr translates a service error into the standard error envelope.
// For 5xx the full error is attached to the gin context so the access log
// carries it; clients only see the reason.
func writeErr(c *gin.Context, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	status := statusFor(se.Kind)
	msg := se.Reason
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		if se.Kind == services.KindServiceUnavailable {
			msg = "service temporarily unavailable"
		}
	}
	fail(c, status, string(se.Kind), msg)
}
