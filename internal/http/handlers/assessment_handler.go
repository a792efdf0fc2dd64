// Assessment HTTP handlers.
//
// This file exposes the guided urgency intake:
//   - POST /assessments               (start, or resume the open one)
//   - POST /assessments/{id}/answers  (submit one structured answer)
//   - GET  /assessments/{id}          (conversation, transcript, verdict)
//
// The patient reference is the caller identity (X-User-ID or X-Session-ID),
// which is also how tickets are owned, so an assessment can rescore the
// patient's tickets.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/urgency"
)

// StartAssessmentRequest optionally links the conversation to a ticket.
type StartAssessmentRequest struct {
	TicketID *string `json:"ticket_id"`
}

// StartAssessment opens a conversation or returns the caller's open one
// with the pending question. 201 while nothing has been answered yet.
//
// StartAssessment godoc
// @ID          startAssessment
// @Summary     Start the urgency intake
// @Tags        Assessments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID     header  string  false  "Authenticated user id (set upstream)"
// @Param       X-Session-ID  header  string  false  "Anonymous session id"
// @Param       body          body    handlers.StartAssessmentRequest  false  "Optional ticket link"
//
// @Success     201  {object}  services.AssessmentView
// @Success     200  {object}  services.AssessmentView  "Open conversation already answered"
// @Failure     400  {object}  handlers.ErrorResponse   "Validation error"
// @Failure     404  {object}  handlers.ErrorResponse   "Ticket not found"
// @Failure     429  {object}  handlers.ErrorResponse   "Rate limited"
// @Router      /assessments [post]
func (h *Handlers) StartAssessment(c *gin.Context) {
	o, okOwner := owner(c)
	if !okOwner {
		return
	}
	var req StartAssessmentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	v, err := h.assessments.Start(c.Request.Context(), o.Ref(), req.TicketID)
	if err != nil {
		writeErr(c, err)
		return
	}
	status := http.StatusOK
	if v.Conversation.Status == domain.ConversationPending {
		status = http.StatusCreated
	}
	ok(c, status, v)
}

// SubmitAnswer applies one answer. The body is the structured answer for the
// pending question: {"level": 7}, {"options": ["chest_pain"]} or
// {"choice": "few_hours"}, with an optional free-text "text".
// An unusable answer still returns 200: the same question comes back with
// a provisional neutral verdict and a degraded_assessment warning.
//
// SubmitAnswer godoc
// @ID          submitAnswer
// @Summary     Answer the pending question
// @Tags        Assessments
// @Accept      json
// @Produce     json
//
// @Param       id    path  string          true  "Conversation ID"
// @Param       body  body  urgency.Answer  true  "Structured answer"
//
// @Success     200  {object}  services.AssessmentView
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid JSON body"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Conversation completed"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Router      /assessments/{id}/answers [post]
func (h *Handlers) SubmitAnswer(c *gin.Context) {
	var a urgency.Answer
	if !bindJSON(c, &a) {
		return
	}
	v, err := h.assessments.Submit(c.Request.Context(), strings.TrimSpace(c.Param("id")), a)
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// GetAssessment godoc
// @ID          getAssessment
// @Summary     Get a conversation
// @Description Returns the conversation with its transcript and either the pending question or the verdict.
// @Tags        Assessments
// @Produce     json
//
// @Param       id   path  string  true  "Conversation ID"
//
// @Success     200  {object}  services.AssessmentView
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /assessments/{id} [get]
func (h *Handlers) GetAssessment(c *gin.Context) {
	v, err := h.assessments.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}
