// Ticket HTTP handlers.
//
// This file exposes REST endpoints for the ticket lifecycle:
//   - POST  /doctors/{id}/tickets     (join a doctor's queue)
//   - POST  /doctors/{id}/call-next   (staff: call the best waiting ticket)
//   - POST  /doctors/{id}/reset       (staff: withdraw every waiting ticket)
//   - GET   /tickets/{id}             (ticket with waiting position)
//   - PATCH /tickets/{id}             (staff: notes and category)
//   - POST  /tickets/{id}/finish|withdraw|resume
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/services"
)

//
// DTOs
//

// CreateTicketRequest is the optional JSON payload for joining a queue.
type CreateTicketRequest struct {
	Notes    string `json:"notes"`
	Category string `json:"category"`
}

// UpdateTicketRequest carries staff edits. Omitted fields are unchanged.
type UpdateTicketRequest struct {
	Notes    *string `json:"notes"`
	Category *string `json:"category"`
}

// ResetResponse reports how many tickets a reset withdrew.
type ResetResponse struct {
	DoctorID  string `json:"doctor_id"`
	Withdrawn int    `json:"withdrawn"`
}

//
// Handlers
//

// CreateTicket issues a ticket for the caller identified by X-User-ID or
// X-Session-ID. A caller who already holds an active ticket with this
// doctor today gets it back with 200 instead of 201.
//
// CreateTicket godoc
// @ID          createTicket
// @Summary     Join a doctor's queue
// @Description Issues the next ticket number of the day for the doctor. Exactly one identity header is required. An existing active ticket of the caller is returned with 200.
// @Tags        Tickets
// @Accept      json
// @Produce     json
//
// @Param       id            path    string  true   "Doctor ID"
// @Param       X-User-ID     header  string  false  "Authenticated user id (set upstream)"
// @Param       X-Session-ID  header  string  false  "Anonymous session id"
// @Param       body          body    handlers.CreateTicketRequest  false  "Notes and category"
//
// @Success     201  {object}  domain.Ticket
// @Success     200  {object}  domain.Ticket           "Existing active ticket"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     503  {object}  handlers.ErrorResponse  "Allocation failed or database unavailable"
// @Router      /doctors/{id}/tickets [post]
func (h *Handlers) CreateTicket(c *gin.Context) {
	o, okOwner := owner(c)
	if !okOwner {
		return
	}
	var req CreateTicketRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	t, created, err := h.tickets.Create(c.Request.Context(), services.CreateTicketInput{
		DoctorID: c.Param("id"),
		Owner:    o,
		Notes:    req.Notes,
		Category: req.Category,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.Header("Location", "tickets/"+t.ID)
	ok(c, status, t)
}

// CallNext godoc
// @ID          callNext
// @Summary     Call the next patient
// @Description Moves the doctor's highest-priority waiting ticket into consultation. Fails while another consultation is active.
// @Tags        Tickets
// @Produce     json
//
// @Param       id   path  string  true  "Doctor ID"
//
// @Success     200  {object}  domain.Ticket
// @Failure     404  {object}  handlers.ErrorResponse  "No waiting ticket"
// @Failure     409  {object}  handlers.ErrorResponse  "Slot occupied"
// @Failure     503  {object}  handlers.ErrorResponse  "Database unavailable"
// @Router      /doctors/{id}/call-next [post]
func (h *Handlers) CallNext(c *gin.Context) {
	t, err := h.tickets.CallNext(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// ResetQueue godoc
// @ID          resetDoctorQueue
// @Summary     Reset a doctor's queue
// @Description Withdraws every waiting ticket of the doctor. A consultation in progress is left alone.
// @Tags        Tickets
// @Produce     json
//
// @Param       id   path  string  true  "Doctor ID"
//
// @Success     200  {object}  handlers.ResetResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown doctor"
// @Failure     503  {object}  handlers.ErrorResponse  "Database unavailable"
// @Router      /doctors/{id}/reset [post]
func (h *Handlers) ResetQueue(c *gin.Context) {
	n, err := h.tickets.ResetDoctorQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, http.StatusOK, ResetResponse{DoctorID: c.Param("id"), Withdrawn: n})
}

// GetTicket godoc
// @ID          getTicket
// @Summary     Get a ticket
// @Description Returns the ticket and, while it waits, its 1-based position in the doctor's queue.
// @Tags        Tickets
// @Produce     json
//
// @Param       id   path  string  true  "Ticket ID"
//
// @Success     200  {object}  services.TicketWithPosition
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /tickets/{id} [get]
func (h *Handlers) GetTicket(c *gin.Context) {
	t, err := h.tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// UpdateTicket godoc
// @ID          updateTicket
// @Summary     Edit a ticket
// @Description Applies staff edits to notes and category and returns the rescored ticket. Omitted fields are unchanged.
// @Tags        Tickets
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                         true  "Ticket ID"
// @Param       body  body  handlers.UpdateTicketRequest  true  "Fields to change"
//
// @Success     200  {object}  domain.Ticket
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Ticket is closed"
// @Router      /tickets/{id} [patch]
func (h *Handlers) UpdateTicket(c *gin.Context) {
	var req UpdateTicketRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.tickets.Update(c.Request.Context(), c.Param("id"), services.UpdateTicketInput{
		Notes:    req.Notes,
		Category: req.Category,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// FinishTicket godoc
// @ID          finishTicket
// @Summary     Finish a consultation
// @Description Ends the consultation and frees the doctor's slot. Finishing a finished ticket is a no-op.
// @Tags        Tickets
// @Produce     json
//
// @Param       id   path  string  true  "Ticket ID"
//
// @Success     200  {object}  domain.Ticket
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid transition"
// @Router      /tickets/{id}/finish [post]
func (h *Handlers) FinishTicket(c *gin.Context) { h.transition(c, h.tickets.Finish) }

// WithdrawTicket godoc
// @ID          withdrawTicket
// @Summary     Withdraw a ticket
// @Description Takes a waiting ticket out of the queue. Its number is not reused.
// @Tags        Tickets
// @Produce     json
//
// @Param       id   path  string  true  "Ticket ID"
//
// @Success     200  {object}  domain.Ticket
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid transition"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Router      /tickets/{id}/withdraw [post]
func (h *Handlers) WithdrawTicket(c *gin.Context) { h.transition(c, h.tickets.Withdraw) }

// ResumeTicket godoc
// @ID          resumeTicket
// @Summary     Resume a withdrawn ticket
// @Description Puts a withdrawn ticket of the current day back in the queue and restarts its waiting time.
// @Tags        Tickets
// @Produce     json
//
// @Param       id   path  string  true  "Ticket ID"
//
// @Success     200  {object}  domain.Ticket
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid transition"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Router      /tickets/{id}/resume [post]
func (h *Handlers) ResumeTicket(c *gin.Context) { h.transition(c, h.tickets.Resume) }

func (h *Handlers) transition(c *gin.Context, fn func(context.Context, string) (*domain.Ticket, error)) {
	id := strings.TrimSpace(c.Param("id"))
	t, err := fn(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}
