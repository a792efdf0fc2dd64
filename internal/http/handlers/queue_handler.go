// Queue HTTP handlers.
//
// This file exposes the read side:
//   - GET /queue?doctor_id=&status=&history=   (ordered view, ETag support)
//   - GET /doctors                             (doctor registry)
//   - PUT /doctors/{id}                        (staff: create or update a doctor)
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/services"
	"github.com/tbourn/go-clinic-queue/internal/utils"
)

const (
	defaultHistory = 20
	maxHistory     = 200
)

// UpsertDoctorRequest is the JSON payload for PUT /doctors/{id}.
type UpsertDoctorRequest struct {
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

// ListDoctorsResponse wraps the doctor registry.
type ListDoctorsResponse struct {
	Doctors []domain.Doctor `json:"doctors"`
}

// ListQueue returns the ordered queue for one doctor or for all doctors.
//
// Query:
//   - doctor_id: optional doctor filter
//   - status:    optional comma-separated status set (waiting,in_consultation,…)
//   - history:   max finished/withdrawn rows (default 20, max 200, 0 = uncapped)
//
// A weak ETag derived from the row count and latest change allows clients
// to poll with If-None-Match and receive 304 while nothing moved.
//
// ListQueue godoc
// @ID          listQueue
// @Summary     Ordered queue view
// @Description Consultations first, then waiting tickets by priority score, then recent history. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Queue
// @Produce     json
//
// @Param       doctor_id      query   string  false  "Doctor filter"
// @Param       status         query   string  false  "Comma-separated statuses"  example(waiting,in_consultation)
// @Param       history        query   int     false  "Finished/withdrawn rows (default 20, max 200, 0 = all)"
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
//
// @Success     200  {object}  queueview.View
// @Success     304  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid status filter"
// @Failure     503  {object}  handlers.ErrorResponse  "Database unavailable"
// @Router      /queue [get]
func (h *Handlers) ListQueue(c *gin.Context) {
	ctx := c.Request.Context()
	doctorID := strings.TrimSpace(c.Query("doctor_id"))

	statuses, err := domain.ParseStatuses(c.Query("status"))
	if err != nil {
		fail(c, http.StatusBadRequest, string(services.KindValidation), err.Error())
		return
	}
	history := utils.BoundedInt(c.Query("history"), defaultHistory, maxHistory)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.tickets.QueueVersion(ctx, doctorID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		scope := doctorID
		if scope == "" {
			scope = "*"
		}
		etag := fmt.Sprintf(`W/"queue:%s:%d:%d"`, scope, count, ts)
		c.Header("ETag", etag)
		c.Header("Cache-Control", "no-cache")
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	v, err := h.tickets.ListQueue(ctx, services.QueueQuery{
		DoctorID:     doctorID,
		Statuses:     statuses,
		HistoryLimit: history,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// ListDoctors returns the registry; ?active=true keeps accepting doctors only.
//
// ListDoctors godoc
// @ID          listDoctors
// @Summary     List doctors
// @Tags        Doctors
// @Produce     json
//
// @Param       active  query  bool  false  "Only doctors accepting patients"
//
// @Success     200  {object}  handlers.ListDoctorsResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Database unavailable"
// @Router      /doctors [get]
func (h *Handlers) ListDoctors(c *gin.Context) {
	activeOnly := strings.EqualFold(c.Query("active"), "true")
	ds, err := h.doctors.List(c.Request.Context(), activeOnly)
	if err != nil {
		writeErr(c, err)
		return
	}
	if ds == nil {
		ds = []domain.Doctor{}
	}
	ok(c, http.StatusOK, ListDoctorsResponse{Doctors: ds})
}

// UpsertDoctor godoc
// @ID          upsertDoctor
// @Summary     Create or update a doctor
// @Description Active defaults to true. Inactive doctors keep their queue but accept no new tickets.
// @Tags        Doctors
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                        true   "Doctor ID"
// @Param       body  body  handlers.UpsertDoctorRequest  false  "Name and active flag"
//
// @Success     200  {object}  domain.Doctor
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Router      /doctors/{id} [put]
func (h *Handlers) UpsertDoctor(c *gin.Context) {
	var req UpsertDoctorRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	d, err := h.doctors.Upsert(c.Request.Context(), c.Param("id"), req.Name, active)
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}
