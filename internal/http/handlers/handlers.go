// Package handlers exposes the queue engine over HTTP.
//
// Handlers are transport-thin: they parse path, query, headers and JSON
// bodies, call the application services, and translate results or
// classified errors into responses. No business rule lives here.
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/queueview"
	"github.com/tbourn/go-clinic-queue/internal/services"
	"github.com/tbourn/go-clinic-queue/internal/urgency"
)

//
// Service contracts (context-aware)
//

// TicketService is the ticket lifecycle and queue read side.
//
// Implementations must be safe for concurrent use and return
// *services.Error for every rejected operation.
type TicketService interface {
	Create(ctx context.Context, in services.CreateTicketInput) (*domain.Ticket, bool, error)
	CallNext(ctx context.Context, doctorID string) (*domain.Ticket, error)
	Finish(ctx context.Context, ticketID string) (*domain.Ticket, error)
	Withdraw(ctx context.Context, ticketID string) (*domain.Ticket, error)
	Resume(ctx context.Context, ticketID string) (*domain.Ticket, error)
	Update(ctx context.Context, ticketID string, in services.UpdateTicketInput) (*domain.Ticket, error)
	ResetDoctorQueue(ctx context.Context, doctorID string) (int, error)
	Get(ctx context.Context, ticketID string) (*services.TicketWithPosition, error)
	ListQueue(ctx context.Context, q services.QueueQuery) (queueview.View, error)
	QueueVersion(ctx context.Context, doctorID string) (int64, *time.Time, error)
}

// AssessmentService runs the guided urgency intake.
type AssessmentService interface {
	Start(ctx context.Context, patientRef string, ticketID *string) (*services.AssessmentView, error)
	Submit(ctx context.Context, conversationID string, a urgency.Answer) (*services.AssessmentView, error)
	Get(ctx context.Context, conversationID string) (*services.AssessmentView, error)
}

// DoctorService manages the doctor registry.
type DoctorService interface {
	Upsert(ctx context.Context, id, name string, active bool) (*domain.Doctor, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Doctor, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for tickets, queues, assessments and
// doctors.
type Handlers struct {
	tickets     TicketService
	assessments AssessmentService
	doctors     DoctorService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(tickets TicketService, assessments AssessmentService, doctors DoctorService) *Handlers {
	return &Handlers{tickets: tickets, assessments: assessments, doctors: doctors}
}
