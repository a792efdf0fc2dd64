// Package events carries queue notifications out of the core. Publishing is
// fire-and-forget: the Bus buffers events and delivers them to sinks on its
// own goroutine, so a slow or failing consumer never blocks a request.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind names an outbound event.
type Kind string

const (
	TicketCreated       Kind = "ticket.created"
	TicketCalled        Kind = "ticket.called"
	TicketFinished      Kind = "ticket.finished"
	TicketWithdrawn     Kind = "ticket.withdrawn"
	TicketResumed       Kind = "ticket.resumed"
	QueueReset          Kind = "queue.reset"
	AssessmentCompleted Kind = "assessment.completed"
)

// Event is the wire shape shared by every sink. Fields that do not apply to
// a Kind are left zero and omitted when encoded.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`

	DoctorID string `json:"doctor_id,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
	Number   int    `json:"number,omitempty"`
	// Count is the number of tickets affected by a bulk operation.
	Count int `json:"count,omitempty"`

	ConversationID    string `json:"conversation_id,omitempty"`
	UrgencyLevel      int    `json:"urgency_level,omitempty"`
	RecommendedAction string `json:"recommended_action,omitempty"`
	Degraded          bool   `json:"degraded,omitempty"`
}

// New stamps a fresh id and time on an event of kind k.
func New(k Kind, now time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: k, OccurredAt: now.UTC()}
}
