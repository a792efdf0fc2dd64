// Package domain defines the persistence models for doctors, queue tickets,
// ticket sequences and urgency-assessment conversations. These types are
// mapped with GORM and form the core data layer of the clinic queue.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Doctor is a practitioner that patients can queue for. Only active doctors
// accept new tickets.
type Doctor struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	Active    bool      `json:"active"     gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Doctor.
func (Doctor) TableName() string { return "doctors" }

// Ticket represents one patient's place in a specific doctor's queue.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Number: display number, unique per (DoctorID, Day).
//   - Day: calendar day in the clinic time zone (YYYY-MM-DD).
//   - Status: see TicketStatus; transitions go through Transition.
//   - UserID / SessionID: the owner; exactly one is set and never updated.
//   - Category: patient category used by the priority scorer.
//   - PriorityScore / PriorityFactors / LastPriorityUpdate: last computed ranking.
//   - WaitSince: baseline of the waiting-time factor (reset on resume).
//   - Version: bumped on every state change, guards conditional updates.
//
// At most one ticket per doctor may be in_consultation; the partial unique
// index ux_tickets_one_in_consultation is created by repo.AutoMigrate.
type Ticket struct {
	ID       string       `json:"id"        gorm:"type:char(36);primaryKey"`
	Number   int          `json:"number"    gorm:"not null;uniqueIndex:ux_tickets_doctor_day_number,priority:3"`
	DoctorID string       `json:"doctor_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_tickets_doctor_day_number,priority:1;index:idx_tickets_doctor_status,priority:1"`
	Day      string       `json:"day"       gorm:"type:char(10);not null;uniqueIndex:ux_tickets_doctor_day_number,priority:2"`
	Status   TicketStatus `json:"status"    gorm:"type:varchar(20);not null;default:'waiting';index:idx_tickets_doctor_status,priority:2;check:status IN ('waiting','in_consultation','finished','withdrawn')"`

	UserID    *string `json:"user_id,omitempty"    gorm:"type:varchar(64);index"`
	SessionID *string `json:"session_id,omitempty" gorm:"type:varchar(64);index;check:(user_id IS NULL) <> (session_id IS NULL)"`

	Notes    string   `json:"notes"    gorm:"type:text;not null;default:''"`
	Category Category `json:"category" gorm:"type:varchar(16);not null;default:'regular';check:category IN ('emergency','priority','regular','followup')"`

	PriorityScore      float64        `json:"priority_score"   gorm:"not null;default:0"`
	PriorityFactors    datatypes.JSON `json:"priority_factors" gorm:"type:json"`
	LastPriorityUpdate *time.Time     `json:"last_priority_update,omitempty"`

	WaitSince  time.Time  `json:"wait_since"`
	CalledAt   *time.Time `json:"called_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Version    int        `json:"-"          gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Ticket.
func (Ticket) TableName() string { return "tickets" }

// Owner returns the ticket owner reference (user id or session id).
func (t Ticket) Owner() Owner {
	var o Owner
	if t.UserID != nil {
		o.UserID = *t.UserID
	}
	if t.SessionID != nil {
		o.SessionID = *t.SessionID
	}
	return o
}

// TicketSequence is the persisted per-doctor, per-day ticket counter.
type TicketSequence struct {
	DoctorID   string `gorm:"type:varchar(64);primaryKey"`
	Day        string `gorm:"type:char(10);primaryKey"`
	LastNumber int    `gorm:"not null;default:0"`
	UpdatedAt  time.Time
}

// TableName returns the database table name for TicketSequence.
func (TicketSequence) TableName() string { return "ticket_sequences" }

// Conversation is one urgency-assessment dialogue tied to a patient and,
// optionally, to a ticket. State holds the decision-tree progress and
// Assessment the verdict once Status is completed.
type Conversation struct {
	ID           string             `json:"id"            gorm:"type:char(36);primaryKey"`
	PatientRef   string             `json:"patient_ref"   gorm:"type:varchar(64);not null;index:idx_conversations_patient,priority:1"`
	TicketRef    *string            `json:"ticket_ref,omitempty" gorm:"type:char(36);index"`
	Status       ConversationStatus `json:"status"        gorm:"type:varchar(16);not null;default:'pending';index:idx_conversations_patient,priority:2;check:status IN ('pending','in_progress','completed')"`
	UrgencyLevel int                `json:"urgency_level" gorm:"not null;default:0"`
	Step         string             `json:"step"          gorm:"type:varchar(32);not null"`
	State        datatypes.JSON     `json:"-"             gorm:"type:json"`
	Assessment   datatypes.JSON     `json:"assessment,omitempty" gorm:"type:json"`
	Degraded     bool               `json:"degraded"      gorm:"not null;default:false"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMessageAt time.Time  `json:"last_message_at"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// ConversationMessage is a single exchange within a conversation. Patient
// messages carry the structured answer that drove the decision tree.
type ConversationMessage struct {
	ID               string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID   string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	Sender           Sender         `json:"sender"          gorm:"type:varchar(16);not null;check:sender IN ('patient','assistant','staff')"`
	Content          string         `json:"content"         gorm:"type:text;not null"`
	StructuredAnswer datatypes.JSON `json:"structured_answer,omitempty" gorm:"type:json"`
	CreatedAt        time.Time      `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`

	// Conversation is the parent dialogue. Messages are cascade-deleted
	// with it.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationMessage.
func (ConversationMessage) TableName() string { return "conversation_messages" }
