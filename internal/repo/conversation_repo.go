// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for assessment
// conversations and their messages.
//
// Error semantics:
//   - Missing rows surface as ErrNotFound.
//   - Other DB errors are propagated unchanged.
//
// Ticket and Conversation are linked by a soft reference (ticket_ref), not a
// foreign key, so FindConversationForTicket falls back to the patient's most
// recent conversation when none is linked explicitly.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/domain"
)

// CreateConversation inserts c, assigning an ID and timestamps when unset.
func CreateConversation(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastMessageAt.IsZero() {
		c.LastMessageAt = c.CreatedAt
	}
	return db.WithContext(ctx).Create(c).Error
}

// GetConversation fetches a conversation by ID, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindActiveConversation returns the patient's non-completed, non-archived
// conversation, or ErrNotFound.
func FindActiveConversation(ctx context.Context, db *gorm.DB, patientRef string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("patient_ref = ? AND status <> ? AND archived_at IS NULL", patientRef, domain.ConversationCompleted).
		Order("created_at DESC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindConversationForTicket returns the latest conversation linked to the
// ticket, else the owner's latest conversation, else ErrNotFound.
func FindConversationForTicket(ctx context.Context, db *gorm.DB, ticketID, ownerRef string) (*domain.Conversation, error) {
	return findForTicket(ctx, db, ticketID, ownerRef, false)
}

// FindAssessedConversationForTicket is FindConversationForTicket restricted
// to conversations that carry an assessment, so a newer intake that is still
// open never hides an earlier verdict.
func FindAssessedConversationForTicket(ctx context.Context, db *gorm.DB, ticketID, ownerRef string) (*domain.Conversation, error) {
	return findForTicket(ctx, db, ticketID, ownerRef, true)
}

func findForTicket(ctx context.Context, db *gorm.DB, ticketID, ownerRef string, assessed bool) (*domain.Conversation, error) {
	latest := func(col, val string) (*domain.Conversation, error) {
		q := db.WithContext(ctx).Where(col+" = ? AND archived_at IS NULL", val)
		if assessed {
			q = q.Where("assessment IS NOT NULL")
		}
		var c domain.Conversation
		if err := q.Order("created_at DESC").First(&c).Error; err != nil {
			return nil, err
		}
		return &c, nil
	}
	c, err := latest("ticket_ref", ticketID)
	if err == nil || !errors.Is(err, ErrNotFound) || ownerRef == "" {
		return c, err
	}
	return latest("patient_ref", ownerRef)
}

// SaveConversationProgress persists the engine progress of c.
func SaveConversationProgress(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", c.ID).
		Updates(map[string]any{
			"status":          c.Status,
			"urgency_level":   c.UrgencyLevel,
			"step":            c.Step,
			"state":           c.State,
			"assessment":      c.Assessment,
			"degraded":        c.Degraded,
			"last_message_at": c.LastMessageAt,
			"updated_at":      c.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveConversation stamps archived_at. Archived conversations are kept
// but ignored by lookups.
func ArchiveConversation(ctx context.Context, db *gorm.DB, id string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ? AND archived_at IS NULL", id).
		Updates(map[string]any{"archived_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddConversationMessage appends a message to a conversation.
func AddConversationMessage(ctx context.Context, db *gorm.DB, convID string, sender domain.Sender, content string, answer datatypes.JSON) (*domain.ConversationMessage, error) {
	m := &domain.ConversationMessage{
		ID:               uuid.NewString(),
		ConversationID:   convID,
		Sender:           sender,
		Content:          content,
		StructuredAnswer: answer,
		CreatedAt:        time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListConversationMessages returns messages ordered (CreatedAt ASC, ID ASC).
// A non-zero since keeps only messages at or after it; an empty sender
// keeps all senders.
func ListConversationMessages(ctx context.Context, db *gorm.DB, convID string, sender domain.Sender, since time.Time) ([]domain.ConversationMessage, error) {
	q := db.WithContext(ctx).Where("conversation_id = ?", convID)
	if sender != "" {
		q = q.Where("sender = ?", sender)
	}
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	var out []domain.ConversationMessage
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}
