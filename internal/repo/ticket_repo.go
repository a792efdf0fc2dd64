// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Ticket
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. State changes go through
// TransitionTicket, a conditional UPDATE guarded by the expected status and
// version; a mismatch surfaces as ErrStale and the row is left unchanged.
package repo

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/domain"
)

// TicketFilter narrows ListTickets. Zero values mean "all".
type TicketFilter struct {
	DoctorID string
	Statuses []domain.TicketStatus
}

// CreateTicket inserts t as-is. The caller sets ID, number and owner.
func CreateTicket(ctx context.Context, db *gorm.DB, t *domain.Ticket) error {
	return db.WithContext(ctx).Create(t).Error
}

// GetTicket fetches a ticket by ID, or ErrNotFound.
func GetTicket(ctx context.Context, db *gorm.DB, id string) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// FindActiveTicketForOwner returns the owner's waiting or in_consultation
// ticket with doctorID on day, ignoring excludeID. ErrNotFound if none.
func FindActiveTicketForOwner(ctx context.Context, db *gorm.DB, doctorID, day string, owner domain.Owner, excludeID string) (*domain.Ticket, error) {
	q := db.WithContext(ctx).
		Where("doctor_id = ? AND day = ? AND status IN ?", doctorID, day,
			[]domain.TicketStatus{domain.StatusWaiting, domain.StatusInConsultation})
	if owner.UserID != "" {
		q = q.Where("user_id = ?", owner.UserID)
	} else {
		q = q.Where("session_id = ?", owner.SessionID)
	}
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var t domain.Ticket
	if err := q.Order("created_at ASC").First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// NextWaitingTicket returns the doctor's best waiting ticket: highest
// priority score, then oldest creation, then lowest ID.
func NextWaitingTicket(ctx context.Context, db *gorm.DB, doctorID string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := db.WithContext(ctx).
		Where("doctor_id = ? AND status = ?", doctorID, domain.StatusWaiting).
		Order("priority_score DESC, created_at ASC, id ASC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountInConsultation returns how many of the doctor's tickets hold the slot.
func CountInConsultation(ctx context.Context, db *gorm.DB, doctorID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("doctor_id = ? AND status = ?", doctorID, domain.StatusInConsultation).
		Count(&n).Error
	return n, err
}

// TransitionTicket moves t to status `to` only if the stored row still has
// t.Status and t.Version. extra columns are written in the same statement.
// On success t is updated in memory.
func TransitionTicket(ctx context.Context, db *gorm.DB, t *domain.Ticket, to domain.TicketStatus, extra map[string]any) error {
	now := time.Now().UTC()
	cols := map[string]any{
		"status":     to,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}
	for k, v := range extra {
		cols[k] = v
	}
	res := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("id = ? AND status = ? AND version = ?", t.ID, t.Status, t.Version).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	t.Status = to
	t.Version++
	t.UpdatedAt = now
	return nil
}

// UpdateTicketDetails changes staff-owned fields. Nil arguments are left
// untouched. Returns ErrNotFound if the ticket does not exist.
func UpdateTicketDetails(ctx context.Context, db *gorm.DB, id string, notes *string, category *domain.Category) error {
	cols := map[string]any{"updated_at": time.Now().UTC()}
	if notes != nil {
		cols["notes"] = *notes
	}
	if category != nil {
		cols["category"] = *category
	}
	res := db.WithContext(ctx).Model(&domain.Ticket{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTicketPriority stores a recomputed score. It does not bump the
// version: scores are advisory and never race a state change.
func UpdateTicketPriority(ctx context.Context, db *gorm.DB, id string, score float64, factors datatypes.JSON, at time.Time) error {
	res := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"priority_score":       score,
			"priority_factors":     factors,
			"last_priority_update": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTickets returns tickets matching f ordered by creation time.
// Queue ordering is applied by the queueview package.
func ListTickets(ctx context.Context, db *gorm.DB, f TicketFilter) ([]domain.Ticket, error) {
	q := db.WithContext(ctx).Model(&domain.Ticket{})
	if f.DoctorID != "" {
		q = q.Where("doctor_id = ?", f.DoctorID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	var out []domain.Ticket
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// ListActiveTickets returns every waiting or in_consultation ticket.
func ListActiveTickets(ctx context.Context, db *gorm.DB) ([]domain.Ticket, error) {
	return ListTickets(ctx, db, TicketFilter{
		Statuses: []domain.TicketStatus{domain.StatusWaiting, domain.StatusInConsultation},
	})
}

// WithdrawWaitingTickets logically withdraws the listed waiting tickets of a
// doctor and returns the number of rows changed.
func WithdrawWaitingTickets(ctx context.Context, db *gorm.DB, doctorID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("doctor_id = ? AND status = ? AND id IN ?", doctorID, domain.StatusWaiting, ids).
		Updates(map[string]any{
			"status":     domain.StatusWithdrawn,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// WaitingPosition returns the 1-based queue position of a waiting ticket,
// consistent with NextWaitingTicket ordering.
func WaitingPosition(ctx context.Context, db *gorm.DB, t *domain.Ticket) (int, error) {
	var ahead int64
	err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("doctor_id = ? AND status = ? AND id <> ?", t.DoctorID, domain.StatusWaiting, t.ID).
		Where(db.Where("priority_score > ?", t.PriorityScore).
			Or("priority_score = ? AND created_at < ?", t.PriorityScore, t.CreatedAt).
			Or("priority_score = ? AND created_at = ? AND id < ?", t.PriorityScore, t.CreatedAt, t.ID)).
		Count(&ahead).Error
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

// ListActiveTicketsForOwner returns the waiting or in_consultation tickets
// held by ownerRef, matched against either owner column.
func ListActiveTicketsForOwner(ctx context.Context, db *gorm.DB, ownerRef string) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := db.WithContext(ctx).
		Where("status IN ?", []domain.TicketStatus{domain.StatusWaiting, domain.StatusInConsultation}).
		Where(db.Where("user_id = ?", ownerRef).Or("session_id = ?", ownerRef)).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
