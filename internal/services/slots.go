package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/repo"
)

// SlotManager arbitrates the single consultation slot of each doctor.
//
// TryOccupy is a check-and-set run inside the caller's transaction while the
// caller holds the doctor's lock. Across processes the partial unique index
// ux_tickets_one_in_consultation rejects a second occupant; that rejection
// is reported as "not occupied" rather than an error.
type SlotManager struct {
	Now func() time.Time
}

// TryOccupy moves ticketID from waiting to in_consultation if doctorID has
// no ticket in consultation. It returns false when the slot is taken.
func (m *SlotManager) TryOccupy(ctx context.Context, tx *gorm.DB, doctorID, ticketID string) (bool, error) {
	busy, err := repo.CountInConsultation(ctx, tx, doctorID)
	if err != nil {
		return false, err
	}
	if busy > 0 {
		return false, nil
	}

	t, err := repo.GetTicket(ctx, tx, ticketID)
	if err != nil {
		return false, err
	}
	if t.DoctorID != doctorID {
		return false, validation("ticket %s does not belong to doctor %s", ticketID, doctorID)
	}
	if t.Status != domain.StatusWaiting {
		return false, invalidTransition("ticket #%d is %s, not waiting", t.Number, t.Status)
	}

	now := m.now()
	err = repo.TransitionTicket(ctx, tx, t, domain.StatusInConsultation, map[string]any{"called_at": now})
	switch {
	case err == nil:
		return true, nil
	case repo.IsUniqueViolation(err):
		return false, nil
	case errors.Is(err, repo.ErrStale):
		return false, invalidTransition("ticket #%d changed concurrently", t.Number)
	default:
		return false, err
	}
}

// Release frees the slot by finishing the ticket holding it.
func (m *SlotManager) Release(ctx context.Context, tx *gorm.DB, t *domain.Ticket) error {
	now := m.now()
	if err := repo.TransitionTicket(ctx, tx, t, domain.StatusFinished, map[string]any{"finished_at": now}); err != nil {
		return err
	}
	t.FinishedAt = &now
	return nil
}

func (m *SlotManager) now() time.Time {
	if m != nil && m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}
