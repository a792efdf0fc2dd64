// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the persisted per-doctor, per-day ticket
// counter.
//
// NextTicketNumber is an atomic increment on the ticket_sequences row: the
// row is inserted with 0 when absent (ON CONFLICT DO NOTHING) and then
// bumped with "last_number = last_number + 1". The UPDATE takes the row
// lock, so concurrent transactions for the same (doctor, day) serialize on
// it and never read the same value. Call it inside the transaction that
// inserts the ticket so an aborted creation rolls the number back.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-clinic-queue/internal/domain"
)

// NextTicketNumber increments and returns the counter for (doctorID, day).
// Numbers start at 1 for every new day.
func NextTicketNumber(ctx context.Context, db *gorm.DB, doctorID, day string) (int, error) {
	now := time.Now().UTC()
	tx := db.WithContext(ctx)

	seed := &domain.TicketSequence{DoctorID: doctorID, Day: day, LastNumber: 0, UpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return 0, err
	}

	res := tx.Model(&domain.TicketSequence{}).
		Where("doctor_id = ? AND day = ?", doctorID, day).
		Updates(map[string]any{
			"last_number": gorm.Expr("last_number + 1"),
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	var seq domain.TicketSequence
	if err := tx.Where("doctor_id = ? AND day = ?", doctorID, day).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastNumber, nil
}

// CurrentTicketNumber returns the last issued number for (doctorID, day),
// or 0 if none was issued yet.
func CurrentTicketNumber(ctx context.Context, db *gorm.DB, doctorID, day string) (int, error) {
	var seq domain.TicketSequence
	err := db.WithContext(ctx).Where("doctor_id = ? AND day = ?", doctorID, day).First(&seq).Error
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return seq.LastNumber, nil
}
