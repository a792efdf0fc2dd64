// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Doctor
// model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-clinic-queue/internal/domain"
)

// UpsertDoctor creates the doctor or updates its name and active flag.
func UpsertDoctor(ctx context.Context, db *gorm.DB, id, name string, active bool) (*domain.Doctor, error) {
	now := time.Now().UTC()
	d := &domain.Doctor{ID: id, Name: name, Active: active, CreatedAt: now, UpdatedAt: now}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "active", "updated_at"}),
		}).
		Create(d).Error
	if err != nil {
		return nil, err
	}
	return GetDoctor(ctx, db, id)
}

// GetDoctor fetches a doctor by ID, or ErrNotFound.
func GetDoctor(ctx context.Context, db *gorm.DB, id string) (*domain.Doctor, error) {
	var d domain.Doctor
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDoctors returns all doctors ordered by name. activeOnly hides
// inactive ones.
func ListDoctors(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Doctor, error) {
	q := db.WithContext(ctx).Model(&domain.Doctor{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []domain.Doctor
	err := q.Order("name ASC, id ASC").Find(&out).Error
	return out, err
}
