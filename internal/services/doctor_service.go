package services

import (
	"context"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/repo"
)

// doctorIDRE keeps ids URL-safe; they appear in routes.
var doctorIDRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// DoctorService manages the doctor registry.
type DoctorService struct {
	DB *gorm.DB
}

// Upsert creates or updates a doctor.
func (s *DoctorService) Upsert(ctx context.Context, id, name string, active bool) (*domain.Doctor, error) {
	id, name = strings.TrimSpace(id), normalizeName(name)
	if !doctorIDRE.MatchString(id) {
		return nil, validation("invalid doctor id %q", id)
	}
	if name == "" {
		name = id
	}
	d, err := repo.UpsertDoctor(ctx, s.DB, id, name, active)
	if err != nil {
		return nil, unavailable(err, "save doctor")
	}
	return d, nil
}

// List returns doctors ordered by name.
func (s *DoctorService) List(ctx context.Context, activeOnly bool) ([]domain.Doctor, error) {
	ds, err := repo.ListDoctors(ctx, s.DB, activeOnly)
	if err != nil {
		return nil, unavailable(err, "list doctors")
	}
	return ds, nil
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeName trims whitespace and collapses inner runs to one space.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}
