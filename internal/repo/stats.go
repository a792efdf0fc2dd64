// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) on the queue endpoint and for the
// status summary.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/domain"
)

// QueueStats returns the number of tickets visible for doctorID ("" means
// all doctors) and the greatest UpdatedAt/LastPriorityUpdate among them.
// When there are no tickets, count is 0 and maxUpdatedAt is nil.
func QueueStats(ctx context.Context, db *gorm.DB, doctorID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Ticket{})
	if doctorID != "" {
		q = q.Where("doctor_id = ?", doctorID)
	}

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest timestamps (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	latest := row.UpdatedAt

	var prow struct {
		LastPriorityUpdate *time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("last_priority_update").
		Where("last_priority_update IS NOT NULL").
		Order("last_priority_update DESC").Limit(1).Scan(&prow).Error; err != nil {
		return 0, nil, err
	}
	if prow.LastPriorityUpdate != nil && prow.LastPriorityUpdate.After(latest) {
		latest = *prow.LastPriorityUpdate
	}
	return count, &latest, nil
}

// StatusCounts returns how many tickets sit in each status for doctorID
// ("" means all doctors).
func StatusCounts(ctx context.Context, db *gorm.DB, doctorID string) (map[domain.TicketStatus]int64, error) {
	q := db.WithContext(ctx).Model(&domain.Ticket{}).Select("status, COUNT(*) AS n").Group("status")
	if doctorID != "" {
		q = q.Where("doctor_id = ?", doctorID)
	}
	var rows []struct {
		Status domain.TicketStatus
		N      int64
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[domain.TicketStatus]int64, len(domain.AllStatuses))
	for _, s := range domain.AllStatuses {
		out[s] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
