package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/repo"
)

// SequenceAllocator issues per-doctor, per-day ticket numbers from the
// persisted counter row. Next runs inside the caller's transaction so an
// aborted creation releases the number; Retry re-runs that whole
// transaction on storage failures.
type SequenceAllocator struct {
	// MaxTries bounds attempts per creation (>= 1).
	MaxTries uint
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
}

// NewSequenceAllocator returns an allocator allowing maxTries attempts.
func NewSequenceAllocator(maxTries int) *SequenceAllocator {
	if maxTries < 1 {
		maxTries = 1
	}
	return &SequenceAllocator{MaxTries: uint(maxTries), InitialInterval: 20 * time.Millisecond}
}

// Next increments and returns the counter for (doctorID, day) using tx.
func (a *SequenceAllocator) Next(ctx context.Context, tx *gorm.DB, doctorID, day string) (int, error) {
	return repo.NextTicketNumber(ctx, tx, doctorID, day)
}

// Retry runs op until it succeeds, returns a classified or context error,
// or the attempt budget is spent. Exhaustion surfaces as AllocationFailed;
// unique violations on the ticket number are retried like any storage error.
func (a *SequenceAllocator) Retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if a.InitialInterval > 0 {
		b.InitialInterval = a.InitialInterval
	}
	b.MaxInterval = time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op()
		switch {
		case err == nil:
			return struct{}{}, nil
		case KindOf(err) != "", errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return struct{}{}, backoff.Permanent(err)
		}
		logger(ctx).Warn().Err(err).Int("attempt", attempt).Msg("ticket allocation attempt failed")
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(a.tries()),
	)
	if err == nil {
		return nil
	}
	if KindOf(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	allocationFailures.Inc()
	return newErr(KindAllocationFailed, err, "ticket number allocation failed after %d attempts", attempt)
}

func (a *SequenceAllocator) tries() uint {
	if a.MaxTries < 1 {
		return 1
	}
	return a.MaxTries
}
