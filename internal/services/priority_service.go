// Package services – PriorityService
//
// PriorityService gathers the inputs of the priority scorer for one ticket
// (category, wait baseline, notes, and the linked or latest conversation of
// its owner) and persists the result. It runs on ticket creation, on staff
// updates, after every assessment answer, and from the periodic sweep.
//
// Scores are eventually consistent: a failure for one ticket is logged and
// counted, and that ticket keeps its last stored score.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/priority"
	"github.com/tbourn/go-clinic-queue/internal/repo"
	"github.com/tbourn/go-clinic-queue/internal/urgency"
)

// PriorityService computes and stores ticket priority scores.
type PriorityService struct {
	DB     *gorm.DB
	Scorer *priority.Scorer
	Now    func() time.Time
}

// NewPriorityService wires a service with the wall clock.
func NewPriorityService(db *gorm.DB, scorer *priority.Scorer) *PriorityService {
	return &PriorityService{DB: db, Scorer: scorer}
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Scanned  int           `json:"scanned"`
	Updated  int           `json:"updated"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

func (p *PriorityService) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// Compute scores t at now, reading conversation data through db (which may
// be a transaction).
func (p *PriorityService) Compute(ctx context.Context, db *gorm.DB, t *domain.Ticket, now time.Time) (float64, domain.PriorityFactors, error) {
	in, err := p.input(ctx, db, t)
	if err != nil {
		return 0, domain.PriorityFactors{}, err
	}
	score, f := p.Scorer.Score(in, now)
	return score, f, nil
}

func (p *PriorityService) input(ctx context.Context, db *gorm.DB, t *domain.Ticket) (priority.Input, error) {
	in := priority.Input{Category: t.Category, WaitSince: t.WaitSince, Notes: t.Notes}
	if in.WaitSince.IsZero() {
		in.WaitSince = t.CreatedAt
	}

	conv, err := repo.FindConversationForTicket(ctx, db, t.ID, t.Owner().Ref())
	if errors.Is(err, repo.ErrNotFound) {
		return in, nil
	}
	if err != nil {
		return in, err
	}

	// Activity follows the newest intake; the verdict and medical context
	// come from the newest one that reached an assessment.
	c := &priority.Conversation{StartedAt: conv.CreatedAt}
	assessed := conv
	a, ok, err := conv.GetAssessment()
	if err != nil {
		return in, err
	}
	if !ok {
		prev, err := repo.FindAssessedConversationForTicket(ctx, db, t.ID, t.Owner().Ref())
		switch {
		case err == nil:
			assessed = prev
			if a, ok, err = prev.GetAssessment(); err != nil {
				return in, err
			}
		case !errors.Is(err, repo.ErrNotFound):
			return in, err
		}
	}
	if ok {
		c.Assessment = &a
	}
	if len(assessed.State) > 0 {
		var st urgency.State
		if err := json.Unmarshal(assessed.State, &st); err != nil {
			return in, err
		}
		c.MedicalContext = st.Context
	}
	msgs, err := repo.ListConversationMessages(ctx, db, conv.ID, domain.SenderPatient, time.Time{})
	if err != nil {
		return in, err
	}
	for _, m := range msgs {
		c.PatientMessages = append(c.PatientMessages, priority.Message{At: m.CreatedAt, Text: m.Content})
	}
	in.Conversation = c
	return in, nil
}

// Recompute rescores one active ticket and stores the result. Finished and
// withdrawn tickets are returned unchanged.
func (p *PriorityService) Recompute(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	tr := otel.Tracer("services/PriorityService")
	ctx, span := tr.Start(ctx, "Recompute",
		trace.WithAttributes(attribute.String("ticket.id", ticketID)),
	)
	defer span.End()

	t, err := repo.GetTicket(ctx, p.DB, ticketID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("ticket %s not found", ticketID)
	}
	if err != nil {
		return nil, unavailable(err, "load ticket")
	}
	if err := p.store(ctx, t); err != nil {
		return nil, unavailable(err, "recompute priority")
	}
	return t, nil
}

func (p *PriorityService) store(ctx context.Context, t *domain.Ticket) error {
	if !t.Status.Active() {
		return nil
	}
	now := p.now()
	score, f, err := p.Compute(ctx, p.DB, t, now)
	if err != nil {
		return err
	}
	if err := t.SetPriority(score, f); err != nil {
		return err
	}
	if err := repo.UpdateTicketPriority(ctx, p.DB, t.ID, score, t.PriorityFactors, now); err != nil {
		return err
	}
	t.LastPriorityUpdate = &now
	return nil
}

// RecomputeForOwner rescores the tickets an assessment can influence: the
// linked ticket when ticketRef is set, else every active ticket of ownerRef.
// Failures are logged per ticket.
func (p *PriorityService) RecomputeForOwner(ctx context.Context, ownerRef string, ticketRef *string) int {
	var ids []string
	if ticketRef != nil && *ticketRef != "" {
		ids = []string{*ticketRef}
	} else {
		ts, err := repo.ListActiveTicketsForOwner(ctx, p.DB, ownerRef)
		if err != nil {
			priorityRecomputeFailures.Inc()
			logger(ctx).Warn().Err(err).Str("owner", ownerRef).Msg("list owner tickets for recompute failed")
			return 0
		}
		for _, t := range ts {
			ids = append(ids, t.ID)
		}
	}
	n := 0
	for _, id := range ids {
		if _, err := p.Recompute(ctx, id); err != nil {
			priorityRecomputeFailures.Inc()
			logger(ctx).Warn().Err(err).Str("ticket_id", id).Msg("priority recompute failed")
			continue
		}
		n++
	}
	return n
}

// Sweep rescores every active ticket. It only fails if the ticket list
// cannot be read; per-ticket errors are counted in the report.
func (p *PriorityService) Sweep(ctx context.Context) (rep SweepReport, err error) {
	tr := otel.Tracer("services/PriorityService")
	ctx, span := tr.Start(ctx, "Sweep")
	defer span.End()

	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		sweepDuration.Observe(rep.Duration.Seconds())
		span.SetAttributes(
			attribute.Int("sweep.scanned", rep.Scanned),
			attribute.Int("sweep.failed", rep.Failed),
		)
	}()

	ts, err := repo.ListActiveTickets(ctx, p.DB)
	if err != nil {
		return rep, unavailable(err, "list active tickets")
	}
	for i := range ts {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Scanned++
		if err := p.store(ctx, &ts[i]); err != nil {
			rep.Failed++
			priorityRecomputeFailures.Inc()
			logger(ctx).Warn().Err(err).Str("ticket_id", ts[i].ID).Msg("sweep: priority recompute failed")
			continue
		}
		rep.Updated++
	}
	p.observeDepth(ctx)
	return rep, nil
}

// observeDepth refreshes the per-status ticket gauge.
func (p *PriorityService) observeDepth(ctx context.Context) {
	counts, err := repo.StatusCounts(ctx, p.DB, "")
	if err != nil {
		logger(ctx).Warn().Err(err).Msg("sweep: status counts failed")
		return
	}
	for s, n := range counts {
		ticketsByStatus.WithLabelValues(string(s)).Set(float64(n))
	}
}
