// Package services – TicketService
//
// TicketService owns the ticket lifecycle: creation with per-day numbering,
// call-next through the consultation slot, finish, withdraw, resume, staff
// edits, bulk reset and the read side (single ticket with position, queue
// view).
//
// Every mutation of a doctor's tickets runs under that doctor's lock and
// inside one transaction, and state changes are conditional updates on the
// expected status and version. Re-issuing a transition against a ticket that
// already sits in the target state succeeds without changes.
//
// Observability: public methods are OpenTelemetry-instrumented with the
// doctor and ticket identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/events"
	"github.com/tbourn/go-clinic-queue/internal/queueview"
	"github.com/tbourn/go-clinic-queue/internal/repo"
)

// TicketService coordinates ticket persistence, numbering and slots.
type TicketService struct {
	DB        *gorm.DB
	Allocator *SequenceAllocator
	Slots     *SlotManager
	Priority  *PriorityService
	Events    events.Publisher

	// Location defines the calendar day used for numbering.
	Location *time.Location
	// MaxNotesRunes caps staff notes (0 = unlimited).
	MaxNotesRunes int
	Now           func() time.Time

	locks *keyedMutex
}

// NewTicketService constructs a TicketService. A nil publisher discards
// events and a nil location means UTC.
func NewTicketService(db *gorm.DB, alloc *SequenceAllocator, prio *PriorityService, pub events.Publisher, loc *time.Location) *TicketService {
	if pub == nil {
		pub = events.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if alloc == nil {
		alloc = NewSequenceAllocator(1)
	}
	s := &TicketService{
		DB:            db,
		Allocator:     alloc,
		Priority:      prio,
		Events:        pub,
		Location:      loc,
		MaxNotesRunes: 2000,
		locks:         newKeyedMutex(),
	}
	s.Slots = &SlotManager{Now: s.now}
	return s
}

// CreateTicketInput is the request to join a doctor's queue.
type CreateTicketInput struct {
	DoctorID string
	Owner    domain.Owner
	Notes    string
	Category string
}

// UpdateTicketInput carries staff edits. Nil fields are left unchanged.
type UpdateTicketInput struct {
	Notes    *string
	Category *string
}

// TicketWithPosition is a ticket plus its 1-based waiting position (0 when
// not waiting).
type TicketWithPosition struct {
	domain.Ticket
	Position int `json:"position,omitempty"`
}

// QueueQuery selects a queue view.
type QueueQuery struct {
	DoctorID     string
	Statuses     []domain.TicketStatus
	HistoryLimit int
}

func (s *TicketService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Day returns the clinic calendar day of t.
func (s *TicketService) Day(t time.Time) string {
	return t.In(s.Location).Format("2006-01-02")
}

func (s *TicketService) tracer(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/TicketService").Start(ctx, op, trace.WithAttributes(attrs...))
}

// Create issues a waiting ticket for the owner. If the owner already holds
// an active ticket with this doctor today, that ticket is returned with
// created=false.
func (s *TicketService) Create(ctx context.Context, in CreateTicketInput) (t *domain.Ticket, created bool, err error) {
	ctx, span := s.tracer(ctx, "Create", attribute.String("doctor.id", in.DoctorID))
	defer span.End()

	in.DoctorID = strings.TrimSpace(in.DoctorID)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.DoctorID == "" {
		return nil, false, validation("doctor id is required")
	}
	if !in.Owner.Valid() {
		return nil, false, validation("exactly one of user id or session id is required")
	}
	cat, ok := domain.ParseCategory(in.Category)
	if !ok {
		return nil, false, validation("unknown category %q", in.Category)
	}
	if err := s.checkNotes(in.Notes); err != nil {
		return nil, false, err
	}
	if err := s.requireDoctor(ctx, in.DoctorID, true); err != nil {
		return nil, false, err
	}

	unlock, err := s.locks.Lock(ctx, in.DoctorID)
	if err != nil {
		return nil, false, unavailable(err, "acquire doctor lock")
	}
	defer unlock()

	err = s.Allocator.Retry(ctx, func() error {
		created = false
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := s.now()
			day := s.Day(now)

			existing, err := repo.FindActiveTicketForOwner(ctx, tx, in.DoctorID, day, in.Owner, "")
			if err == nil {
				t = existing
				return nil
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}

			n, err := s.Allocator.Next(ctx, tx, in.DoctorID, day)
			if err != nil {
				return err
			}
			nt := &domain.Ticket{
				ID:        uuid.NewString(),
				Number:    n,
				DoctorID:  in.DoctorID,
				Day:       day,
				Status:    domain.StatusWaiting,
				Notes:     in.Notes,
				Category:  cat,
				WaitSince: now,
				CreatedAt: now,
				UpdatedAt: now,
				Version:   1,
			}
			if in.Owner.UserID != "" {
				nt.UserID = &in.Owner.UserID
			} else {
				nt.SessionID = &in.Owner.SessionID
			}
			if s.Priority != nil {
				score, f, err := s.Priority.Compute(ctx, tx, nt, now)
				if err != nil {
					return err
				}
				if err := nt.SetPriority(score, f); err != nil {
					return err
				}
				nt.LastPriorityUpdate = &now
			}
			if err := repo.CreateTicket(ctx, tx, nt); err != nil {
				return err
			}
			t, created = nt, true
			return nil
		})
	})
	if err != nil {
		return nil, false, unavailable(err, "create ticket")
	}

	span.SetAttributes(attribute.String("ticket.id", t.ID), attribute.Bool("ticket.created", created))
	if created {
		ticketsCreated.WithLabelValues(string(t.Category)).Inc()
		s.publish(events.TicketCreated, t)
		logger(ctx).Info().Str("ticket_id", t.ID).Str("doctor_id", t.DoctorID).Int("number", t.Number).Msg("ticket created")
	}
	return t, created, nil
}

// CallNext moves the doctor's best waiting ticket into consultation. It
// fails with SlotOccupied while another ticket holds the slot and with
// NoWaitingTicket when nobody is waiting.
func (s *TicketService) CallNext(ctx context.Context, doctorID string) (*domain.Ticket, error) {
	ctx, span := s.tracer(ctx, "CallNext", attribute.String("doctor.id", doctorID))
	defer span.End()

	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return nil, validation("doctor id is required")
	}
	if err := s.requireDoctor(ctx, doctorID, false); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, doctorID)
	if err != nil {
		return nil, unavailable(err, "acquire doctor lock")
	}
	defer unlock()

	var called *domain.Ticket
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		busy, err := repo.CountInConsultation(ctx, tx, doctorID)
		if err != nil {
			return err
		}
		if busy > 0 {
			return newErr(KindSlotOccupied, nil, "doctor %s already has a patient in consultation", doctorID)
		}
		next, err := repo.NextWaitingTicket(ctx, tx, doctorID)
		if errors.Is(err, repo.ErrNotFound) {
			return newErr(KindNoWaitingTicket, nil, "no waiting ticket for doctor %s", doctorID)
		}
		if err != nil {
			return err
		}
		ok, err := s.Slots.TryOccupy(ctx, tx, doctorID, next.ID)
		if err != nil {
			return err
		}
		if !ok {
			return newErr(KindSlotOccupied, nil, "doctor %s already has a patient in consultation", doctorID)
		}
		called, err = repo.GetTicket(ctx, tx, next.ID)
		return err
	})
	if err != nil {
		switch KindOf(err) {
		case KindSlotOccupied:
			callNextOutcomes.WithLabelValues("slot_occupied").Inc()
		case KindNoWaitingTicket:
			callNextOutcomes.WithLabelValues("no_waiting_ticket").Inc()
		default:
			callNextOutcomes.WithLabelValues("error").Inc()
		}
		return nil, unavailable(err, "call next")
	}

	callNextOutcomes.WithLabelValues("called").Inc()
	ticketTransitions.WithLabelValues(string(domain.ActionCall), "false").Inc()
	span.SetAttributes(attribute.String("ticket.id", called.ID))
	s.publish(events.TicketCalled, called)
	return called, nil
}

// Finish ends the consultation and frees the doctor's slot.
func (s *TicketService) Finish(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, domain.ActionFinish)
}

// Withdraw takes a waiting ticket out of the queue.
func (s *TicketService) Withdraw(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, domain.ActionWithdraw)
}

// Resume puts a withdrawn ticket back in the queue. Its wait baseline
// restarts now; creation time keeps ordering ties stable. Resume is refused
// when the owner has meanwhile taken another active ticket with the same
// doctor, or when the ticket belongs to an earlier day.
func (s *TicketService) Resume(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketID, domain.ActionResume)
}

func (s *TicketService) transition(ctx context.Context, ticketID string, action domain.Action) (*domain.Ticket, error) {
	ctx, span := s.tracer(ctx, "Transition",
		attribute.String("ticket.id", ticketID),
		attribute.String("ticket.action", string(action)),
	)
	defer span.End()

	cur, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, cur.DoctorID)
	if err != nil {
		return nil, unavailable(err, "acquire doctor lock")
	}
	defer unlock()

	var (
		t    *domain.Ticket
		noop bool
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = repo.GetTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		to, isNoop, err := domain.Apply(action, t.Status)
		if err != nil {
			return invalidTransition("cannot %s ticket #%d: it is %s", action, t.Number, t.Status)
		}
		if noop = isNoop; noop {
			return nil
		}

		now := s.now()
		extra := map[string]any{}
		switch action {
		case domain.ActionFinish:
			return s.Slots.Release(ctx, tx, t)
		case domain.ActionResume:
			if t.Day != s.Day(now) {
				return invalidTransition("ticket #%d was issued on %s and cannot be resumed", t.Number, t.Day)
			}
			other, err := repo.FindActiveTicketForOwner(ctx, tx, t.DoctorID, t.Day, t.Owner(), t.ID)
			if err == nil {
				return invalidTransition("owner already holds ticket #%d with this doctor", other.Number)
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			extra["wait_since"] = now
		}
		if err := repo.TransitionTicket(ctx, tx, t, to, extra); err != nil {
			return err
		}
		if action == domain.ActionResume {
			t.WaitSince = now
		}
		return nil
	})
	if errors.Is(err, repo.ErrStale) {
		return nil, invalidTransition("ticket %s changed concurrently", ticketID)
	}
	if err != nil {
		return nil, unavailable(err, string(action))
	}

	ticketTransitions.WithLabelValues(string(action), boolLabel(noop)).Inc()
	if noop {
		return t, nil
	}
	switch action {
	case domain.ActionFinish:
		s.publish(events.TicketFinished, t)
	case domain.ActionWithdraw:
		s.publish(events.TicketWithdrawn, t)
	case domain.ActionResume:
		s.publish(events.TicketResumed, t)
		if s.Priority != nil {
			if rt, err := s.Priority.Recompute(ctx, t.ID); err != nil {
				priorityRecomputeFailures.Inc()
				logger(ctx).Warn().Err(err).Str("ticket_id", t.ID).Msg("priority recompute after resume failed")
			} else {
				t = rt
			}
		}
	}
	return t, nil
}

// Update applies staff edits (notes, category) and rescores the ticket.
func (s *TicketService) Update(ctx context.Context, ticketID string, in UpdateTicketInput) (*domain.Ticket, error) {
	ctx, span := s.tracer(ctx, "Update", attribute.String("ticket.id", ticketID))
	defer span.End()

	var cat *domain.Category
	if in.Category != nil {
		c, ok := domain.ParseCategory(*in.Category)
		if !ok || strings.TrimSpace(*in.Category) == "" {
			return nil, validation("unknown category %q", *in.Category)
		}
		cat = &c
	}
	if in.Notes != nil {
		n := strings.TrimSpace(*in.Notes)
		if err := s.checkNotes(n); err != nil {
			return nil, err
		}
		in.Notes = &n
	}
	if in.Notes == nil && cat == nil {
		return nil, validation("nothing to update")
	}

	cur, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, cur.DoctorID)
	if err != nil {
		return nil, unavailable(err, "acquire doctor lock")
	}
	defer unlock()

	if err := repo.UpdateTicketDetails(ctx, s.DB, ticketID, in.Notes, cat); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("ticket %s not found", ticketID)
		}
		return nil, unavailable(err, "update ticket")
	}
	if s.Priority != nil {
		t, err := s.Priority.Recompute(ctx, ticketID)
		if err == nil {
			return t, nil
		}
		priorityRecomputeFailures.Inc()
		logger(ctx).Warn().Err(err).Str("ticket_id", ticketID).Msg("priority recompute after update failed")
	}
	return s.load(ctx, ticketID)
}

// ResetDoctorQueue withdraws every waiting ticket of the doctor and returns
// how many were withdrawn. Rows are kept.
func (s *TicketService) ResetDoctorQueue(ctx context.Context, doctorID string) (int, error) {
	ctx, span := s.tracer(ctx, "ResetDoctorQueue", attribute.String("doctor.id", doctorID))
	defer span.End()

	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return 0, validation("doctor id is required")
	}
	if err := s.requireDoctor(ctx, doctorID, false); err != nil {
		return 0, err
	}
	unlock, err := s.locks.Lock(ctx, doctorID)
	if err != nil {
		return 0, unavailable(err, "acquire doctor lock")
	}
	defer unlock()

	var n int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		waiting, err := repo.ListTickets(ctx, tx, repo.TicketFilter{
			DoctorID: doctorID,
			Statuses: []domain.TicketStatus{domain.StatusWaiting},
		})
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(waiting))
		for _, t := range waiting {
			ids = append(ids, t.ID)
		}
		n, err = repo.WithdrawWaitingTickets(ctx, tx, doctorID, ids)
		return err
	})
	if err != nil {
		return 0, unavailable(err, "reset queue")
	}

	e := events.New(events.QueueReset, s.now())
	e.DoctorID = doctorID
	e.Count = int(n)
	s.Events.Publish(e)
	logger(ctx).Info().Str("doctor_id", doctorID).Int64("withdrawn", n).Msg("doctor queue reset")
	return int(n), nil
}

// Get returns a ticket with its waiting position.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*TicketWithPosition, error) {
	ctx, span := s.tracer(ctx, "Get", attribute.String("ticket.id", ticketID))
	defer span.End()

	t, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	out := &TicketWithPosition{Ticket: *t}
	if t.Status == domain.StatusWaiting {
		pos, err := repo.WaitingPosition(ctx, s.DB, t)
		if err != nil {
			return nil, unavailable(err, "waiting position")
		}
		out.Position = pos
	}
	return out, nil
}

// ListQueue returns the ordered queue view for one doctor or all doctors.
func (s *TicketService) ListQueue(ctx context.Context, q QueueQuery) (queueview.View, error) {
	ctx, span := s.tracer(ctx, "ListQueue", attribute.String("doctor.id", q.DoctorID))
	defer span.End()

	for _, st := range q.Statuses {
		if !st.Valid() {
			return queueview.View{}, validation("unknown status %q", st)
		}
	}
	rows, err := repo.ListTickets(ctx, s.DB, repo.TicketFilter{DoctorID: q.DoctorID})
	if err != nil {
		return queueview.View{}, unavailable(err, "list tickets")
	}
	return queueview.Build(rows, queueview.Filter{
		DoctorID:     q.DoctorID,
		Statuses:     q.Statuses,
		HistoryLimit: q.HistoryLimit,
	}), nil
}

// QueueVersion returns a cheap fingerprint of a doctor's queue (row count
// and latest change) for conditional GETs.
func (s *TicketService) QueueVersion(ctx context.Context, doctorID string) (int64, *time.Time, error) {
	n, last, err := repo.QueueStats(ctx, s.DB, doctorID)
	if err != nil {
		return 0, nil, unavailable(err, "queue stats")
	}
	return n, last, nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, validation("ticket id is required")
	}
	t, err := repo.GetTicket(ctx, s.DB, ticketID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("ticket %s not found", ticketID)
	}
	if err != nil {
		return nil, unavailable(err, "load ticket")
	}
	return t, nil
}

func (s *TicketService) requireDoctor(ctx context.Context, doctorID string, mustBeActive bool) error {
	d, err := repo.GetDoctor(ctx, s.DB, doctorID)
	if errors.Is(err, repo.ErrNotFound) {
		return validation("unknown doctor %q", doctorID)
	}
	if err != nil {
		return unavailable(err, "load doctor")
	}
	if mustBeActive && !d.Active {
		return validation("doctor %q is not accepting tickets", doctorID)
	}
	return nil
}

func (s *TicketService) checkNotes(notes string) error {
	if s.MaxNotesRunes > 0 && utf8.RuneCountInString(notes) > s.MaxNotesRunes {
		return validation("notes exceed %d characters", s.MaxNotesRunes)
	}
	return nil
}

func (s *TicketService) publish(k events.Kind, t *domain.Ticket) {
	e := events.New(k, s.now())
	e.DoctorID = t.DoctorID
	e.TicketID = t.ID
	e.Number = t.Number
	s.Events.Publish(e)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
