// Package services – AssessmentService
//
// AssessmentService runs the guided urgency intake. It keeps at most one
// open conversation per patient, stores every question and answer as
// conversation messages, persists the decision-tree state between answers,
// and completes the conversation with the engine's verdict.
//
// A malformed answer never fails the request and never moves the
// conversation: nothing is stored, the pending question is returned again
// with the engine's neutral verdict and a degraded_assessment warning. Only
// an internal engine fault completes the conversation with that verdict.
// Each accepted answer triggers a priority recompute of the patient's
// tickets.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/events"
	"github.com/tbourn/go-clinic-queue/internal/repo"
	"github.com/tbourn/go-clinic-queue/internal/urgency"
)

// AssessmentService coordinates the urgency engine with persistence.
type AssessmentService struct {
	DB       *gorm.DB
	Engine   *urgency.Engine
	Priority *PriorityService
	Events   events.Publisher
	Now      func() time.Time

	locks *keyedMutex
}

// NewAssessmentService wires a service. A nil publisher discards events.
func NewAssessmentService(db *gorm.DB, engine *urgency.Engine, prio *PriorityService, pub events.Publisher) *AssessmentService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &AssessmentService{DB: db, Engine: engine, Priority: prio, Events: pub, locks: newKeyedMutex()}
}

// AssessmentView is what callers see after each step.
type AssessmentView struct {
	Conversation domain.Conversation          `json:"conversation"`
	Prompt       *urgency.Prompt              `json:"prompt,omitempty"`
	Info         string                       `json:"info,omitempty"`
	Assessment   *domain.Assessment           `json:"assessment,omitempty"`
	Messages     []domain.ConversationMessage `json:"messages,omitempty"`
	Warnings     []Warning                    `json:"warnings,omitempty"`
}

func (s *AssessmentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Start opens a conversation for patientRef, or returns the patient's
// conversation that is still open. ticketID, when given, must belong to
// the patient.
func (s *AssessmentService) Start(ctx context.Context, patientRef string, ticketID *string) (*AssessmentView, error) {
	ctx, span := otel.Tracer("services/AssessmentService").Start(ctx, "Start",
		trace.WithAttributes(attribute.String("patient.ref", patientRef)),
	)
	defer span.End()

	patientRef = strings.TrimSpace(patientRef)
	if patientRef == "" || len(patientRef) > 64 {
		return nil, validation("patient reference is required (max 64 characters)")
	}
	var ticketRef *string
	if ticketID != nil && strings.TrimSpace(*ticketID) != "" {
		id := strings.TrimSpace(*ticketID)
		t, err := repo.GetTicket(ctx, s.DB, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("ticket %s not found", id)
		}
		if err != nil {
			return nil, unavailable(err, "load ticket")
		}
		if t.Owner().Ref() != patientRef {
			return nil, validation("ticket %s does not belong to this patient", id)
		}
		ticketRef = &id
	}

	unlock, err := s.locks.Lock(ctx, patientRef)
	if err != nil {
		return nil, unavailable(err, "acquire patient lock")
	}
	defer unlock()

	open, err := repo.FindActiveConversation(ctx, s.DB, patientRef)
	if err == nil {
		return s.view(ctx, open, false)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, unavailable(err, "find open conversation")
	}

	st, prompt := s.Engine.Start()
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return nil, unavailable(err, "encode state")
	}
	now := s.now()
	conv := &domain.Conversation{
		PatientRef:    patientRef,
		TicketRef:     ticketRef,
		Status:        domain.ConversationPending,
		Step:          string(st.Step),
		State:         datatypes.JSON(stateJSON),
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateConversation(ctx, tx, conv); err != nil {
			return err
		}
		return s.ask(ctx, tx, conv.ID, prompt)
	})
	if err != nil {
		return nil, unavailable(err, "start assessment")
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID))
	return &AssessmentView{Conversation: *conv, Prompt: &prompt}, nil
}

// Submit applies one structured answer and returns the next question or the
// final verdict.
func (s *AssessmentService) Submit(ctx context.Context, conversationID string, ans urgency.Answer) (*AssessmentView, error) {
	ctx, span := otel.Tracer("services/AssessmentService").Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	conv, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, conv.PatientRef)
	if err != nil {
		return nil, unavailable(err, "acquire patient lock")
	}
	defer unlock()

	// Reload under the lock; a concurrent answer may have advanced it.
	if conv, err = s.load(ctx, conversationID); err != nil {
		return nil, err
	}
	if conv.Status == domain.ConversationCompleted {
		return nil, invalidTransition("conversation %s is already completed", conv.ID)
	}
	if conv.ArchivedAt != nil {
		return nil, invalidTransition("conversation %s is archived", conv.ID)
	}

	var st urgency.State
	if len(conv.State) > 0 {
		if err := json.Unmarshal(conv.State, &st); err != nil {
			st = urgency.State{Step: urgency.Step(conv.Step)}
		}
	}
	res := s.Engine.Submit(st, ans)
	if res.Rejected {
		assessmentsDegraded.Inc()
		logger(ctx).Warn().Str("conversation_id", conv.ID).Str("step", string(st.Step)).
			Str("reason", res.Reason).Msg("answer rejected, question asked again")
		return &AssessmentView{
			Conversation: *conv,
			Prompt:       res.Prompt,
			Assessment:   res.Assessment,
			Warnings:     []Warning{{Code: WarnDegradedAssessment, Message: res.Reason}},
		}, nil
	}

	answerJSON, _ := json.Marshal(ans)
	stateJSON, err := json.Marshal(res.State)
	if err != nil {
		return nil, unavailable(err, "encode state")
	}
	now := s.now()
	conv.State = datatypes.JSON(stateJSON)
	conv.Step = string(res.State.Step)
	conv.LastMessageAt = now
	conv.Status = domain.ConversationInProgress
	if res.Done() {
		conv.Status = domain.ConversationCompleted
		conv.Degraded = res.Degraded
		conv.UrgencyLevel = urgencyLevel(res.Assessment.UrgencyScore)
		if err := conv.SetAssessment(*res.Assessment); err != nil {
			return nil, unavailable(err, "encode assessment")
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.AddConversationMessage(ctx, tx, conv.ID, domain.SenderPatient, describeAnswer(ans), datatypes.JSON(answerJSON)); err != nil {
			return err
		}
		if res.Info != "" {
			if _, err := repo.AddConversationMessage(ctx, tx, conv.ID, domain.SenderAssistant, res.Info, nil); err != nil {
				return err
			}
		}
		if res.Prompt != nil {
			if err := s.ask(ctx, tx, conv.ID, *res.Prompt); err != nil {
				return err
			}
		}
		if res.Done() {
			if _, err := repo.AddConversationMessage(ctx, tx, conv.ID, domain.SenderAssistant, res.Assessment.Reasoning, nil); err != nil {
				return err
			}
		}
		return repo.SaveConversationProgress(ctx, tx, conv)
	})
	if err != nil {
		return nil, unavailable(err, "save answer")
	}

	out := &AssessmentView{Conversation: *conv, Prompt: res.Prompt, Info: res.Info, Assessment: res.Assessment}
	if res.Done() {
		assessmentsCompleted.WithLabelValues(string(res.Assessment.RecommendedAction)).Inc()
		e := events.New(events.AssessmentCompleted, now)
		e.ConversationID = conv.ID
		e.UrgencyLevel = conv.UrgencyLevel
		e.RecommendedAction = string(res.Assessment.RecommendedAction)
		e.Degraded = res.Degraded
		if conv.TicketRef != nil {
			e.TicketID = *conv.TicketRef
		}
		s.Events.Publish(e)
	}
	if res.Degraded {
		assessmentsDegraded.Inc()
		out.Warnings = append(out.Warnings, Warning{Code: WarnDegradedAssessment, Message: res.Reason})
		logger(ctx).Warn().Str("conversation_id", conv.ID).Str("reason", res.Reason).Msg("assessment degraded to neutral verdict")
	}
	if s.Priority != nil {
		s.Priority.RecomputeForOwner(ctx, conv.PatientRef, conv.TicketRef)
	}
	return out, nil
}

// Get returns a conversation with its messages and, while open, the
// pending question.
func (s *AssessmentService) Get(ctx context.Context, conversationID string) (*AssessmentView, error) {
	ctx, span := otel.Tracer("services/AssessmentService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	conv, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, conv, true)
}

func (s *AssessmentService) view(ctx context.Context, conv *domain.Conversation, withMessages bool) (*AssessmentView, error) {
	out := &AssessmentView{Conversation: *conv}
	if conv.Status == domain.ConversationCompleted {
		a, ok, err := conv.GetAssessment()
		if err != nil {
			return nil, unavailable(err, "decode assessment")
		}
		if ok {
			out.Assessment = &a
			if a.Degraded {
				out.Warnings = append(out.Warnings, Warning{Code: WarnDegradedAssessment, Message: a.Reasoning})
			}
		}
	} else {
		var st urgency.State
		if len(conv.State) > 0 {
			_ = json.Unmarshal(conv.State, &st)
		}
		if st.Step == "" {
			st.Step = urgency.Step(conv.Step)
		}
		out.Prompt = s.Engine.PromptFor(st)
	}
	if withMessages {
		msgs, err := repo.ListConversationMessages(ctx, s.DB, conv.ID, "", time.Time{})
		if err != nil {
			return nil, unavailable(err, "list messages")
		}
		out.Messages = msgs
	}
	return out, nil
}

func (s *AssessmentService) load(ctx context.Context, id string) (*domain.Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validation("conversation id is required")
	}
	c, err := repo.GetConversation(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("conversation %s not found", id)
	}
	if err != nil {
		return nil, unavailable(err, "load conversation")
	}
	return c, nil
}

// ask stores a question as an assistant message.
func (s *AssessmentService) ask(ctx context.Context, tx *gorm.DB, convID string, p urgency.Prompt) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = repo.AddConversationMessage(ctx, tx, convID, domain.SenderAssistant, p.Text, datatypes.JSON(raw))
	return err
}

// describeAnswer renders a structured answer as message text.
func describeAnswer(a urgency.Answer) string {
	switch {
	case strings.TrimSpace(a.Text) != "":
		return strings.TrimSpace(a.Text)
	case a.Level != nil:
		return strconv.Itoa(*a.Level)
	case len(a.Options) > 0:
		return strings.Join(a.Options, ", ")
	case a.Choice != "":
		return a.Choice
	default:
		return "(empty answer)"
	}
}

// urgencyLevel maps a score to the 1–10 integer level.
func urgencyLevel(score float64) int {
	return int(math.Max(1, math.Min(10, math.Round(score))))
}
