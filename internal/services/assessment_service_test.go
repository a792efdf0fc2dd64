package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/events"
	"github.com/tbourn/go-clinic-queue/internal/urgency"
)

func lvl(n int) urgency.Answer { return urgency.Answer{Level: &n} }

func mustSubmit(t *testing.T, s *AssessmentService, convID string, a urgency.Answer) *AssessmentView {
	t.Helper()
	v, err := s.Submit(context.Background(), convID, a)
	if err != nil {
		t.Fatalf("Submit(%+v): %v", a, err)
	}
	return v
}

func TestAssessment_UrgentSymptomEndsImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.assess.Start(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if v.Prompt == nil || v.Prompt.Step != urgency.StepPainLevel {
		t.Fatalf("expected pain question first, got %+v", v.Prompt)
	}
	if v.Conversation.Status != domain.ConversationPending {
		t.Fatalf("new conversation status = %s", v.Conversation.Status)
	}
	id := v.Conversation.ID

	v = mustSubmit(t, f.assess, id, lvl(9))
	if v.Prompt == nil || v.Prompt.Step != urgency.StepUrgentSymptoms || v.Assessment != nil {
		t.Fatalf("pain 9 should ask for urgent symptoms, got %+v", v)
	}
	if v.Conversation.Status != domain.ConversationInProgress {
		t.Fatalf("status after first answer = %s", v.Conversation.Status)
	}

	v = mustSubmit(t, f.assess, id, urgency.Answer{Options: []string{"chest_pain"}})
	if v.Assessment == nil {
		t.Fatalf("expected a verdict, got prompt %+v", v.Prompt)
	}
	if v.Assessment.RecommendedAction != domain.ActionConsultationImmediate || v.Assessment.UrgencyScore < 8.5 {
		t.Fatalf("unexpected verdict: %+v", v.Assessment)
	}
	if v.Conversation.Status != domain.ConversationCompleted || v.Conversation.UrgencyLevel < 9 {
		t.Fatalf("conversation not completed with level: %+v", v.Conversation)
	}
	if len(v.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", v.Warnings)
	}

	e, ok := f.pub.last(events.AssessmentCompleted)
	if !ok || e.ConversationID != id || e.UrgencyLevel != v.Conversation.UrgencyLevel {
		t.Fatalf("unexpected completion event: %+v (%v)", e, ok)
	}
}

func TestAssessment_LowPainLowStressIsWait(t *testing.T) {
	f := newFixture(t)
	v, err := f.assess.Start(context.Background(), "p1", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := v.Conversation.ID

	v = mustSubmit(t, f.assess, id, lvl(2))
	if v.Prompt == nil || v.Prompt.Step != urgency.StepStressLevel {
		t.Fatalf("pain 2 should ask for stress, got %+v", v.Prompt)
	}
	v = mustSubmit(t, f.assess, id, lvl(2))
	if v.Prompt == nil || v.Prompt.Step != urgency.StepMedicalContext {
		t.Fatalf("expected medical context question, got %+v", v.Prompt)
	}
	v = mustSubmit(t, f.assess, id, urgency.Answer{Options: []string{urgency.ContextNone}})
	if v.Assessment == nil || v.Assessment.RecommendedAction != domain.ActionWait || v.Assessment.UrgencyScore >= 4.0 {
		t.Fatalf("unexpected verdict: %+v", v.Assessment)
	}
}

func TestAssessment_MalformedAnswerKeepsConversationOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.assess.Start(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := v.Conversation.ID

	v = mustSubmit(t, f.assess, id, lvl(11))
	if v.Prompt == nil || v.Prompt.Step != urgency.StepPainLevel {
		t.Fatalf("pain question should be asked again, got %+v", v.Prompt)
	}
	if v.Assessment == nil || v.Assessment.UrgencyScore != 5 || v.Assessment.RecommendedAction != domain.ActionTeleconsultation {
		t.Fatalf("expected neutral provisional verdict, got %+v", v.Assessment)
	}
	if len(v.Warnings) != 1 || v.Warnings[0].Code != WarnDegradedAssessment {
		t.Fatalf("expected degraded warning, got %+v", v.Warnings)
	}
	if v.Conversation.Status != domain.ConversationPending || v.Conversation.Degraded {
		t.Fatalf("conversation must stay open: %+v", v.Conversation)
	}
	if n := f.pub.count(events.AssessmentCompleted); n != 0 {
		t.Fatalf("completion published %d times", n)
	}

	got, err := f.assess.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Conversation.Status != domain.ConversationPending || got.Assessment != nil || len(got.Warnings) != 0 {
		t.Fatalf("rejected answer was persisted: %+v", got)
	}
	if got.Prompt == nil || got.Prompt.Step != urgency.StepPainLevel || len(got.Messages) != 1 {
		t.Fatalf("stored transcript = %d messages, prompt %+v", len(got.Messages), got.Prompt)
	}

	v = mustSubmit(t, f.assess, id, lvl(9))
	if len(v.Warnings) != 0 || v.Prompt == nil || v.Prompt.Step != urgency.StepUrgentSymptoms {
		t.Fatalf("corrected answer not accepted: %+v", v)
	}
	if v.Conversation.Status != domain.ConversationInProgress {
		t.Fatalf("status after corrected answer = %s", v.Conversation.Status)
	}
}

func TestAssessment_StartReturnsOpenConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.assess.Start(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSubmit(t, f.assess, a.Conversation.ID, lvl(5))

	b, err := f.assess.Start(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("Start again: %v", err)
	}
	if b.Conversation.ID != a.Conversation.ID {
		t.Fatalf("expected the open conversation back")
	}
	if b.Prompt == nil || b.Prompt.Step != urgency.StepDuration {
		t.Fatalf("expected the pending question, got %+v", b.Prompt)
	}

	other, err := f.assess.Start(ctx, "p2", nil)
	if err != nil || other.Conversation.ID == a.Conversation.ID {
		t.Fatalf("another patient gets a new conversation: %v", err)
	}
}

func TestAssessment_StartValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, drA, "owner")

	if _, err := f.assess.Start(ctx, "  ", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank patient: expected ErrValidation, got %v", err)
	}
	missing := "no-such-ticket"
	if _, err := f.assess.Start(ctx, "owner", &missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown ticket: expected ErrNotFound, got %v", err)
	}
	if _, err := f.assess.Start(ctx, "intruder", &tk.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("foreign ticket: expected ErrValidation, got %v", err)
	}
	if _, err := f.assess.Submit(ctx, "missing", lvl(3)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown conversation: expected ErrNotFound, got %v", err)
	}
}

func TestAssessment_StoresTranscript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.assess.Start(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := v.Conversation.ID
	mustSubmit(t, f.assess, id, lvl(9))
	mustSubmit(t, f.assess, id, urgency.Answer{Options: []string{"chest_pain"}, Text: "ça serre"})

	got, err := f.assess.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// prompt, answer, prompt, answer, verdict
	if len(got.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(got.Messages))
	}
	patient := 0
	texts := map[string]bool{}
	for _, m := range got.Messages {
		if m.Sender == domain.SenderPatient {
			patient++
			texts[m.Content] = true
		}
	}
	if patient != 2 || !texts["9"] || !texts["ça serre"] {
		t.Fatalf("unexpected patient messages: %+v", got.Messages)
	}
}

func TestAssessment_RaisesLinkedTicketPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, drA, "p1")

	v, err := f.assess.Start(ctx, "p1", &tk.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSubmit(t, f.assess, v.Conversation.ID, lvl(9))
	mustSubmit(t, f.assess, v.Conversation.ID, urgency.Answer{Options: []string{"chest_pain", "breathing_difficulty"}})

	got := f.reload(t, tk.ID)
	if got.PriorityScore <= tk.PriorityScore {
		t.Fatalf("score should rise after an urgent verdict: %v -> %v", tk.PriorityScore, got.PriorityScore)
	}
	fs, err := got.Factors()
	if err != nil {
		t.Fatalf("Factors: %v", err)
	}
	if fs.UrgencySource != "assessment" || fs.Urgency <= 5 {
		t.Fatalf("urgency factor should come from the assessment: %+v", fs)
	}
}

func TestAssessment_UnlinkedConversationRescoresOwnerTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, drA, "p1")
	b := f.create(t, drB, "p1")

	v, err := f.assess.Start(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSubmit(t, f.assess, v.Conversation.ID, lvl(9))
	mustSubmit(t, f.assess, v.Conversation.ID, urgency.Answer{Options: []string{"chest_pain"}})

	for _, tk := range []*domain.Ticket{a, b} {
		fs, _ := f.reload(t, tk.ID).Factors()
		if fs.UrgencySource != "assessment" {
			t.Fatalf("ticket %s not rescored: %+v", tk.ID, fs)
		}
	}
}

func TestAssessment_NewIntakeKeepsEarlierVerdict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.create(t, drA, "p1")

	v, err := f.assess.Start(ctx, "p1", &tk.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSubmit(t, f.assess, v.Conversation.ID, lvl(9))
	mustSubmit(t, f.assess, v.Conversation.ID, urgency.Answer{Options: []string{"chest_pain"}})
	before, _ := f.reload(t, tk.ID).Factors()
	if before.UrgencySource != "assessment" {
		t.Fatalf("verdict not applied: %+v", before)
	}

	f.clock.Advance(2 * time.Minute)
	again, err := f.assess.Start(ctx, "p1", &tk.ID)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if again.Conversation.ID == v.Conversation.ID || again.Conversation.Status != domain.ConversationPending {
		t.Fatalf("expected a fresh intake, got %+v", again.Conversation)
	}

	if _, err := f.prio.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	fs, _ := f.reload(t, tk.ID).Factors()
	if fs.UrgencySource != "assessment" || fs.Urgency != before.Urgency {
		t.Fatalf("open intake hid the verdict after sweep: %+v, want urgency %v", fs, before.Urgency)
	}

	// answering the new intake rescores too, still from the earlier verdict
	mustSubmit(t, f.assess, again.Conversation.ID, lvl(3))
	fs, _ = f.reload(t, tk.ID).Factors()
	if fs.UrgencySource != "assessment" || fs.Urgency != before.Urgency {
		t.Fatalf("in-progress intake hid the verdict: %+v", fs)
	}
}
