package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/go-clinic-queue/internal/domain"
)

func TestConversation_CreateFindAndSave(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c := &domain.Conversation{PatientRef: "p1", Status: domain.ConversationPending, Step: "pain_level"}
	if err := CreateConversation(ctx, db, c); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if c.ID == "" || c.LastMessageAt.IsZero() {
		t.Fatalf("ID/LastMessageAt not assigned: %+v", c)
	}

	active, err := FindActiveConversation(ctx, db, "p1")
	if err != nil || active.ID != c.ID {
		t.Fatalf("FindActiveConversation = %+v, %v", active, err)
	}

	c.Status = domain.ConversationCompleted
	c.UrgencyLevel = 9
	c.Step = "done"
	if err := c.SetAssessment(domain.Assessment{UrgencyScore: 9, RecommendedAction: domain.ActionConsultationImmediate}); err != nil {
		t.Fatalf("SetAssessment: %v", err)
	}
	if err := SaveConversationProgress(ctx, db, c); err != nil {
		t.Fatalf("SaveConversationProgress: %v", err)
	}
	if _, err := FindActiveConversation(ctx, db, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("completed conversation must not be active, got %v", err)
	}

	got, err := GetConversation(ctx, db, c.ID)
	if err != nil || got.UrgencyLevel != 9 || got.Status != domain.ConversationCompleted {
		t.Fatalf("GetConversation = %+v, %v", got, err)
	}
	a, ok, err := got.GetAssessment()
	if err != nil || !ok || a.RecommendedAction != domain.ActionConsultationImmediate {
		t.Fatalf("assessment not persisted: %+v ok=%v err=%v", a, ok, err)
	}

	missing := &domain.Conversation{ID: "nope"}
	if err := SaveConversationProgress(ctx, db, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindConversationForTicket_LinkedThenOwnerFallback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	older := &domain.Conversation{PatientRef: "p1", Status: domain.ConversationCompleted, Step: "done", CreatedAt: base}
	newer := &domain.Conversation{PatientRef: "p1", Status: domain.ConversationInProgress, Step: "duration", CreatedAt: base.Add(time.Hour)}
	linked := &domain.Conversation{PatientRef: "p2", TicketRef: strp("t1"), Status: domain.ConversationCompleted, Step: "done", CreatedAt: base}
	for _, c := range []*domain.Conversation{older, newer, linked} {
		if err := CreateConversation(ctx, db, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := FindConversationForTicket(ctx, db, "t1", "p1")
	if err != nil || got.ID != linked.ID {
		t.Fatalf("linked conversation must win: %+v, %v", got, err)
	}
	got, err = FindConversationForTicket(ctx, db, "t2", "p1")
	if err != nil || got.ID != newer.ID {
		t.Fatalf("owner fallback must return latest: %+v, %v", got, err)
	}
	if _, err := FindConversationForTicket(ctx, db, "t2", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no owner => ErrNotFound, got %v", err)
	}

	if err := ArchiveConversation(ctx, db, newer.ID); err != nil {
		t.Fatalf("ArchiveConversation: %v", err)
	}
	got, err = FindConversationForTicket(ctx, db, "t2", "p1")
	if err != nil || got.ID != older.ID {
		t.Fatalf("archived conversation must be skipped: %+v, %v", got, err)
	}
	if err := ArchiveConversation(ctx, db, newer.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double archive => ErrNotFound, got %v", err)
	}
}

func TestFindAssessedConversationForTicket_SkipsOpenIntakes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	done := &domain.Conversation{PatientRef: "p1", TicketRef: strp("t1"), Status: domain.ConversationCompleted, Step: "done", CreatedAt: base}
	if err := done.SetAssessment(domain.Assessment{UrgencyScore: 10, RecommendedAction: domain.ActionConsultationImmediate}); err != nil {
		t.Fatalf("SetAssessment: %v", err)
	}
	reopened := &domain.Conversation{PatientRef: "p1", TicketRef: strp("t1"), Status: domain.ConversationPending, Step: "pain_level", CreatedAt: base.Add(2 * time.Minute)}
	unlinked := &domain.Conversation{PatientRef: "p2", Status: domain.ConversationCompleted, Step: "done", CreatedAt: base}
	if err := unlinked.SetAssessment(domain.Assessment{UrgencyScore: 3, RecommendedAction: domain.ActionWait}); err != nil {
		t.Fatalf("SetAssessment: %v", err)
	}
	open := &domain.Conversation{PatientRef: "p2", TicketRef: strp("t2"), Status: domain.ConversationInProgress, Step: "duration", CreatedAt: base.Add(time.Hour)}
	for _, c := range []*domain.Conversation{done, reopened, unlinked, open} {
		if err := CreateConversation(ctx, db, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if got, err := FindConversationForTicket(ctx, db, "t1", "p1"); err != nil || got.ID != reopened.ID {
		t.Fatalf("latest conversation = %+v, %v", got, err)
	}
	if got, err := FindAssessedConversationForTicket(ctx, db, "t1", "p1"); err != nil || got.ID != done.ID {
		t.Fatalf("assessed conversation for t1 = %+v, %v", got, err)
	}
	// t2's only linked conversation is open, so the owner's verdict is used
	if got, err := FindAssessedConversationForTicket(ctx, db, "t2", "p2"); err != nil || got.ID != unlinked.ID {
		t.Fatalf("owner fallback = %+v, %v", got, err)
	}
	if _, err := FindAssessedConversationForTicket(ctx, db, "t3", "p3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no verdict => ErrNotFound, got %v", err)
	}
}

func TestConversationMessages_FilterBySenderAndTime(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := &domain.Conversation{PatientRef: "p1", Status: domain.ConversationInProgress, Step: "pain_level"}
	if err := CreateConversation(ctx, db, c); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := AddConversationMessage(ctx, db, c.ID, domain.SenderAssistant, "Quel est votre niveau de douleur ?", nil); err != nil {
		t.Fatalf("add assistant: %v", err)
	}
	if _, err := AddConversationMessage(ctx, db, c.ID, domain.SenderPatient, "7", datatypes.JSON(`{"level":7}`)); err != nil {
		t.Fatalf("add patient: %v", err)
	}

	all, err := ListConversationMessages(ctx, db, c.ID, "", time.Time{})
	if err != nil || len(all) != 2 {
		t.Fatalf("ListConversationMessages(all) = %d, %v", len(all), err)
	}
	patient, err := ListConversationMessages(ctx, db, c.ID, domain.SenderPatient, time.Now().UTC().Add(-time.Minute))
	if err != nil || len(patient) != 1 || patient[0].Content != "7" {
		t.Fatalf("patient messages = %+v, %v", patient, err)
	}
	future, _ := ListConversationMessages(ctx, db, c.ID, "", time.Now().UTC().Add(time.Hour))
	if len(future) != 0 {
		t.Fatalf("since filter ignored: %+v", future)
	}
}

func TestDoctors_UpsertGetList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := UpsertDoctor(ctx, db, "d2", "Dr. Zola", true); err != nil {
		t.Fatalf("UpsertDoctor: %v", err)
	}
	if _, err := UpsertDoctor(ctx, db, "d1", "Dr. Adams", true); err != nil {
		t.Fatalf("UpsertDoctor: %v", err)
	}
	d, err := UpsertDoctor(ctx, db, "d2", "Dr. Zola", false)
	if err != nil || d.Active {
		t.Fatalf("upsert must update active flag: %+v, %v", d, err)
	}

	all, err := ListDoctors(ctx, db, false)
	if err != nil || len(all) != 2 || all[0].ID != "d1" {
		t.Fatalf("ListDoctors(all) = %+v, %v", all, err)
	}
	active, _ := ListDoctors(ctx, db, true)
	if len(active) != 1 || active[0].ID != "d1" {
		t.Fatalf("ListDoctors(active) = %+v", active)
	}
	if _, err := GetDoctor(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
