package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/events"
	"github.com/tbourn/go-clinic-queue/internal/priority"
	"github.com/tbourn/go-clinic-queue/internal/repo"
	"github.com/tbourn/go-clinic-queue/internal/services"
	"github.com/tbourn/go-clinic-queue/internal/urgency"
)

// ---------- test server ----------

func newServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"), 1)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	prio := services.NewPriorityService(db, priority.MustNew(priority.DefaultConfig()))
	tickets := services.NewTicketService(db, services.NewSequenceAllocator(3), prio, events.Nop{}, nil)
	assess := services.NewAssessmentService(db, urgency.MustNew(urgency.DefaultCatalog()), prio, events.Nop{})
	h := New(tickets, assess, &services.DoctorService{DB: db})

	r := gin.New()
	r.GET("/doctors", h.ListDoctors)
	r.PUT("/doctors/:id", h.UpsertDoctor)
	r.GET("/queue", h.ListQueue)
	r.POST("/doctors/:id/tickets", h.CreateTicket)
	r.POST("/doctors/:id/call-next", h.CallNext)
	r.POST("/doctors/:id/reset", h.ResetQueue)
	r.GET("/tickets/:id", h.GetTicket)
	r.PATCH("/tickets/:id", h.UpdateTicket)
	r.POST("/tickets/:id/finish", h.FinishTicket)
	r.POST("/tickets/:id/withdraw", h.WithdrawTicket)
	r.POST("/tickets/:id/resume", h.ResumeTicket)
	r.POST("/assessments", h.StartAssessment)
	r.GET("/assessments/:id", h.GetAssessment)
	r.POST("/assessments/:id/answers", h.SubmitAnswer)
	return r, db
}

func do(t *testing.T, r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}

func wantErr(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	if er := decode[ErrorResponse](t, w); er.Code != code {
		t.Fatalf("code=%q want %q", er.Code, code)
	}
}

type ticketDTO struct {
	ID       string `json:"id"`
	Number   int    `json:"number"`
	DoctorID string `json:"doctor_id"`
	Status   string `json:"status"`
	Category string `json:"category"`
	Position int    `json:"position"`
}

var (
	alice = map[string]string{HeaderSessionID: "sess-alice"}
	bob   = map[string]string{HeaderUserID: "user-bob"}
)

func seedDoctor(t *testing.T, r http.Handler, id string) {
	t.Helper()
	w := do(t, r, http.MethodPut, "/doctors/"+id, `{"name":"  Dr   House "}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /doctors/%s = %d %s", id, w.Code, w.Body.String())
	}
}

// ---------- tickets ----------

func TestTickets_Lifecycle(t *testing.T) {
	r, _ := newServer(t)
	seedDoctor(t, r, "dr-a")

	// owner headers are required
	wantErr(t, do(t, r, http.MethodPost, "/doctors/dr-a/tickets", "", nil), http.StatusBadRequest, ErrCodeBadRequest)

	w := do(t, r, http.MethodPost, "/doctors/dr-a/tickets", `{"notes":"fièvre"}`, alice)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	first := decode[ticketDTO](t, w)
	if first.Number != 1 || first.Status != "waiting" || first.DoctorID != "dr-a" {
		t.Fatalf("unexpected ticket: %+v", first)
	}
	if loc := w.Header().Get("Location"); loc != "tickets/"+first.ID {
		t.Fatalf("Location=%q", loc)
	}

	// same owner, same doctor: existing ticket, 200
	w = do(t, r, http.MethodPost, "/doctors/dr-a/tickets", "", alice)
	if w.Code != http.StatusOK || decode[ticketDTO](t, w).ID != first.ID {
		t.Fatalf("dedupe = %d %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, "/doctors/dr-a/tickets", "", bob)
	second := decode[ticketDTO](t, w)
	if w.Code != http.StatusCreated || second.Number != 2 {
		t.Fatalf("second = %d %+v", w.Code, second)
	}

	// position while waiting
	w = do(t, r, http.MethodGet, "/tickets/"+second.ID, "", nil)
	if got := decode[ticketDTO](t, w); w.Code != http.StatusOK || got.Position != 2 {
		t.Fatalf("GET ticket = %d %+v", w.Code, got)
	}

	// call-next, then the slot is taken
	w = do(t, r, http.MethodPost, "/doctors/dr-a/call-next", "", nil)
	if got := decode[ticketDTO](t, w); w.Code != http.StatusOK || got.ID != first.ID || got.Status != "in_consultation" {
		t.Fatalf("call-next = %d %+v", w.Code, got)
	}
	wantErr(t, do(t, r, http.MethodPost, "/doctors/dr-a/call-next", "", nil), http.StatusConflict, string(services.KindSlotOccupied))

	// finish frees the slot
	w = do(t, r, http.MethodPost, "/tickets/"+first.ID+"/finish", "", nil)
	if got := decode[ticketDTO](t, w); w.Code != http.StatusOK || got.Status != "finished" {
		t.Fatalf("finish = %d %+v", w.Code, got)
	}
	wantErr(t, do(t, r, http.MethodPost, "/tickets/"+first.ID+"/withdraw", "", nil), http.StatusConflict, string(services.KindInvalidTransition))

	// withdraw and resume bob
	if w = do(t, r, http.MethodPost, "/tickets/"+second.ID+"/withdraw", "", nil); w.Code != http.StatusOK {
		t.Fatalf("withdraw = %d %s", w.Code, w.Body.String())
	}
	wantErr(t, do(t, r, http.MethodPost, "/doctors/dr-a/call-next", "", nil), http.StatusNotFound, string(services.KindNoWaitingTicket))
	w = do(t, r, http.MethodPost, "/tickets/"+second.ID+"/resume", "", nil)
	if got := decode[ticketDTO](t, w); w.Code != http.StatusOK || got.Status != "waiting" {
		t.Fatalf("resume = %d %+v", w.Code, got)
	}

	wantErr(t, do(t, r, http.MethodGet, "/tickets/nope", "", nil), http.StatusNotFound, string(services.KindNotFound))
}

func TestTickets_CreateValidation(t *testing.T) {
	r, _ := newServer(t)
	seedDoctor(t, r, "dr-a")

	wantErr(t, do(t, r, http.MethodPost, "/doctors/dr-unknown/tickets", "", alice), http.StatusBadRequest, string(services.KindValidation))
	wantErr(t, do(t, r, http.MethodPost, "/doctors/dr-a/tickets", `{"category":"vip"}`, alice), http.StatusBadRequest, string(services.KindValidation))
	wantErr(t, do(t, r, http.MethodPost, "/doctors/dr-a/tickets", `{nope`, alice), http.StatusBadRequest, ErrCodeBadRequest)
	wantErr(t, do(t, r, http.MethodPost, "/doctors/dr-a/tickets", "", map[string]string{
		HeaderUserID: "u", HeaderSessionID: "s",
	}), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestTickets_UpdateAndReset(t *testing.T) {
	r, _ := newServer(t)
	seedDoctor(t, r, "dr-a")

	tk := decode[ticketDTO](t, do(t, r, http.MethodPost, "/doctors/dr-a/tickets", "", alice))
	do(t, r, http.MethodPost, "/doctors/dr-a/tickets", "", bob)

	w := do(t, r, http.MethodPatch, "/tickets/"+tk.ID, `{"category":"emergency"}`, nil)
	if got := decode[ticketDTO](t, w); w.Code != http.StatusOK || got.Category != "emergency" {
		t.Fatalf("patch = %d %+v", w.Code, got)
	}
	wantErr(t, do(t, r, http.MethodPatch, "/tickets/"+tk.ID, `{}`, nil), http.StatusBadRequest, string(services.KindValidation))
	wantErr(t, do(t, r, http.MethodPatch, "/tickets/"+tk.ID, `[`, nil), http.StatusBadRequest, ErrCodeBadRequest)
	wantErr(t, do(t, r, http.MethodPatch, "/tickets/missing", `{"notes":"x"}`, nil), http.StatusNotFound, string(services.KindNotFound))

	w = do(t, r, http.MethodPost, "/doctors/dr-a/reset", "", nil)
	if got := decode[ResetResponse](t, w); w.Code != http.StatusOK || got.Withdrawn != 2 || got.DoctorID != "dr-a" {
		t.Fatalf("reset = %d %+v", w.Code, got)
	}
}

// ---------- queue ----------

type queueDTO struct {
	Entries []ticketDTO    `json:"entries"`
	Counts  map[string]int `json:"counts"`
}

func TestQueue_OrderETagAndFilters(t *testing.T) {
	r, _ := newServer(t)
	seedDoctor(t, r, "dr-a")

	a := decode[ticketDTO](t, do(t, r, http.MethodPost, "/doctors/dr-a/tickets", "", alice))
	b := decode[ticketDTO](t, do(t, r, http.MethodPost, "/doctors/dr-a/tickets", `{"category":"emergency"}`, bob))

	w := do(t, r, http.MethodGet, "/queue?doctor_id=dr-a", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("queue = %d %s", w.Code, w.Body.String())
	}
	q := decode[queueDTO](t, w)
	if len(q.Entries) != 2 || q.Entries[0].ID != b.ID || q.Entries[1].ID != a.ID {
		t.Fatalf("emergency should lead: %+v", q.Entries)
	}
	if q.Entries[0].Position != 1 || q.Counts["waiting"] != 2 {
		t.Fatalf("positions/counts: %+v %v", q.Entries, q.Counts)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	w = do(t, r, http.MethodGet, "/queue?doctor_id=dr-a", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("If-None-Match = %d", w.Code)
	}

	// a state change invalidates the tag
	do(t, r, http.MethodPost, "/doctors/dr-a/call-next", "", nil)
	w = do(t, r, http.MethodGet, "/queue?doctor_id=dr-a&status=waiting", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("stale tag should miss, got %d", w.Code)
	}
	q = decode[queueDTO](t, w)
	if len(q.Entries) != 1 || q.Entries[0].ID != a.ID {
		t.Fatalf("status filter: %+v", q.Entries)
	}

	wantErr(t, do(t, r, http.MethodGet, "/queue?status=bogus", "", nil), http.StatusBadRequest, string(services.KindValidation))
}

func TestDoctors_UpsertAndList(t *testing.T) {
	r, _ := newServer(t)
	seedDoctor(t, r, "dr-a")
	if w := do(t, r, http.MethodPut, "/doctors/dr-b", `{"name":"B","active":false}`, nil); w.Code != http.StatusOK {
		t.Fatalf("upsert = %d", w.Code)
	}
	wantErr(t, do(t, r, http.MethodPut, "/doctors/bad%20id", "", nil), http.StatusBadRequest, string(services.KindValidation))

	type list struct {
		Doctors []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Active bool   `json:"active"`
		} `json:"doctors"`
	}
	all := decode[list](t, do(t, r, http.MethodGet, "/doctors", "", nil))
	if len(all.Doctors) != 2 {
		t.Fatalf("all doctors: %+v", all)
	}
	active := decode[list](t, do(t, r, http.MethodGet, "/doctors?active=true", "", nil))
	if len(active.Doctors) != 1 || active.Doctors[0].ID != "dr-a" || active.Doctors[0].Name != "Dr House" {
		t.Fatalf("active doctors: %+v", active)
	}
}

// ---------- assessments ----------

type assessmentDTO struct {
	Conversation struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"conversation"`
	Prompt *struct {
		Step string `json:"step"`
	} `json:"prompt"`
	Assessment *struct {
		RecommendedAction string  `json:"recommended_action"`
		UrgencyScore      float64 `json:"urgency_score"`
	} `json:"assessment"`
	Messages []struct {
		Sender string `json:"sender"`
	} `json:"messages"`
	Warnings []struct {
		Code string `json:"code"`
	} `json:"warnings"`
}

func TestAssessments_Flow(t *testing.T) {
	r, _ := newServer(t)

	wantErr(t, do(t, r, http.MethodPost, "/assessments", "", nil), http.StatusBadRequest, ErrCodeBadRequest)

	w := do(t, r, http.MethodPost, "/assessments", "", alice)
	if w.Code != http.StatusCreated {
		t.Fatalf("start = %d %s", w.Code, w.Body.String())
	}
	v := decode[assessmentDTO](t, w)
	if v.Prompt == nil || v.Prompt.Step != string(urgency.StepPainLevel) {
		t.Fatalf("first prompt: %+v", v.Prompt)
	}
	id := v.Conversation.ID

	// out of range: same question again, nothing completed
	w = do(t, r, http.MethodPost, "/assessments/"+id+"/answers", `{"level":11}`, nil)
	v = decode[assessmentDTO](t, w)
	if w.Code != http.StatusOK || v.Prompt == nil || v.Prompt.Step != string(urgency.StepPainLevel) || v.Conversation.Status != "pending" {
		t.Fatalf("rejected answer: %d %s", w.Code, w.Body.String())
	}
	if len(v.Warnings) != 1 || v.Warnings[0].Code != string(services.WarnDegradedAssessment) || v.Assessment == nil || v.Assessment.UrgencyScore != 5 {
		t.Fatalf("rejected answer warning/verdict: %s", w.Body.String())
	}

	w = do(t, r, http.MethodPost, "/assessments/"+id+"/answers", `{"level":9}`, nil)
	v = decode[assessmentDTO](t, w)
	if w.Code != http.StatusOK || v.Prompt == nil || v.Prompt.Step != string(urgency.StepUrgentSymptoms) {
		t.Fatalf("after pain: %d %+v", w.Code, v.Prompt)
	}

	// the open conversation is resumed, not duplicated
	w = do(t, r, http.MethodPost, "/assessments", "", alice)
	if got := decode[assessmentDTO](t, w); w.Code != http.StatusOK || got.Conversation.ID != id {
		t.Fatalf("resume start = %d %+v", w.Code, got.Conversation)
	}

	w = do(t, r, http.MethodPost, "/assessments/"+id+"/answers", `{"options":["chest_pain"]}`, nil)
	v = decode[assessmentDTO](t, w)
	if w.Code != http.StatusOK || v.Assessment == nil || v.Assessment.RecommendedAction != "consultation_immediate" {
		t.Fatalf("verdict: %d %s", w.Code, w.Body.String())
	}

	wantErr(t, do(t, r, http.MethodPost, "/assessments/"+id+"/answers", `{"level":3}`, nil), http.StatusConflict, string(services.KindInvalidTransition))
	wantErr(t, do(t, r, http.MethodPost, "/assessments/"+id+"/answers", `nope`, nil), http.StatusBadRequest, ErrCodeBadRequest)

	w = do(t, r, http.MethodGet, "/assessments/"+id, "", nil)
	v = decode[assessmentDTO](t, w)
	if w.Code != http.StatusOK || v.Conversation.Status != "completed" || len(v.Messages) == 0 {
		t.Fatalf("get = %d %+v", w.Code, v)
	}
	wantErr(t, do(t, r, http.MethodGet, "/assessments/missing", "", nil), http.StatusNotFound, string(services.KindNotFound))
}

func TestAssessments_ForeignTicket(t *testing.T) {
	r, _ := newServer(t)
	seedDoctor(t, r, "dr-a")
	tk := decode[ticketDTO](t, do(t, r, http.MethodPost, "/doctors/dr-a/tickets", "", bob))

	body := fmt.Sprintf(`{"ticket_id":%q}`, tk.ID)
	wantErr(t, do(t, r, http.MethodPost, "/assessments", body, alice), http.StatusBadRequest, string(services.KindValidation))
	if w := do(t, r, http.MethodPost, "/assessments", body, bob); w.Code != http.StatusCreated {
		t.Fatalf("own ticket = %d %s", w.Code, w.Body.String())
	}
}

// ---------- error mapping ----------

func TestWriteErr_KindToStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{&services.Error{Kind: services.KindValidation, Reason: "bad"}, 400, "validation_error", "bad"},
		{&services.Error{Kind: services.KindNotFound, Reason: "gone"}, 404, "not_found", "gone"},
		{&services.Error{Kind: services.KindNoWaitingTicket, Reason: "empty"}, 404, "no_waiting_ticket", "empty"},
		{&services.Error{Kind: services.KindInvalidTransition, Reason: "no"}, 409, "invalid_transition", "no"},
		{&services.Error{Kind: services.KindSlotOccupied, Reason: "busy"}, 409, "slot_occupied", "busy"},
		{&services.Error{Kind: services.KindAllocationFailed, Reason: "retry"}, 503, "allocation_failed", "retry"},
		{fmt.Errorf("wrapped: %w", &services.Error{Kind: services.KindServiceUnavailable, Reason: "db down", Err: errors.New("dial")}),
			503, "service_unavailable", "service temporarily unavailable"},
		{errors.New("plain"), 500, ErrCodeInternal, "internal server error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		writeErr(c, tc.err)
		if w.Code != tc.status {
			t.Fatalf("%v: status=%d want %d", tc.err, w.Code, tc.status)
		}
		er := decode[ErrorResponse](t, w)
		if er.Code != tc.code || er.Message != tc.msg {
			t.Fatalf("%v: body=%+v", tc.err, er)
		}
		if tc.status >= 500 && len(c.Errors) == 0 {
			t.Fatalf("%v: 5xx must be attached to the context", tc.err)
		}
	}
}
