// Package queueview orders and filters tickets for display. It is read-only:
// Build copies what it needs and never touches the input slice or storage.
package queueview

import (
	"sort"

	"github.com/tbourn/go-clinic-queue/internal/domain"
)

// Filter narrows the view. Zero values mean "all".
type Filter struct {
	DoctorID string
	Statuses []domain.TicketStatus
	// HistoryLimit caps finished and withdrawn entries; <= 0 keeps all.
	HistoryLimit int
}

// Entry is one row of the view.
type Entry struct {
	domain.Ticket
	// Position is the 1-based rank among the doctor's waiting tickets,
	// 0 for every other status.
	Position    int  `json:"position,omitempty"`
	Highlighted bool `json:"highlighted,omitempty"`
}

// View is the ordered queue plus per-status counts. Counts cover every
// ticket of the selected doctor(s), independent of the status filter.
type View struct {
	DoctorID string                      `json:"doctor_id,omitempty"`
	Entries  []Entry                     `json:"entries"`
	Counts   map[domain.TicketStatus]int `json:"counts"`
}

// class ranks statuses for display: waiting, in consultation, then history.
func class(s domain.TicketStatus) int {
	switch s {
	case domain.StatusWaiting:
		return 0
	case domain.StatusInConsultation:
		return 1
	default:
		return 2
	}
}

// WaitingLess is the call order: priority desc, then created_at asc, then id.
func WaitingLess(a, b domain.Ticket) bool {
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func less(a, b domain.Ticket) bool {
	ca, cb := class(a.Status), class(b.Status)
	if ca != cb {
		return ca < cb
	}
	switch ca {
	case 0:
		return WaitingLess(a, b)
	case 1:
		if a.DoctorID != b.DoctorID {
			return a.DoctorID < b.DoctorID
		}
		return a.ID < b.ID
	default:
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	}
}

// Build returns the ordered, filtered view of tickets.
func Build(tickets []domain.Ticket, f Filter) View {
	v := View{DoctorID: f.DoctorID, Counts: make(map[domain.TicketStatus]int, len(domain.AllStatuses))}
	for _, s := range domain.AllStatuses {
		v.Counts[s] = 0
	}

	rows := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if f.DoctorID != "" && t.DoctorID != f.DoctorID {
			continue
		}
		v.Counts[t.Status]++
		rows = append(rows, t)
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })

	want := statusSet(f.Statuses)
	positions := map[string]int{}
	history := 0
	v.Entries = make([]Entry, 0, len(rows))
	for _, t := range rows {
		e := Entry{Ticket: t}
		switch t.Status {
		case domain.StatusWaiting:
			positions[t.DoctorID]++
			e.Position = positions[t.DoctorID]
		case domain.StatusInConsultation:
			e.Highlighted = true
		}
		if want != nil && !want[t.Status] {
			continue
		}
		if class(t.Status) == 2 {
			if f.HistoryLimit > 0 && history >= f.HistoryLimit {
				continue
			}
			history++
		}
		v.Entries = append(v.Entries, e)
	}
	return v
}

// Waiting returns only the waiting entries of v, in call order.
func (v View) Waiting() []Entry {
	var out []Entry
	for _, e := range v.Entries {
		if e.Status == domain.StatusWaiting {
			out = append(out, e)
		}
	}
	return out
}

func statusSet(ss []domain.TicketStatus) map[domain.TicketStatus]bool {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[domain.TicketStatus]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
