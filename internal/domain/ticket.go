package domain

import (
	"errors"
	"strings"
)

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	StatusWaiting        TicketStatus = "waiting"
	StatusInConsultation TicketStatus = "in_consultation"
	StatusFinished       TicketStatus = "finished"
	StatusWithdrawn      TicketStatus = "withdrawn"
)

// AllStatuses lists ticket statuses in queue display order.
var AllStatuses = []TicketStatus{StatusWaiting, StatusInConsultation, StatusFinished, StatusWithdrawn}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusInConsultation, StatusFinished, StatusWithdrawn:
		return true
	}
	return false
}

// Active reports whether the ticket still holds a place in the queue.
func (s TicketStatus) Active() bool {
	return s == StatusWaiting || s == StatusInConsultation
}

// ParseStatuses parses a comma separated status filter. An empty input
// yields nil (no filtering).
func ParseStatuses(raw string) ([]TicketStatus, error) {
	var out []TicketStatus
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		s := TicketStatus(p)
		if !s.Valid() {
			return nil, errors.New("unknown status " + p)
		}
		out = append(out, s)
	}
	return out, nil
}

// Category is the patient category used by the priority scorer.
type Category string

const (
	CategoryEmergency Category = "emergency"
	CategoryPriority  Category = "priority"
	CategoryRegular   Category = "regular"
	CategoryFollowup  Category = "followup"
)

// ParseCategory maps user input to a Category. Empty input means regular.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case "":
		return CategoryRegular, true
	case CategoryEmergency, CategoryPriority, CategoryRegular, CategoryFollowup:
		return c, true
	}
	return "", false
}

// Owner identifies who holds a ticket: an authenticated user or an
// anonymous session. Exactly one field must be set.
type Owner struct {
	UserID    string
	SessionID string
}

// Ref returns the single non-empty identifier.
func (o Owner) Ref() string {
	if o.UserID != "" {
		return o.UserID
	}
	return o.SessionID
}

// Valid reports whether exactly one identifier is set.
func (o Owner) Valid() bool {
	return (o.UserID == "") != (o.SessionID == "")
}

// Action is a ticket state machine event.
type Action string

const (
	ActionCall     Action = "call"
	ActionFinish   Action = "finish"
	ActionWithdraw Action = "withdraw"
	ActionResume   Action = "resume"
)

type transition struct {
	from []TicketStatus
	to   TicketStatus
}

// transitions is the complete ticket state machine. Creation always yields
// waiting and is not an Action.
var transitions = map[Action]transition{
	ActionCall:     {from: []TicketStatus{StatusWaiting}, to: StatusInConsultation},
	ActionFinish:   {from: []TicketStatus{StatusInConsultation}, to: StatusFinished},
	ActionWithdraw: {from: []TicketStatus{StatusWaiting}, to: StatusWithdrawn},
	ActionResume:   {from: []TicketStatus{StatusWithdrawn}, to: StatusWaiting},
}

// ErrIllegalTransition is returned by Apply when the action is not allowed
// from the current status.
var ErrIllegalTransition = errors.New("illegal transition")

// Apply resolves action against the current status. It returns the target
// status and noop=true when the ticket already sits in that target, so
// retried requests succeed without changes.
func Apply(action Action, current TicketStatus) (to TicketStatus, noop bool, err error) {
	tr, ok := transitions[action]
	if !ok {
		return current, false, ErrIllegalTransition
	}
	if current == tr.to {
		return current, true, nil
	}
	for _, f := range tr.from {
		if f == current {
			return tr.to, false, nil
		}
	}
	return current, false, ErrIllegalTransition
}

// CanTransition reports whether a ticket may move directly from one status
// to another through any action.
func CanTransition(from, to TicketStatus) bool {
	for _, tr := range transitions {
		if tr.to != to {
			continue
		}
		for _, f := range tr.from {
			if f == from {
				return true
			}
		}
	}
	return false
}
