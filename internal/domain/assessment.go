package domain

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// ConversationStatus is the lifecycle of an assessment conversation.
type ConversationStatus string

const (
	ConversationPending    ConversationStatus = "pending"
	ConversationInProgress ConversationStatus = "in_progress"
	ConversationCompleted  ConversationStatus = "completed"
)

// Sender is the author of a conversation message.
type Sender string

const (
	SenderPatient   Sender = "patient"
	SenderAssistant Sender = "assistant"
	SenderStaff     Sender = "staff"
)

// RecommendedAction is the urgency engine's advice.
type RecommendedAction string

const (
	ActionConsultationImmediate RecommendedAction = "consultation_immediate"
	ActionTeleconsultation      RecommendedAction = "teleconsultation"
	ActionWait                  RecommendedAction = "attendre"
)

// Assessment is the structured verdict of a completed conversation.
// RecommendedAction is always consistent with UrgencyScore thresholds.
type Assessment struct {
	UrgencyScore      float64            `json:"urgency_score"`
	UrgencyBand       string             `json:"urgency_band"`
	RecommendedAction RecommendedAction  `json:"recommended_action"`
	Reasoning         string             `json:"reasoning"`
	ConfidenceScore   float64            `json:"confidence_score"`
	Factors           map[string]float64 `json:"factors"`
	Degraded          bool               `json:"degraded,omitempty"`
}

// SetAssessment stores a in the conversation's JSON column.
func (c *Conversation) SetAssessment(a Assessment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	c.Assessment = datatypes.JSON(raw)
	return nil
}

// GetAssessment decodes the stored assessment. ok is false when the
// conversation has none yet.
func (c Conversation) GetAssessment() (a Assessment, ok bool, err error) {
	if len(c.Assessment) == 0 || string(c.Assessment) == "null" {
		return a, false, nil
	}
	if err := json.Unmarshal(c.Assessment, &a); err != nil {
		return a, false, err
	}
	return a, true, nil
}

// PriorityFactors is the explainable breakdown stored with each ticket
// score. Every factor is normalized to [0,10] before weighting.
type PriorityFactors struct {
	Urgency       float64 `json:"urgency"`
	WaitingTime   float64 `json:"waiting_time"`
	Category      float64 `json:"category"`
	Activity      float64 `json:"activity"`
	History       float64 `json:"history"`
	UrgencySource string  `json:"urgency_source"` // assessment|neutral
	WaitMinutes   float64 `json:"wait_minutes"`
}

// SetPriority stores a freshly computed score on the ticket.
func (t *Ticket) SetPriority(score float64, f PriorityFactors) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	t.PriorityScore = score
	t.PriorityFactors = datatypes.JSON(raw)
	return nil
}

// Factors decodes the stored priority breakdown.
func (t Ticket) Factors() (PriorityFactors, error) {
	var f PriorityFactors
	if len(t.PriorityFactors) == 0 {
		return f, nil
	}
	err := json.Unmarshal(t.PriorityFactors, &f)
	return f, err
}
