package urgency

import (
	"errors"
	"fmt"
)

// Severity tags an entry of the urgent symptom checklist.
type Severity string

const (
	SeverityUrgent Severity = "urgent"
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Symptom is one checklist entry.
type Symptom struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

// Option is a discrete answer that carries a multiplicative factor.
type Option struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Factor float64 `json:"factor,omitempty"`
}

// ContextNone is the medical context option that excludes all others.
const ContextNone = "none"

// Catalog is the data behind the decision tree questions.
type Catalog struct {
	Symptoms  []Symptom
	Durations []Option
	Contexts  []Option
}

// DefaultCatalog returns the built-in symptom list, duration buckets and
// medical context factors.
func DefaultCatalog() Catalog {
	return Catalog{
		Symptoms: []Symptom{
			{ID: "chest_pain", Label: "Douleur thoracique", Severity: SeverityUrgent},
			{ID: "breathing_difficulty", Label: "Difficulté à respirer", Severity: SeverityUrgent},
			{ID: "loss_of_consciousness", Label: "Perte de connaissance", Severity: SeverityUrgent},
			{ID: "severe_bleeding", Label: "Saignement important", Severity: SeverityUrgent},
			{ID: "high_fever", Label: "Fièvre élevée (> 39°C)", Severity: SeverityHigh},
			{ID: "persistent_vomiting", Label: "Vomissements persistants", Severity: SeverityHigh},
			{ID: "severe_headache", Label: "Maux de tête sévères", Severity: SeverityHigh},
			{ID: "dizziness", Label: "Vertiges", Severity: SeverityMedium},
			{ID: "rash", Label: "Éruption cutanée", Severity: SeverityMedium},
		},
		// Shorter duration = higher multiplier, all within (0.8, 1.5].
		Durations: []Option{
			{ID: "less_than_hour", Label: "Moins d'une heure", Factor: 1.5},
			{ID: "few_hours", Label: "Quelques heures", Factor: 1.3},
			{ID: "one_to_three_days", Label: "1 à 3 jours", Factor: 1.1},
			{ID: "week", Label: "Environ une semaine", Factor: 0.9},
			{ID: "more_than_week", Label: "Plus d'une semaine", Factor: 0.85},
		},
		Contexts: []Option{
			{ID: "chronic_condition", Label: "Maladie chronique", Factor: 1.2},
			{ID: "medications", Label: "Traitement en cours", Factor: 1.1},
			{ID: "allergies", Label: "Allergies", Factor: 1.05},
			{ID: "recent_surgery", Label: "Chirurgie récente", Factor: 1.3},
			{ID: ContextNone, Label: "Aucun", Factor: 1.0},
		},
	}
}

// WithSymptoms returns a copy of c using symptoms as the checklist.
// An empty list keeps the current one.
func (c Catalog) WithSymptoms(symptoms []Symptom) Catalog {
	if len(symptoms) > 0 {
		c.Symptoms = append([]Symptom(nil), symptoms...)
	}
	return c
}

func (c Catalog) validate() error {
	if len(c.Symptoms) == 0 || len(c.Durations) == 0 || len(c.Contexts) == 0 {
		return errors.New("catalog needs symptoms, durations and contexts")
	}
	seen := map[string]bool{}
	for _, s := range c.Symptoms {
		if s.ID == "" || seen[s.ID] {
			return fmt.Errorf("symptom id %q empty or duplicated", s.ID)
		}
		seen[s.ID] = true
		switch s.Severity {
		case SeverityUrgent, SeverityHigh, SeverityMedium:
		default:
			return fmt.Errorf("symptom %q: unknown severity %q", s.ID, s.Severity)
		}
	}
	for _, d := range c.Durations {
		if d.Factor <= 0.8 || d.Factor > 1.5 {
			return fmt.Errorf("duration %q: factor %.2f outside (0.8, 1.5]", d.ID, d.Factor)
		}
	}
	hasNone := false
	for _, o := range c.Contexts {
		if o.Factor < 1.0 || o.Factor > 1.3 {
			return fmt.Errorf("context %q: factor %.2f outside [1.0, 1.3]", o.ID, o.Factor)
		}
		hasNone = hasNone || o.ID == ContextNone
	}
	if !hasNone {
		return errors.New(`context options must include "none"`)
	}
	return nil
}
