package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is the optional scoring profile read from PRIORITY_PROFILE.
// Zero-valued sections mean "keep the built-in defaults".
//
// Example:
//
//	weights:
//	  urgency: 0.40
//	  waiting_time: 0.25
//	  category: 0.15
//	  activity: 0.10
//	  history: 0.10
//	category_multipliers:
//	  emergency: 2.0
//	risk_conditions: [diabetes, asthma]
//	symptoms:
//	  - id: chest_pain
//	    label: Chest pain
//	    severity: urgent
type Profile struct {
	Weights             *ProfileWeights    `yaml:"weights"`
	CategoryMultipliers map[string]float64 `yaml:"category_multipliers"`
	RiskConditions      []string           `yaml:"risk_conditions"`
	UrgencyKeywords     []string           `yaml:"urgency_keywords"`
	Symptoms            []ProfileSymptom   `yaml:"symptoms"`
}

// ProfileWeights mirrors the five priority factor weights.
type ProfileWeights struct {
	Urgency     float64 `yaml:"urgency"`
	WaitingTime float64 `yaml:"waiting_time"`
	Category    float64 `yaml:"category"`
	Activity    float64 `yaml:"activity"`
	History     float64 `yaml:"history"`
}

// ProfileSymptom is one entry of the urgent symptom checklist.
type ProfileSymptom struct {
	ID       string `yaml:"id"`
	Label    string `yaml:"label"`
	Severity string `yaml:"severity"` // urgent|high|medium
}

// LoadProfile reads and validates a YAML scoring profile. An empty path
// returns an empty profile.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read priority profile: %w", err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("parse priority profile %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return Profile{}, fmt.Errorf("priority profile %s: %w", path, err)
	}
	return p, nil
}

func (p Profile) validate() error {
	if w := p.Weights; w != nil {
		for _, x := range []float64{w.Urgency, w.WaitingTime, w.Category, w.Activity, w.History} {
			if x < 0 {
				return errors.New("weights must be >= 0")
			}
		}
	}
	for k, m := range p.CategoryMultipliers {
		if m <= 0 {
			return fmt.Errorf("category multiplier %q must be > 0", k)
		}
	}
	seen := make(map[string]struct{}, len(p.Symptoms))
	for _, s := range p.Symptoms {
		if strings.TrimSpace(s.ID) == "" {
			return errors.New("symptom id must not be empty")
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate symptom id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		switch s.Severity {
		case "urgent", "high", "medium":
		default:
			return fmt.Errorf("symptom %q: severity must be urgent, high or medium", s.ID)
		}
	}
	return nil
}
