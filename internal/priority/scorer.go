// Package priority computes the ranking score of a waiting ticket. The score
// is a fixed linear model over five factors, each normalized to [0,10]:
//
//	urgency       0.40  latest assessment, adjusted by action and confidence
//	waiting_time  0.25  piecewise linear in minutes since WaitSince
//	category      0.15  5 × category multiplier
//	activity      0.10  recent patient messages, urgency words, fresh intake
//	history       0.10  risk conditions in notes or medical context
//
// Score is a pure function of its Input and the supplied clock reading, so
// identical inputs always produce the identical float and breakdown.
package priority

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/search"
)

// Weights are the factor weights of the linear model. They must be
// non-negative and sum to 1.
type Weights struct {
	Urgency     float64 `json:"urgency"`
	WaitingTime float64 `json:"waiting_time"`
	Category    float64 `json:"category"`
	Activity    float64 `json:"activity"`
	History     float64 `json:"history"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Urgency: 0.40, WaitingTime: 0.25, Category: 0.15, Activity: 0.10, History: 0.10}
}

// Validate checks the weights form a convex combination.
func (w Weights) Validate() error {
	sum := 0.0
	for _, x := range []float64{w.Urgency, w.WaitingTime, w.Category, w.Activity, w.History} {
		if x < 0 || math.IsNaN(x) {
			return errors.New("weights must be non-negative")
		}
		sum += x
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// Config parameterizes a Scorer.
type Config struct {
	Weights             Weights
	CategoryMultipliers map[domain.Category]float64
	RiskConditions      []string
	UrgencyKeywords     []string
}

// DefaultConfig returns the built-in weights, multipliers and word lists.
func DefaultConfig() Config {
	return Config{
		Weights: DefaultWeights(),
		CategoryMultipliers: map[domain.Category]float64{
			domain.CategoryEmergency: 2.0,
			domain.CategoryPriority:  1.5,
			domain.CategoryRegular:   1.0,
			domain.CategoryFollowup:  0.8,
		},
		RiskConditions:  DefaultRiskConditions,
		UrgencyKeywords: DefaultUrgencyKeywords,
	}
}

// Message is a patient message considered by the activity factor.
type Message struct {
	At   time.Time
	Text string
}

// Conversation is the scorer's view of the ticket's assessment dialogue.
type Conversation struct {
	StartedAt       time.Time
	Assessment      *domain.Assessment
	PatientMessages []Message
	MedicalContext  []string
}

// Input is everything Score reads about one ticket.
type Input struct {
	Category     domain.Category
	WaitSince    time.Time
	Notes        string
	Conversation *Conversation
}

// Scorer evaluates Inputs. It is immutable and safe for concurrent use.
type Scorer struct {
	cfg      Config
	risk     *search.Matcher
	keywords *search.Matcher
}

// New builds a Scorer. Missing multipliers fall back to the defaults.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	mult := DefaultConfig().CategoryMultipliers
	for k, v := range cfg.CategoryMultipliers {
		if v <= 0 {
			return nil, fmt.Errorf("category %q multiplier must be > 0", k)
		}
		mult[k] = v
	}
	cfg.CategoryMultipliers = mult
	return &Scorer{
		cfg:      cfg,
		risk:     search.NewMatcher(cfg.RiskConditions, search.WithStopwords(stopwords)),
		keywords: search.NewMatcher(cfg.UrgencyKeywords, search.WithStopwords(stopwords)),
	}, nil
}

// MustNew is New that panics on invalid configuration.
func MustNew(cfg Config) *Scorer {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Weights returns the active weights.
func (s *Scorer) Weights() Weights { return s.cfg.Weights }

// Score returns the weighted score in [0,10] and its breakdown.
func (s *Scorer) Score(in Input, now time.Time) (float64, domain.PriorityFactors) {
	f := domain.PriorityFactors{}
	f.Urgency, f.UrgencySource = s.urgency(in.Conversation)
	f.WaitMinutes = round2(math.Max(0, now.Sub(in.WaitSince).Minutes()))
	f.WaitingTime = WaitingFactor(f.WaitMinutes)
	f.Category = s.category(in.Category)
	f.Activity = s.activity(in.Conversation, now)
	f.History = s.history(in)

	w := s.cfg.Weights
	total := w.Urgency*f.Urgency +
		w.WaitingTime*f.WaitingTime +
		w.Category*f.Category +
		w.Activity*f.Activity +
		w.History*f.History
	return round4(clamp(total, 0, 10)), f
}

func (s *Scorer) urgency(c *Conversation) (float64, string) {
	if c == nil || c.Assessment == nil {
		return 5.0, "neutral"
	}
	a := c.Assessment
	mult := 1.0
	switch a.RecommendedAction {
	case domain.ActionConsultationImmediate:
		mult = 1.3
	case domain.ActionTeleconsultation:
		mult = 1.1
	case domain.ActionWait:
		mult = 0.9
	}
	conf := clamp(a.ConfidenceScore, 0, 1)
	return round2(clamp(a.UrgencyScore*mult*(0.7+0.3*conf), 1, 10)), "assessment"
}

// WaitingFactor maps elapsed minutes onto [3,10]: 0–30 → 3–5, 30–60 → 5–7,
// 60–120 → 7–10, then saturates at 10.
func WaitingFactor(minutes float64) float64 {
	m := math.Max(0, minutes)
	var v float64
	switch {
	case m <= 30:
		v = 3 + 2*m/30
	case m <= 60:
		v = 5 + 2*(m-30)/30
	case m <= 120:
		v = 7 + 3*(m-60)/60
	default:
		v = 10
	}
	return round2(v)
}

func (s *Scorer) category(c domain.Category) float64 {
	mult, ok := s.cfg.CategoryMultipliers[c]
	if !ok {
		mult = 1.0
	}
	return round2(clamp(5*mult, 0, 10))
}

const (
	activityWindow = 30 * time.Minute
	freshIntake    = 15 * time.Minute
)

func (s *Scorer) activity(c *Conversation, now time.Time) float64 {
	v := 5.0
	if c == nil {
		return v
	}
	recent := 0
	texts := make([]string, 0, len(c.PatientMessages))
	for _, m := range c.PatientMessages {
		if !m.At.Before(now.Add(-activityWindow)) && !m.At.After(now) {
			recent++
		}
		texts = append(texts, m.Text)
	}
	switch {
	case recent >= 6:
		v += 2
	case recent >= 3:
		v++
	}
	if s.keywords.Any(texts...) {
		v++
	}
	if !c.StartedAt.IsZero() && now.Sub(c.StartedAt) < freshIntake && !c.StartedAt.After(now) {
		v++
	}
	return clamp(v, 1, 10)
}

func (s *Scorer) history(in Input) float64 {
	v := 5.0
	risky := s.risk.Any(in.Notes)
	if !risky && in.Conversation != nil {
		for _, id := range in.Conversation.MedicalContext {
			if id == "chronic_condition" || id == "recent_surgery" {
				risky = true
				break
			}
		}
	}
	if risky {
		v += 1.5
	}
	return clamp(v, 0, 10)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
