// Package urgency implements the guided intake used to estimate how urgent
// a patient's situation is. It is a fixed decision tree: every node is a
// Step, and each Step has one entry in the transition table that validates
// the structured answer and chooses the next Step. The engine is pure; the
// caller persists State between answers.
//
// Tree:
//
//	pain_level --(>=8)--> urgent_symptoms --(urgent symptom)--> done (immediate)
//	           |                         `--(otherwise)-------> medical_context
//	           |--(5..7)-> duration ------------------------> medical_context
//	           `--(<5)---> stress_level --(>=7: info)-------> medical_context
//	medical_context --> done (score)
//
// Score at the terminal node:
//
//	pain × symptomFactor × durationFactor × contextFactor × (1 + stress/20)
//
// clamped to [1,10]. Factors of skipped branches are 1.0.
//
// Errors never escape Submit. A malformed answer is rejected: the state is
// left as it was, the pending question is asked again and the neutral
// assessment (5.0, teleconsultation, confidence 0.3) is attached as a
// provisional, degraded verdict. An internal fault ends the tree with that
// neutral verdict.
package urgency

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tbourn/go-clinic-queue/internal/domain"
)

// Step is a node of the decision tree.
type Step string

const (
	StepPainLevel      Step = "pain_level"
	StepUrgentSymptoms Step = "urgent_symptoms"
	StepDuration       Step = "duration"
	StepStressLevel    Step = "stress_level"
	StepMedicalContext Step = "medical_context"
	StepDone           Step = "done"
)

// Thresholds on the urgency score.
const (
	ThresholdImmediate = 8.5
	ThresholdHigh      = 6.5
	ThresholdMedium    = 4.0

	highStressLevel = 7
	urgentPainLevel = 8
	moderatePain    = 5
	symptomFactor   = 1.5
	// Selected context factors multiply; the product is capped at the
	// ceiling a single option may carry.
	maxContextFactor = 1.3
	neutralScore     = 5.0
	neutralConf      = 0.3
)

// Answer is a patient's structured reply. Which field is read depends on
// the current Step: Level for scales, Options for multi-select, Choice for
// single-select. Text is the free-form echo stored with the message.
type Answer struct {
	Level   *int     `json:"level,omitempty"`
	Options []string `json:"options,omitempty"`
	Choice  string   `json:"choice,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// State is the persisted progress of one conversation.
type State struct {
	Step     Step     `json:"step"`
	Pain     int      `json:"pain,omitempty"`
	Stress   *int     `json:"stress,omitempty"`
	Symptoms []string `json:"symptoms,omitempty"`
	Duration string   `json:"duration,omitempty"`
	Context  []string `json:"context,omitempty"`
	Answered int      `json:"answered"`
}

// PromptKind tells the client how to render a question.
type PromptKind string

const (
	KindScale  PromptKind = "scale"
	KindMulti  PromptKind = "multi_select"
	KindSingle PromptKind = "single_select"
)

// Prompt is the next question to ask.
type Prompt struct {
	Step    Step       `json:"step"`
	Kind    PromptKind `json:"kind"`
	Text    string     `json:"text"`
	Min     int        `json:"min,omitempty"`
	Max     int        `json:"max,omitempty"`
	Options []Option   `json:"options,omitempty"`
}

// Result is the outcome of one Submit call. A terminal Result carries the
// Assessment and no Prompt. A rejected Result carries both: the repeated
// question and the provisional neutral verdict.
type Result struct {
	State      State
	Prompt     *Prompt
	Info       string
	Assessment *domain.Assessment
	Degraded   bool
	Rejected   bool
	Reason     string
}

// Done reports whether the conversation reached a terminal node.
func (r Result) Done() bool { return r.State.Step == StepDone && r.Assessment != nil }

// errMalformed marks answers that do not fit the current step.
var errMalformed = errors.New("malformed answer")

type transition struct {
	prompt func(e *Engine) Prompt
	accept func(e *Engine, st *State, a Answer) (next Step, info string, err error)
}

var transitions = map[Step]transition{
	StepPainLevel: {
		prompt: func(*Engine) Prompt {
			return Prompt{Step: StepPainLevel, Kind: KindScale, Min: 1, Max: 10,
				Text: "Sur une échelle de 1 à 10, quel est votre niveau de douleur ?"}
		},
		accept: func(_ *Engine, st *State, a Answer) (Step, string, error) {
			lvl, err := level(a)
			if err != nil {
				return "", "", err
			}
			st.Pain = lvl
			switch {
			case lvl >= urgentPainLevel:
				return StepUrgentSymptoms, "", nil
			case lvl >= moderatePain:
				return StepDuration, "", nil
			default:
				return StepStressLevel, "", nil
			}
		},
	},
	StepUrgentSymptoms: {
		prompt: func(e *Engine) Prompt {
			opts := make([]Option, 0, len(e.catalog.Symptoms))
			for _, s := range e.catalog.Symptoms {
				opts = append(opts, Option{ID: s.ID, Label: s.Label})
			}
			return Prompt{Step: StepUrgentSymptoms, Kind: KindMulti, Options: opts,
				Text: "Présentez-vous l'un de ces symptômes ? (sélectionnez tout ce qui s'applique)"}
		},
		accept: func(e *Engine, st *State, a Answer) (Step, string, error) {
			ids := a.Options
			if len(ids) == 0 && a.Choice != "" {
				ids = []string{a.Choice}
			}
			urgent := false
			for _, id := range ids {
				s, ok := e.symptoms[id]
				if !ok {
					return "", "", fmt.Errorf("%w: unknown symptom %q", errMalformed, id)
				}
				urgent = urgent || s.Severity == SeverityUrgent
			}
			st.Symptoms = dedupe(ids)
			if urgent {
				return StepDone, "", nil
			}
			return StepMedicalContext, "", nil
		},
	},
	StepDuration: {
		prompt: func(e *Engine) Prompt {
			return Prompt{Step: StepDuration, Kind: KindSingle, Options: e.catalog.Durations,
				Text: "Depuis combien de temps ressentez-vous ces symptômes ?"}
		},
		accept: func(e *Engine, st *State, a Answer) (Step, string, error) {
			if _, ok := e.durations[a.Choice]; !ok {
				return "", "", fmt.Errorf("%w: unknown duration %q", errMalformed, a.Choice)
			}
			st.Duration = a.Choice
			return StepMedicalContext, "", nil
		},
	},
	StepStressLevel: {
		prompt: func(*Engine) Prompt {
			return Prompt{Step: StepStressLevel, Kind: KindScale, Min: 1, Max: 10,
				Text: "Sur une échelle de 1 à 10, quel est votre niveau de stress ou d'anxiété ?"}
		},
		accept: func(_ *Engine, st *State, a Answer) (Step, string, error) {
			lvl, err := level(a)
			if err != nil {
				return "", "", err
			}
			st.Stress = &lvl
			info := ""
			if lvl >= highStressLevel {
				info = "Votre niveau de stress est élevé. Prenez le temps de respirer calmement, " +
					"l'équipe médicale est informée de votre situation."
			}
			return StepMedicalContext, info, nil
		},
	},
	StepMedicalContext: {
		prompt: func(e *Engine) Prompt {
			return Prompt{Step: StepMedicalContext, Kind: KindMulti, Options: e.catalog.Contexts,
				Text: "Avez-vous l'un des antécédents suivants ?"}
		},
		accept: func(e *Engine, st *State, a Answer) (Step, string, error) {
			ids := a.Options
			if len(ids) == 0 && a.Choice != "" {
				ids = []string{a.Choice}
			}
			if len(ids) == 0 {
				return "", "", fmt.Errorf("%w: medical context required", errMalformed)
			}
			ids = dedupe(ids)
			for _, id := range ids {
				if _, ok := e.contexts[id]; !ok {
					return "", "", fmt.Errorf("%w: unknown context %q", errMalformed, id)
				}
				if id == ContextNone && len(ids) > 1 {
					return "", "", fmt.Errorf("%w: %q cannot be combined", errMalformed, ContextNone)
				}
			}
			st.Context = ids
			return StepDone, "", nil
		},
	},
}

// Engine evaluates answers against a Catalog. It is safe for concurrent use.
type Engine struct {
	catalog   Catalog
	symptoms  map[string]Symptom
	durations map[string]float64
	contexts  map[string]float64
}

// New builds an engine over c.
func New(c Catalog) (*Engine, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		catalog:   c,
		symptoms:  make(map[string]Symptom, len(c.Symptoms)),
		durations: make(map[string]float64, len(c.Durations)),
		contexts:  make(map[string]float64, len(c.Contexts)),
	}
	for _, s := range c.Symptoms {
		e.symptoms[s.ID] = s
	}
	for _, d := range c.Durations {
		e.durations[d.ID] = d.Factor
	}
	for _, o := range c.Contexts {
		e.contexts[o.ID] = o.Factor
	}
	return e, nil
}

// MustNew is New for the built-in catalog and tests.
func MustNew(c Catalog) *Engine {
	e, err := New(c)
	if err != nil {
		panic(err)
	}
	return e
}

// Start returns the initial state and first question.
func (e *Engine) Start() (State, Prompt) {
	st := State{Step: StepPainLevel}
	return st, transitions[StepPainLevel].prompt(e)
}

// PromptFor returns the question for the state's current step, or nil once
// the tree is done.
func (e *Engine) PromptFor(st State) *Prompt {
	tr, ok := transitions[st.Step]
	if !ok {
		return nil
	}
	p := tr.prompt(e)
	return &p
}

// Submit applies one answer to st. It never panics and never returns an
// error: a malformed answer yields a rejected Result that leaves st as it
// was, and an internal fault yields a degraded, completed Result.
func (e *Engine) Submit(st State, a Answer) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = degraded(st, fmt.Sprintf("internal fault: %v", r))
		}
	}()

	tr, ok := transitions[st.Step]
	if !ok {
		return degraded(st, fmt.Sprintf("unexpected step %q", st.Step))
	}
	next := st
	next.Symptoms = append([]string(nil), st.Symptoms...)
	next.Context = append([]string(nil), st.Context...)

	step, info, err := tr.accept(e, &next, a)
	if err != nil {
		return e.rejected(st, err.Error())
	}
	next.Answered++
	next.Step = step

	if step == StepDone {
		as := e.assess(next)
		return Result{State: next, Info: info, Assessment: &as}
	}
	p := transitions[step].prompt(e)
	return Result{State: next, Prompt: &p, Info: info}
}

// assess computes the terminal verdict for a finished state.
func (e *Engine) assess(st State) domain.Assessment {
	sf, urgent := 1.0, false
	for _, id := range st.Symptoms {
		switch e.symptoms[id].Severity {
		case SeverityUrgent:
			urgent = true
			sf = symptomFactor
		case SeverityHigh:
			sf = symptomFactor
		}
	}
	df := 1.0
	if st.Duration != "" {
		df = e.durations[st.Duration]
	}
	cf := 1.0
	for _, id := range st.Context {
		cf *= e.contexts[id]
	}
	cf = clamp(cf, 1, maxContextFactor)
	stress := 0
	if st.Stress != nil {
		stress = *st.Stress
	}
	stf := 1 + float64(stress)/20

	score := clamp(float64(st.Pain)*sf*df*cf*stf, 1, 10)
	// Persisted states are trusted only this far: an urgent symptom is
	// immediate whatever pain was recorded with it.
	if urgent && score < ThresholdImmediate {
		score = ThresholdImmediate
	}
	score = round2(score)

	band, action := Classify(score)
	reasoning := e.reasoning(st, score, urgent)
	return domain.Assessment{
		UrgencyScore:      score,
		UrgencyBand:       band,
		RecommendedAction: action,
		Reasoning:         reasoning,
		ConfidenceScore:   Confidence(st.Answered),
		Factors: map[string]float64{
			"pain":     float64(st.Pain),
			"symptoms": sf,
			"duration": df,
			"context":  round4(cf),
			"stress":   round2(stf),
		},
	}
}

func (e *Engine) reasoning(st State, score float64, urgent bool) string {
	parts := []string{fmt.Sprintf("douleur %d/10", st.Pain)}
	if urgent {
		parts = append(parts, "symptôme urgent signalé")
	} else if len(st.Symptoms) > 0 {
		parts = append(parts, "symptômes: "+strings.Join(st.Symptoms, ", "))
	}
	if st.Duration != "" {
		parts = append(parts, "durée: "+st.Duration)
	}
	if st.Stress != nil {
		parts = append(parts, fmt.Sprintf("stress %d/10", *st.Stress))
	}
	if len(st.Context) > 0 {
		parts = append(parts, "contexte: "+strings.Join(st.Context, ", "))
	}
	return fmt.Sprintf("Score %.1f (%s)", score, strings.Join(parts, "; "))
}

// Classify maps a score to its band and recommended action. Scores at or
// above ThresholdImmediate always map to consultation_immediate.
func Classify(score float64) (band string, action domain.RecommendedAction) {
	switch {
	case score >= ThresholdImmediate:
		return "immediate", domain.ActionConsultationImmediate
	case score >= ThresholdHigh:
		return "high", domain.ActionConsultationImmediate
	case score >= ThresholdMedium:
		return "medium", domain.ActionTeleconsultation
	default:
		return "low", domain.ActionWait
	}
}

// Confidence grows with the number of answered questions: 0.7 base, +0.2
// from three answers, +0.1 from four, capped at 0.95.
func Confidence(answered int) float64 {
	c := 0.7
	if answered >= 3 {
		c += 0.2
	}
	if answered >= 4 {
		c += 0.1
	}
	return round2(math.Min(c, 0.95))
}

// Neutral is the fallback verdict used when an answer cannot be evaluated.
func Neutral(reason string) domain.Assessment {
	return domain.Assessment{
		UrgencyScore:      neutralScore,
		UrgencyBand:       "medium",
		RecommendedAction: domain.ActionTeleconsultation,
		Reasoning:         "Évaluation par défaut: " + reason,
		ConfidenceScore:   neutralConf,
		Factors:           map[string]float64{},
		Degraded:          true,
	}
}

// rejected re-asks the current question and keeps st unchanged.
func (e *Engine) rejected(st State, reason string) Result {
	as := Neutral(reason)
	p := transitions[st.Step].prompt(e)
	return Result{State: st, Prompt: &p, Assessment: &as, Degraded: true, Rejected: true, Reason: reason}
}

func degraded(st State, reason string) Result {
	as := Neutral(reason)
	st.Step = StepDone
	return Result{State: st, Assessment: &as, Degraded: true, Reason: reason}
}

func level(a Answer) (int, error) {
	if a.Level == nil {
		return 0, fmt.Errorf("%w: level required", errMalformed)
	}
	if *a.Level < 1 || *a.Level > 10 {
		return 0, fmt.Errorf("%w: level %d outside 1..10", errMalformed, *a.Level)
	}
	return *a.Level, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
