// Package search provides a small, deterministic, concurrency-safe keyword
// matcher over free text. It is used to spot urgency words in patient
// messages and known risk conditions in staff notes.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Unicode-aware tokenization that folds case and strips accents, so
//     "Fièvre", "FIEVRE" and "fievre" are the same token
//   - Optional stop-word removal, applied to terms and text alike
//   - Immutable after construction (safe for concurrent use)
//
// A term may span several words; it matches when its tokens appear
// contiguously in the text once stop words are removed.
package search

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minTermRunes int
	stopwords    map[string]struct{}
}

func defaultConfig() config {
	return config{minTermRunes: 2}
}

// WithMinTermRunes ignores terms shorter than n runes after folding.
func WithMinTermRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minTermRunes = n
		}
	}
}

// WithStopwords drops the given words from both terms and scanned text.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = Fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type term struct {
	raw    string
	tokens []string
}

// Matcher finds which of a fixed list of terms occur in a text.
type Matcher struct {
	cfg   config
	terms []term
}

// NewMatcher builds a Matcher over terms. Duplicate and empty terms are
// dropped; declaration order is kept for Match results.
func NewMatcher(terms []string, opts ...Option) *Matcher {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	m := &Matcher{cfg: cfg}
	seen := make(map[string]struct{}, len(terms))
	for _, raw := range terms {
		toks := tokenize(raw, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		key := strings.Join(toks, " ")
		if utf8.RuneCountInString(key) < cfg.minTermRunes {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		m.terms = append(m.terms, term{raw: strings.TrimSpace(raw), tokens: toks})
	}
	return m
}

// Len returns the number of usable terms.
func (m *Matcher) Len() int { return len(m.terms) }

// Match returns the terms found in text, in declaration order.
func (m *Matcher) Match(text string) []string {
	if m == nil || len(m.terms) == 0 {
		return nil
	}
	toks := tokenize(text, m.cfg.stopwords)
	if len(toks) == 0 {
		return nil
	}
	var out []string
	for _, t := range m.terms {
		if containsSeq(toks, t.tokens) {
			out = append(out, t.raw)
		}
	}
	return out
}

// Any reports whether at least one term occurs in any of texts.
func (m *Matcher) Any(texts ...string) bool {
	if m == nil || len(m.terms) == 0 {
		return false
	}
	for _, s := range texts {
		toks := tokenize(s, m.cfg.stopwords)
		for _, t := range m.terms {
			if containsSeq(toks, t.tokens) {
				return true
			}
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// Fold lower-cases s with Unicode case folding and strips combining marks.
func Fold(s string) string {
	// transform chains and casers are stateful; build them per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

func tokenize(s string, stop map[string]struct{}) []string {
	words := wordRE.FindAllString(Fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := words[:0]
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out = append(out, w)
	}
	return out
}

func containsSeq(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
