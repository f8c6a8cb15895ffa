// Package matcher finds configured role and topic phrases in document text.
package matcher

import (
	"strings"

	"github.com/JakeFAU/concurso-crawler/internal/keywords"
	"github.com/JakeFAU/concurso-crawler/internal/textnorm"
)

type phrase struct {
	raw        string
	normalized string
}

// Matcher tests a fixed, ordered phrase list against normalized text. The
// normalized form of every phrase is computed once at construction.
type Matcher struct {
	norm    *textnorm.Normalizer
	phrases []phrase
}

// New builds a Matcher over phrases. Repeated phrases are kept once, and
// phrases that normalize to nothing are dropped since they would match any
// text.
func New(phrases []string, norm *textnorm.Normalizer) *Matcher {
	m := &Matcher{norm: norm, phrases: make([]phrase, 0, len(phrases))}
	seen := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		if _, dup := seen[p]; dup {
			continue
		}
		n := norm.Normalize(p)
		if n == "" {
			continue
		}
		seen[p] = struct{}{}
		m.phrases = append(m.phrases, phrase{raw: p, normalized: n})
	}
	return m
}

// Len reports how many phrases the matcher tests.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.phrases)
}

// Find normalizes text once and returns the configured phrases it contains,
// in configured order and without duplicates. A nil Matcher matches nothing.
func (m *Matcher) Find(text string) []string {
	if m == nil || len(m.phrases) == 0 {
		return []string{}
	}
	return m.FindNormalized(m.norm.Normalize(text))
}

// FindNormalized is Find for text already passed through the same normalizer.
// Phrases match whole words only, so a folded "ia" never hits "secretaria".
func (m *Matcher) FindNormalized(normalized string) []string {
	out := []string{}
	if m == nil || normalized == "" {
		return out
	}
	padded := " " + normalized + " "
	for _, p := range m.phrases {
		if strings.Contains(padded, " "+p.normalized+" ") {
			out = append(out, p.raw)
		}
	}
	return out
}

// Result is the outcome of scanning one document.
type Result struct {
	Roles  []string
	Topics []string
}

// Relevant reports whether the scan justifies a record: any role match, or
// at least threshold topic matches when threshold is positive.
func (r Result) Relevant(threshold int) bool {
	if len(r.Roles) > 0 {
		return true
	}
	return threshold > 0 && len(r.Topics) >= threshold
}

// Scanner pairs the role matcher with the optional topic matcher so a
// document is normalized only once per scan.
type Scanner struct {
	norm           *textnorm.Normalizer
	roles          *Matcher
	topics         *Matcher
	topicThreshold int
}

// NewScanner builds the matchers for cfg. Topics are matched only when
// topicThreshold is positive.
func NewScanner(cfg keywords.Config, topicThreshold int) *Scanner {
	norm := cfg.Normalizer()
	s := &Scanner{
		norm:           norm,
		roles:          New(cfg.Roles, norm),
		topicThreshold: topicThreshold,
	}
	if topicThreshold > 0 {
		s.topics = New(cfg.Topics, norm)
	}
	return s
}

// Scan matches roles and topics against text.
func (s *Scanner) Scan(text string) Result {
	normalized := s.norm.Normalize(text)
	res := Result{
		Roles:  s.roles.FindNormalized(normalized),
		Topics: []string{},
	}
	if s.topics != nil {
		res.Topics = s.topics.FindNormalized(normalized)
	}
	return res
}

// Relevant applies the configured topic threshold to res.
func (s *Scanner) Relevant(res Result) bool {
	return res.Relevant(s.topicThreshold)
}
