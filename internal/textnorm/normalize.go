// Package textnorm canonicalizes free text for substring matching.
//
// Normalization strips diacritics, folds case, replaces every rune that is not
// a word character or whitespace with a space and collapses whitespace runs.
// A Normalizer may additionally fold domain synonyms after those steps.
package textnorm

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Synonym rewrites every literal occurrence of From with To.
type Synonym struct {
	From string `yaml:"from" mapstructure:"from"`
	To   string `yaml:"to" mapstructure:"to"`
}

// Normalizer applies base normalization followed by ordered synonym folding.
// The zero value performs base normalization only.
type Normalizer struct {
	synonyms []Synonym
}

// New builds a Normalizer. Synonym patterns are normalized up front and
// ordered longest first so a shorter pattern never shadows a longer one that
// contains it; equal lengths keep the configured order.
func New(synonyms []Synonym) *Normalizer {
	folded := make([]Synonym, 0, len(synonyms))
	for _, s := range synonyms {
		from := Normalize(s.From)
		if from == "" {
			continue
		}
		folded = append(folded, Synonym{From: from, To: Normalize(s.To)})
	}
	sort.SliceStable(folded, func(i, j int) bool {
		return len(folded[i].From) > len(folded[j].From)
	})
	return &Normalizer{synonyms: folded}
}

// Synonyms returns the folding rules in application order.
func (n *Normalizer) Synonyms() []Synonym {
	if n == nil {
		return nil
	}
	out := make([]Synonym, len(n.synonyms))
	copy(out, n.synonyms)
	return out
}

// Normalize runs base normalization and then folds synonyms.
func (n *Normalizer) Normalize(text string) string {
	out := Normalize(text)
	if n == nil || len(n.synonyms) == 0 || out == "" {
		return out
	}
	for _, s := range n.synonyms {
		out = strings.ReplaceAll(out, s.From, s.To)
	}
	return collapse(out)
}

// Normalize returns the canonical form of text. Empty input yields "".
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	// Lowercasing can reintroduce combining marks (U+0130), so marks are
	// stripped again afterwards to keep Normalize idempotent.
	lowered := removeMarks(strings.ToLower(removeMarks(text)))
	mapped := strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, lowered)
	return collapse(mapped)
}

// removeMarks decomposes runes and drops nonspacing marks. Transformers are
// stateful, so one is built per call.
func removeMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
