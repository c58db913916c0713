package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// ConstraintAttr is the token attribute a constraint compares against
type ConstraintAttr string

const (
	// AttrLower compares the lower-cased token text for exact equality
	AttrLower ConstraintAttr = "LOWER"
)

var (
	// ErrEmptyLabel is returned when a rule would carry no category label
	ErrEmptyLabel = errors.New("empty rule label")

	// ErrNoConstraints is returned when a rule would match zero tokens
	ErrNoConstraints = errors.New("rule has no token constraints")
)

// TokenConstraint restricts a single token position of a match
type TokenConstraint struct {
	Attr  ConstraintAttr `json:"attr"`
	Value string         `json:"value"`
}

// MarshalJSON emits the constraint in token-pattern form, e.g. {"LOWER":"van"}
func (c TokenConstraint) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{string(c.Attr): c.Value})
}

// MatchRule is a category label plus an ordered token sequence to match.
// The constraint order mirrors the left-to-right tokens of the source name.
type MatchRule struct {
	Label       string            `json:"label"`
	Constraints []TokenConstraint `json:"pattern"`
}

// NewMatchRule builds a rule with one LOWER constraint per token. Tokens are
// expected to be lower-cased already.
func NewMatchRule(label string, tokens []string) (MatchRule, error) {
	if label == "" {
		return MatchRule{}, ErrEmptyLabel
	}
	if len(tokens) == 0 {
		return MatchRule{}, ErrNoConstraints
	}

	constraints := make([]TokenConstraint, len(tokens))
	for i, tok := range tokens {
		constraints[i] = TokenConstraint{Attr: AttrLower, Value: tok}
	}

	return MatchRule{Label: label, Constraints: constraints}, nil
}

// Phrase returns the constraint values joined by single spaces
func (r MatchRule) Phrase() string {
	values := make([]string, len(r.Constraints))
	for i, c := range r.Constraints {
		values[i] = c.Value
	}
	return strings.Join(values, " ")
}

// Len returns the number of tokens the rule spans
func (r MatchRule) Len() int {
	return len(r.Constraints)
}

// RuleSet is an ordered collection of rules from one normalization pass.
// Order follows the input records; duplicates are kept.
type RuleSet []MatchRule

// Labels returns the distinct labels in first-seen order
func (s RuleSet) Labels() []string {
	seen := make(map[string]bool)
	labels := make([]string, 0, 1)
	for _, r := range s {
		if !seen[r.Label] {
			seen[r.Label] = true
			labels = append(labels, r.Label)
		}
	}
	return labels
}
