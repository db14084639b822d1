// Package normalize canonicalizes triplets into a comparable form and renders
// them to the text that gets embedded.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"docrag/internal/domain"
)

// Placeholder tokens substituted for volatile numeric substrings.
const (
	AmountToken    = "<AMOUNT>"
	DateToken      = "<DATE>"
	AccountNoToken = "<ACCOUNT_NO>"
)

// Substitution order matters: amounts and dates must be replaced before the
// generic long-digit rule can eat their digits.
var (
	amountRe    = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d{2})?`)
	dateRe      = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	accountNoRe = regexp.MustCompile(`\b\d{6,}\b`)

	placeholderCase = strings.NewReplacer(
		strings.ToLower(AmountToken), AmountToken,
		strings.ToLower(DateToken), DateToken,
		strings.ToLower(AccountNoToken), AccountNoToken,
	)
)

// PredicateTable is an immutable canonical predicate mapping.
type PredicateTable struct {
	m map[string]string
}

// NewPredicateTable builds a table from raw aliases. Keys and values are
// canonicalized, chains collapse to their final target, cycles are rejected.
func NewPredicateTable(aliases map[string]string) (*PredicateTable, error) {
	raw := make(map[string]string, len(aliases))
	for k, v := range aliases {
		ck, cv := canonicalPredicate(k), canonicalPredicate(v)
		if ck == "" || cv == "" {
			return nil, fmt.Errorf("predicate alias %q -> %q: %w", k, v, domain.ErrInvalidInput)
		}
		if ck != cv {
			raw[ck] = cv
		}
	}
	resolved := make(map[string]string, len(raw))
	for k := range raw {
		target := k
		seen := map[string]struct{}{k: {}}
		for {
			next, ok := raw[target]
			if !ok {
				break
			}
			if _, loop := seen[next]; loop {
				return nil, fmt.Errorf("predicate alias cycle at %q: %w", k, domain.ErrInvalidInput)
			}
			seen[next] = struct{}{}
			target = next
		}
		resolved[k] = target
	}
	return &PredicateTable{m: resolved}, nil
}

// DefaultPredicates returns a fresh copy of the built-in predicate table.
func DefaultPredicates() *PredicateTable {
	t, err := NewPredicateTable(map[string]string{
		"has_value":  "has_amount",
		"value":      "has_amount",
		"amount":     "has_amount",
		"name":       "issued_by",
		"issued":     "issued_by",
		"issuer":     "issued_by",
		"on":         "has_date",
		"date":       "has_date",
		"identifier": "has_identifier",
		"id":         "has_identifier",
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Merge returns a new table with overrides layered over t.
func (t *PredicateTable) Merge(overrides map[string]string) (*PredicateTable, error) {
	combined := make(map[string]string, len(t.m)+len(overrides))
	for k, v := range t.m {
		combined[k] = v
	}
	for k, v := range overrides {
		combined[canonicalPredicate(k)] = v
	}
	return NewPredicateTable(combined)
}

// Lookup maps a canonicalized predicate; unmapped predicates pass through.
func (t *PredicateTable) Lookup(predicate string) string {
	if t == nil {
		return predicate
	}
	if v, ok := t.m[predicate]; ok {
		return v
	}
	return predicate
}

// Len returns the number of aliases in the table.
func (t *PredicateTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.m)
}

// Normalizer canonicalizes triplets using its own predicate table.
type Normalizer struct {
	predicates *PredicateTable
}

// New creates a Normalizer. A nil table disables predicate mapping.
func New(predicates *PredicateTable) *Normalizer {
	return &Normalizer{predicates: predicates}
}

// Normalize lowercases the triplet, maps the predicate through the table and
// replaces amounts, dates and long digit runs with placeholder tokens.
// It is total and idempotent.
func (n *Normalizer) Normalize(t domain.Triplet) domain.Triplet {
	return domain.Triplet{
		Subject:   maskValues(t.Subject),
		Predicate: n.predicates.Lookup(canonicalPredicate(t.Predicate)),
		Object:    maskValues(t.Object),
	}
}

// ToText renders a triplet as "subject predicate object", skipping empty parts.
func ToText(t domain.Triplet) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Subject, t.Predicate, t.Object} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Text normalizes t and renders it.
func (n *Normalizer) Text(t domain.Triplet) string {
	return ToText(n.Normalize(t))
}

func canonicalPredicate(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), "_")
}

func maskValues(s string) string {
	s = placeholderCase.Replace(strings.ToLower(strings.TrimSpace(s)))
	s = amountRe.ReplaceAllString(s, AmountToken)
	s = dateRe.ReplaceAllString(s, DateToken)
	return accountNoRe.ReplaceAllString(s, AccountNoToken)
}
