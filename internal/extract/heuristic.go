// Package extract turns document summaries into raw triplets.
package extract

import (
	"context"
	"regexp"
	"strings"

	"docrag/internal/domain"
)

// Subjects used for entity triplets. The normalizer lowercases them.
const (
	SubjectAmount = "AMOUNT"
	SubjectDate   = "DATE"
	SubjectID     = "ID"
	SubjectOrg    = "ORG"
)

var (
	amountRe   = regexp.MustCompile(`\$\s?\d+[\d,]*(?:\.\d{2})?`)
	dateRe     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	idRe       = regexp.MustCompile(`\b(?i:INV|PO|BS|ACC)[-_]?\d[\dA-Z]*(?:-[\dA-Z]+)*`)
	orgRe      = regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+`)
	svoRe      = regexp.MustCompile(`^([A-Za-z ]+?) (was|shows|issued|submitted|made) (.+)$`)
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

var _ domain.Extractor = (*Heuristic)(nil)

// Heuristic is a regex-based extractor. It looks for one amount, date,
// document identifier and organization name per summary, plus one
// subject-verb-object triplet per sentence. It may return no triplets.
type Heuristic struct{}

// NewHeuristic creates the heuristic extractor.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// Extract returns the triplets found in text.
func (h *Heuristic) Extract(ctx context.Context, text string) ([]domain.Triplet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Triplet
	seen := make(map[domain.Triplet]struct{})
	add := func(t domain.Triplet) {
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	if m := amountRe.FindString(text); m != "" {
		add(domain.Triplet{Subject: SubjectAmount, Predicate: "has_value", Object: m})
	}
	if m := dateRe.FindString(text); m != "" {
		add(domain.Triplet{Subject: SubjectDate, Predicate: "on", Object: m})
	}
	if m := idRe.FindString(text); m != "" {
		add(domain.Triplet{Subject: SubjectID, Predicate: "identifier", Object: m})
	}
	if m := orgRe.FindString(text); m != "" {
		add(domain.Triplet{Subject: SubjectOrg, Predicate: "name", Object: m})
	}
	for _, s := range sentences(text) {
		s = strings.TrimRight(s, ".!? ")
		if m := svoRe.FindStringSubmatch(s); m != nil {
			subject := strings.TrimSpace(m[1])
			object := strings.TrimSpace(m[3])
			if subject != "" && object != "" {
				add(domain.Triplet{Subject: subject, Predicate: m[2], Object: object})
			}
		}
	}
	return out, nil
}

// sentences splits text into trimmed sentences. Trailing text without
// terminal punctuation counts as a sentence.
func sentences(text string) []string {
	var out []string
	consumed := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		consumed = loc[1]
	}
	if rest := strings.TrimSpace(text[consumed:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
