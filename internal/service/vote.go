package service

import "docrag/internal/domain"

// CodeMode selects how scores for the same doc_code combine inside a doc_type.
type CodeMode int

const (
	// CodeMax keeps the best single score per doc_code.
	CodeMax CodeMode = iota
	// CodeSum accumulates scores per doc_code.
	CodeSum
)

// Tally accumulates doc_type → doc_code votes in arrival order.
// The doc_type with the largest total mass wins; within it the doc_code with
// the highest score wins. Ties go to whichever was seen first.
type Tally struct {
	mode   CodeMode
	types  []*typeVotes
	byType map[string]*typeVotes
}

type typeVotes struct {
	docType string
	total   float64
	codes   []string
	scores  map[string]float64
}

// NewTally creates an empty tally.
func NewTally(mode CodeMode) *Tally {
	return &Tally{mode: mode, byType: make(map[string]*typeVotes)}
}

// Add records score for (docType, docCode). Empty doc types are ignored.
func (t *Tally) Add(docType, docCode string, score float64) {
	if docType == "" {
		return
	}
	tv, ok := t.byType[docType]
	if !ok {
		tv = &typeVotes{docType: docType, scores: make(map[string]float64)}
		t.byType[docType] = tv
		t.types = append(t.types, tv)
	}
	tv.total += score
	prev, seen := tv.scores[docCode]
	if !seen {
		tv.codes = append(tv.codes, docCode)
		tv.scores[docCode] = score
		return
	}
	switch t.mode {
	case CodeSum:
		tv.scores[docCode] = prev + score
	default:
		if score > prev {
			tv.scores[docCode] = score
		}
	}
}

// Mass returns the total score recorded for docType.
func (t *Tally) Mass(docType string) float64 {
	if tv, ok := t.byType[docType]; ok {
		return tv.total
	}
	return 0
}

// Len returns the number of distinct doc types.
func (t *Tally) Len() int { return len(t.types) }

// Decision returns the winning doc_type and doc_code, or an empty decision.
func (t *Tally) Decision() domain.Decision {
	var best *typeVotes
	for _, tv := range t.types {
		if best == nil || tv.total > best.total {
			best = tv
		}
	}
	if best == nil {
		return domain.Decision{}
	}
	code := best.codes[0]
	for _, c := range best.codes[1:] {
		if best.scores[c] > best.scores[code] {
			code = c
		}
	}
	return domain.Decision{DocType: best.docType, DocCode: code}
}
