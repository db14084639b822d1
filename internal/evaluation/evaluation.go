// Package evaluation scores predicted decisions against ground truth.
package evaluation

import (
	"fmt"
	"sort"

	"docrag/internal/domain"
)

// Framework markers.
const (
	Framework              = "docrag"
	FrameworkNoGroundTruth = "no_ground_truth"
)

// LabelMetrics are the per-doc_type scores.
type LabelMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Averages are micro or macro averaged scores.
type Averages struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Report summarizes an evaluation run.
type Report struct {
	Framework    string                  `json:"framework"`
	N            int                     `json:"n"`
	Accuracy     float64                 `json:"accuracy"`
	CodeAccuracy float64                 `json:"code_accuracy"`
	Coverage     float64                 `json:"coverage"`
	PerLabel     map[string]LabelMetrics `json:"per_label,omitempty"`
	Micro        *Averages               `json:"micro,omitempty"`
	Macro        *Averages               `json:"macro,omitempty"`
}

// HasGroundTruth reports whether the report was computed against labels.
func (r Report) HasGroundTruth() bool { return r.Framework != FrameworkNoGroundTruth }

// Labels returns the evaluated doc_types in sorted order.
func (r Report) Labels() []string {
	out := make([]string, 0, len(r.PerLabel))
	for l := range r.PerLabel {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Evaluate compares preds with truths. A nil truths slice yields a
// no_ground_truth report carrying only coverage, the share of predictions
// with a doc_type.
func Evaluate(preds, truths []domain.Decision) (Report, error) {
	if truths == nil {
		return Report{Framework: FrameworkNoGroundTruth, N: len(preds), Coverage: coverage(preds)}, nil
	}
	if len(preds) != len(truths) {
		return Report{}, fmt.Errorf("%d predictions, %d truths: %w", len(preds), len(truths), domain.ErrLengthMismatch)
	}
	r := Report{Framework: Framework, N: len(preds), Coverage: coverage(preds), PerLabel: map[string]LabelMetrics{}}
	if r.N == 0 {
		r.Micro, r.Macro = &Averages{}, &Averages{}
		return r, nil
	}

	type counts struct{ tp, fp, fn, support int }
	per := map[string]*counts{}
	get := func(label string) *counts {
		c, ok := per[label]
		if !ok {
			c = &counts{}
			per[label] = c
		}
		return c
	}

	correct, codeCorrect := 0, 0
	for i, p := range preds {
		t := truths[i]
		if t.DocType != "" {
			get(t.DocType).support++
		}
		if p.DocType != "" && p.DocType == t.DocType {
			correct++
			get(p.DocType).tp++
			if p.DocCode == t.DocCode {
				codeCorrect++
			}
			continue
		}
		if p.DocType != "" {
			get(p.DocType).fp++
		}
		if t.DocType != "" {
			get(t.DocType).fn++
		}
	}
	r.Accuracy = float64(correct) / float64(r.N)
	r.CodeAccuracy = float64(codeCorrect) / float64(r.N)

	var tp, fp, fn int
	macro := Averages{}
	for label, c := range per {
		p, rec, f := prf(c.tp, c.fp, c.fn)
		r.PerLabel[label] = LabelMetrics{Precision: p, Recall: rec, F1: f, Support: c.support}
		macro.Precision += p
		macro.Recall += rec
		macro.F1 += f
		tp, fp, fn = tp+c.tp, fp+c.fp, fn+c.fn
	}
	if n := float64(len(per)); n > 0 {
		macro.Precision /= n
		macro.Recall /= n
		macro.F1 /= n
	}
	p, rec, f := prf(tp, fp, fn)
	r.Micro = &Averages{Precision: p, Recall: rec, F1: f}
	r.Macro = &macro
	return r, nil
}

func prf(tp, fp, fn int) (precision, recall, f1 float64) {
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

func coverage(preds []domain.Decision) float64 {
	if len(preds) == 0 {
		return 0
	}
	n := 0
	for _, p := range preds {
		if !p.Empty() {
			n++
		}
	}
	return float64(n) / float64(len(preds))
}
