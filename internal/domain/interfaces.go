package domain

import (
	"context"
	"fmt"
)

// Triplet is a (subject, predicate, object) fact extracted from text.
type Triplet struct {
	Subject   string `json:"subject" yaml:"subject"`
	Predicate string `json:"predicate" yaml:"predicate"`
	Object    string `json:"object" yaml:"object"`
}

// Metadata keys the voting engine relies on.
const (
	KeyDocType = "doc_type"
	KeyDocCode = "doc_code"
)

// Metadata is the open mapping attached to every indexed record.
// Only doc_type and doc_code are interpreted; everything else passes through.
type Metadata map[string]any

// String returns the value stored under key as a string, or "" when missing.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// DocType returns the doc_type label.
func (m Metadata) DocType() string { return m.String(KeyDocType) }

// DocCode returns the doc_code identifier.
func (m Metadata) DocCode() string { return m.String(KeyDocCode) }

// Clone returns a shallow copy of the metadata.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Hit is a stored record matched by a query, with its similarity score.
type Hit struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

// Decision is a document-level prediction. Empty fields mean "no prediction".
type Decision struct {
	DocType string `json:"doc_type"`
	DocCode string `json:"doc_code"`
}

// Empty reports whether no doc_type was predicted.
func (d Decision) Empty() bool { return d.DocType == "" }

// Map renders the decision as a plain mapping, with nil standing for None.
func (d Decision) Map() map[string]any {
	out := map[string]any{KeyDocType: nil, KeyDocCode: nil}
	if d.DocType != "" {
		out[KeyDocType] = d.DocType
	}
	if d.DocCode != "" {
		out[KeyDocCode] = d.DocCode
	}
	return out
}

// TripletResult is the retrieval outcome for a single triplet.
type TripletResult struct {
	Triplet  Triplet  `json:"triplet"`
	Text     string   `json:"text"`
	Decision Decision `json:"decision"`
	Hits     []Hit    `json:"hits"`
}

// Extractor turns free text into zero or more triplets.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Triplet, error)
}
