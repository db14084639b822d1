// Package dataset loads labelled document summaries.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docrag/internal/domain"
	"docrag/internal/logger"
)

// Record is one labelled summary. Triplets, when present, are used instead of
// running the extractor on Summary.
type Record struct {
	Summary  string           `json:"summary"`
	DocType  string           `json:"doc_type"`
	DocCode  string           `json:"doc_code"`
	Triplets []domain.Triplet `json:"triplets,omitempty"`
}

// Decision returns the record's labels.
func (r Record) Decision() domain.Decision {
	return domain.Decision{DocType: r.DocType, DocCode: r.DocCode}
}

// Metadata returns the metadata stored with every triplet of the record.
func (r Record) Metadata() domain.Metadata {
	m := domain.Metadata{
		domain.KeyDocType: r.DocType,
		domain.KeyDocCode: r.DocCode,
	}
	if r.Summary != "" {
		m["summary"] = r.Summary
	}
	return m
}

// Load reads records from path. Files ending in .jsonl hold one record per
// line; anything else is a JSON array, optionally wrapped in a markdown code
// fence.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var records []Record
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		records, err = ParseJSONL(data)
	} else {
		records, err = ParseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return records, nil
}

// ParseJSON decodes a JSON array of records.
func ParseJSON(data []byte) ([]Record, error) {
	data = stripFences(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	return filter(records), nil
}

// ParseJSONL decodes one record per non-empty line.
func ParseJSONL(data []byte) ([]Record, error) {
	var records []Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(text, &r); err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", line, err, domain.ErrInvalidInput)
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return filter(records), nil
}

// stripFences removes leading and trailing ``` lines.
func stripFences(data []byte) []byte {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("```")) {
		return data
	}
	lines := strings.Split(string(data), "\n")
	start, end := 0, len(lines)-1
	for start < len(lines) && (strings.HasPrefix(strings.TrimSpace(lines[start]), "```") || strings.TrimSpace(lines[start]) == "") {
		start++
	}
	for end >= start && (strings.HasPrefix(strings.TrimSpace(lines[end]), "```") || strings.TrimSpace(lines[end]) == "") {
		end--
	}
	if start > end {
		return nil
	}
	return []byte(strings.Join(lines[start:end+1], "\n"))
}

func filter(records []Record) []Record {
	out := records[:0]
	for i, r := range records {
		if strings.TrimSpace(r.Summary) == "" && len(r.Triplets) == 0 {
			logger.Warn("Dataset record %d has neither summary nor triplets; skipped", i)
			continue
		}
		if r.DocType == "" {
			logger.Debug("Dataset record %d has no doc_type; its triplets will not vote", i)
		}
		out = append(out, r)
	}
	return out
}
