// Package dataset loads line-delimited JSON edit-instruction records.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Record is one dataset entry: an opaque field mapping plus the
// positional index it had in the input file. The index is assigned once
// at load and identifies the record for the rest of the run.
type Record struct {
	Index  int
	Fields map[string]any
}

// Text returns the full edit instruction, or "" when absent.
func (r Record) Text() string {
	return stringField(r.Fields, "text")
}

// SummarizedText returns the short instruction summary, or "" when absent.
func (r Record) SummarizedText() string {
	return stringField(r.Fields, "summarized_text")
}

// EditType is informational only; it drives progress narration, never logic.
func (r Record) EditType() string {
	return stringField(r.Fields, "edit_type")
}

// CloneFields returns a shallow copy of the field map so workers can
// attach their analysis without touching the loaded record.
func (r Record) CloneFields() map[string]any {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	return out
}

// Load reads every non-blank line of a JSONL file into a Record.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	records := make([]Record, 0, 1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			return nil, fmt.Errorf("parse %q line %d: %w", path, lineNo, err)
		}
		records = append(records, Record{Index: len(records), Fields: fields})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset %q: %w", path, err)
	}
	return records, nil
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
