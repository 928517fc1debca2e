package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAssignsPositionalIndexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sft.jsonl")
	content := `{"text":"add a red balloon","summarized_text":"add balloon","edit_type":"object_add"}

{"text":"remove the bench","summarized_text":"remove bench"}
{"summarized_text":"brighten the sky"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	records, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records got %d want 3 (blank line must be skipped)", len(records))
	}
	for i, rec := range records {
		if rec.Index != i {
			t.Fatalf("record %d has index %d", i, rec.Index)
		}
	}
	if got := records[0].Text(); got != "add a red balloon" {
		t.Fatalf("text got %q", got)
	}
	if got := records[0].EditType(); got != "object_add" {
		t.Fatalf("edit_type got %q", got)
	}
	if got := records[2].Text(); got != "" {
		t.Fatalf("missing text should be empty, got %q", got)
	}
	if got := records[2].SummarizedText(); got != "brighten the sky" {
		t.Fatalf("summarized_text got %q", got)
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"text\":\"ok\"}\nnot json\n"), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestCloneFieldsDoesNotAliasOriginal(t *testing.T) {
	rec := Record{Index: 0, Fields: map[string]any{"text": "add a dog"}}
	clone := rec.CloneFields()
	clone["analysis"] = map[string]any{"action": "add"}
	if _, ok := rec.Fields["analysis"]; ok {
		t.Fatalf("clone mutated the source record")
	}
}
