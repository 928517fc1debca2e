package annotate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/dataset"
	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/ledger"
)

const createAnnotationsTableSQL = `
CREATE TABLE IF NOT EXISTS annotations (
	run_id TEXT NOT NULL,
	item_index INTEGER NOT NULL,
	edit_type TEXT NOT NULL,
	instruction TEXT NOT NULL,
	summary TEXT NOT NULL,
	analysis_json TEXT NOT NULL,
	analysis_ok INTEGER NOT NULL,
	annotated_at_utc TEXT NOT NULL,
	PRIMARY KEY (run_id, item_index)
)`

const createRunErrorsTableSQL = `
CREATE TABLE IF NOT EXISTS run_errors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	created_at_utc TEXT NOT NULL,
	item_index INTEGER,
	message TEXT NOT NULL,
	details_json TEXT NOT NULL
)`

var createStoreIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_annotations_analysis_ok ON annotations(run_id, analysis_ok)`,
	`CREATE INDEX IF NOT EXISTS idx_run_errors_lookup ON run_errors(run_id, item_index)`,
}

const insertAnnotationSQL = `
INSERT INTO annotations (
	run_id,
	item_index,
	edit_type,
	instruction,
	summary,
	analysis_json,
	analysis_ok,
	annotated_at_utc
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const insertRunErrorSQL = `
INSERT INTO run_errors (
	run_id,
	created_at_utc,
	item_index,
	message,
	details_json
) VALUES (?, ?, ?, ?, ?)`

// AnnotationRow is one mirrored result for post-run review queries.
type AnnotationRow struct {
	RunID          string
	ItemIndex      int
	EditType       string
	Instruction    string
	Summary        string
	AnalysisJSON   string
	AnalysisOK     bool
	AnnotatedAtUTC string
}

// Store mirrors annotations and ledger entries into SQLite. It is
// written to only after the workers have joined.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the review database.
func OpenStore(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureStoreSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InsertAnnotation(row AnnotationRow) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store is not initialized")
	}
	if strings.TrimSpace(row.AnnotatedAtUTC) == "" {
		row.AnnotatedAtUTC = time.Now().UTC().Format(time.RFC3339)
	}
	if _, err := s.db.Exec(
		insertAnnotationSQL,
		row.RunID,
		row.ItemIndex,
		row.EditType,
		row.Instruction,
		row.Summary,
		row.AnalysisJSON,
		boolToInt(row.AnalysisOK),
		row.AnnotatedAtUTC,
	); err != nil {
		return fmt.Errorf("insert annotation item_index=%d: %w", row.ItemIndex, err)
	}
	return nil
}

func (s *Store) InsertErrorEntry(entry ledger.Entry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store is not initialized")
	}
	detailsJSON := "{}"
	if len(entry.Details) > 0 {
		if payload, err := json.Marshal(entry.Details); err == nil {
			detailsJSON = string(payload)
		}
	}
	var itemIndex any
	if entry.ItemIndex != nil {
		itemIndex = *entry.ItemIndex
	}
	if _, err := s.db.Exec(
		insertRunErrorSQL,
		entry.RunID,
		entry.Timestamp,
		itemIndex,
		entry.Message,
		detailsJSON,
	); err != nil {
		return fmt.Errorf("insert run error: %w", err)
	}
	return nil
}

// CountAnnotations reports mirrored rows for one run.
func (s *Store) CountAnnotations(runID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlite store is not initialized")
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM annotations WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count annotations: %w", err)
	}
	return n, nil
}

func ensureStoreSchema(db *sql.DB) error {
	if _, err := db.Exec(createAnnotationsTableSQL); err != nil {
		return fmt.Errorf("create annotations table: %w", err)
	}
	if _, err := db.Exec(createRunErrorsTableSQL); err != nil {
		return fmt.Errorf("create run_errors table: %w", err)
	}
	for _, stmt := range createStoreIndexesSQL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create store index: %w", err)
		}
	}
	return nil
}

func buildAnnotationRow(runID string, rec dataset.Record, fields map[string]any) (AnnotationRow, error) {
	analysisJSON := "{}"
	analysisOK := false
	if analysis, ok := fields["analysis"].(map[string]any); ok {
		payload, err := json.Marshal(analysis)
		if err != nil {
			return AnnotationRow{}, fmt.Errorf("marshal analysis item_index=%d: %w", rec.Index, err)
		}
		analysisJSON = string(payload)
		_, failed := analysis["error"]
		analysisOK = !failed
	}
	return AnnotationRow{
		RunID:        runID,
		ItemIndex:    rec.Index,
		EditType:     rec.EditType(),
		Instruction:  rec.Text(),
		Summary:      rec.SummarizedText(),
		AnalysisJSON: analysisJSON,
		AnalysisOK:   analysisOK,
	}, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
