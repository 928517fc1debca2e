package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/dataset"
	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/ledger"
)

const progressEvery = 25

// Pipeline fans the processor out over a bounded worker pool, restores
// input order once every item has completed and writes the artifacts.
type Pipeline struct {
	processor    *Processor
	ledger       *ledger.Ledger
	store        *Store
	maxWorkers   int
	errorLogPath string
}

// Summary describes a completed run.
type Summary struct {
	Processed       int
	Failed          int
	LedgerEntries   int
	ErrorLogWritten bool
}

type indexedResult struct {
	index  int
	fields map[string]any
}

// NewPipeline assembles a run. store may be nil when no SQLite mirror
// is wanted.
func NewPipeline(processor *Processor, led *ledger.Ledger, store *Store, maxWorkers int, errorLogPath string) *Pipeline {
	return &Pipeline{
		processor:    processor,
		ledger:       led,
		store:        store,
		maxWorkers:   maxWorkers,
		errorLogPath: errorLogPath,
	}
}

// Run annotates every record and writes the ordered output array to
// outputPath. Items fail individually; the run itself only fails on
// artifact I/O.
func (p *Pipeline) Run(ctx context.Context, records []dataset.Record, outputPath string) (Summary, error) {
	log.Printf("annotate_start items=%d workers=%d run_id=%s", len(records), p.maxWorkers, p.ledger.RunID())

	var mu sync.Mutex
	results := make([]indexedResult, 0, len(records))
	completed := 0

	group := &errgroup.Group{}
	group.SetLimit(p.maxWorkers)
	for _, rec := range records {
		rec := rec
		group.Go(func() error {
			log.Printf("annotate_item index=%d edit_type=%q", rec.Index, rec.EditType())
			annotated := p.processor.Process(ctx, rec)

			mu.Lock()
			results = append(results, indexedResult{index: rec.Index, fields: annotated})
			completed++
			if completed%progressEvery == 0 {
				log.Printf("annotate_progress done=%d total=%d", completed, len(records))
			}
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait is a join.
	_ = group.Wait()

	// Completion order is arbitrary; input order is restored here.
	sort.Slice(results, func(i, j int) bool {
		return results[i].index < results[j].index
	})
	ordered := make([]map[string]any, 0, len(results))
	failed := 0
	for _, res := range results {
		ordered = append(ordered, res.fields)
		if isFailureAnalysis(res.fields) {
			failed++
		}
	}

	if err := writeRecordsJSON(outputPath, ordered); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Processed:     len(ordered),
		Failed:        failed,
		LedgerEntries: p.ledger.Len(),
	}
	if p.ledger.Len() > 0 {
		if err := p.ledger.WriteFile(p.errorLogPath); err != nil {
			return Summary{}, err
		}
		summary.ErrorLogWritten = true
	}

	if p.store != nil {
		if err := p.persistToStore(records, ordered); err != nil {
			return Summary{}, err
		}
	}

	log.Printf("annotate_done items=%d failed=%d ledger_entries=%d", summary.Processed, summary.Failed, summary.LedgerEntries)
	return summary, nil
}

func (p *Pipeline) persistToStore(records []dataset.Record, ordered []map[string]any) error {
	for i, fields := range ordered {
		row, err := buildAnnotationRow(p.ledger.RunID(), records[i], fields)
		if err != nil {
			return err
		}
		if err := p.store.InsertAnnotation(row); err != nil {
			return err
		}
	}
	for _, entry := range p.ledger.Entries() {
		if err := p.store.InsertErrorEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

func isFailureAnalysis(fields map[string]any) bool {
	analysis, ok := fields["analysis"].(map[string]any)
	if !ok {
		return false
	}
	_, failed := analysis["error"]
	return failed
}

func writeRecordsJSON(path string, ordered []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output %q: %w", path, err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(ordered); err != nil {
		return fmt.Errorf("write output %q: %w", path, err)
	}
	return nil
}
