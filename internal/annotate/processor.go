package annotate

import (
	"context"
	"fmt"

	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/dataset"
	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/ledger"
	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/llm"
)

// FailureReason is the fixed analysis error attached to records the
// model could not be made to classify.
const FailureReason = "Failed to get a valid analysis from the model."

// Completer abstracts the LLM client to keep the processor testable.
type Completer interface {
	Complete(ctx context.Context, prompt string, itemIndex int) (string, bool)
}

// Processor annotates one record at a time. Process is a total
// function: whatever goes wrong inside, the caller always gets an
// annotated copy back and the batch keeps moving.
type Processor struct {
	client Completer
	ledger *ledger.Ledger
}

// NewProcessor wires a processor to its completion client and ledger.
func NewProcessor(client Completer, led *ledger.Ledger) *Processor {
	return &Processor{client: client, ledger: led}
}

// Process builds the prompt, asks the model and extracts the verdict.
// The returned map is a fresh copy of the record fields with exactly one
// analysis attached: the decoded verdict on success, the fixed failure
// marker otherwise.
func (p *Processor) Process(ctx context.Context, rec dataset.Record) map[string]any {
	annotated := rec.CloneFields()
	if analysis, ok := p.analyze(ctx, rec); ok {
		annotated["analysis"] = analysis
	} else {
		annotated["analysis"] = map[string]any{"error": FailureReason}
	}
	return annotated
}

func (p *Processor) analyze(ctx context.Context, rec dataset.Record) (analysis map[string]any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.ledger.Record(rec.Index, "Unexpected failure", map[string]any{"exception": fmt.Sprint(r)})
			analysis, ok = nil, false
		}
	}()

	prompt := BuildPrompt(rec.Text(), rec.SummarizedText())
	content, got := p.client.Complete(ctx, prompt, rec.Index)
	if !got {
		return nil, false
	}
	return llm.ExtractAnalysis(p.ledger, rec.Index, content)
}
