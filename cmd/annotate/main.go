package main

/*
annotate analyzes image-edit instructions from a JSONL dataset with an
OpenAI-compatible completion server and writes an ordered JSON array of
annotated records.

Usage:
  SGLANG_SERVER_URL=http://127.0.0.1:12345/v1/chat/completions \
  go run ./cmd/annotate \
    --input openimages/jsonl/sft_with_local_source_image_path.jsonl \
    --out analysis_results.json

Flags:
  --input  Input JSONL dataset (one record per line).
  --out    Output JSON array path.
  --db     Optional SQLite path mirroring results and errors.

Configuration comes from the environment (an optional .env file is
honored): LLM_MODEL, SGLANG_SERVER_URL, SGLANG_API_KEY,
LLM_MAX_NEW_TOKENS, LLM_MAX_WORKERS, LLM_REQUEST_TIMEOUT,
LLM_MAX_RETRIES, LLM_RETRY_BACKOFF, LLM_ERROR_LOG, LLM_CACHE_SIZE.
*/

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/annotate"
	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/config"
	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/dataset"
	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/ledger"
	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/llm"
)

func main() {
	log.SetFlags(0)
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	input := flag.String("input", "openimages/jsonl/sft_with_local_source_image_path.jsonl", "input JSONL dataset")
	out := flag.String("out", "analysis_results.json", "output JSON array path")
	dbPath := flag.String("db", "", "optional SQLite path mirroring results (empty = disabled)")
	flag.Parse()

	if strings.TrimSpace(*input) == "" {
		return errors.New("--input is required")
	}
	if strings.TrimSpace(*out) == "" {
		return errors.New("--out is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	records, err := dataset.Load(*input)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records found in %q", *input)
	}

	led := ledger.New()
	client, err := llm.NewClient(cfg, led, nil)
	if err != nil {
		return err
	}

	var store *annotate.Store
	if strings.TrimSpace(*dbPath) != "" {
		store, err = annotate.OpenStore(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	pipe := annotate.NewPipeline(annotate.NewProcessor(client, led), led, store, cfg.MaxWorkers, cfg.ErrorLogPath)
	summary, err := pipe.Run(ctx, records, *out)
	if err != nil {
		return err
	}

	fmt.Printf("Annotated %d records (%d failed) -> %s\n", summary.Processed, summary.Failed, *out)
	if summary.ErrorLogWritten {
		fmt.Printf("Recorded %d error entries -> %s\n", summary.LedgerEntries, cfg.ErrorLogPath)
	}
	return nil
}
