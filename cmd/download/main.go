package main

/*
download fetches the edited images listed in a manifest into a local
directory tree, skipping files that already exist.

Usage:
  go run ./cmd/download \
    --manifest openimages/manifests/sft_edited_urls.txt \
    --output openimages/edited/sft

Flags:
  --manifest  Text file with one image URL per line.
  --output    Root directory for the downloaded tree.
  --limit     Optional max number of URLs (0 means all).
  --workers   Concurrent download workers.
  --timeout   Per-request timeout in seconds.

Failed URLs are written to _failed.txt under the output root and the
process exits non-zero when any download failed.
*/

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/download"
)

func main() {
	log.SetFlags(0)
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	manifest := flag.String("manifest", "", "text file with one image URL per line")
	output := flag.String("output", "openimages/edited/sft", "root directory for the downloaded tree")
	limit := flag.Int("limit", 0, "optional max number of URLs (0 = all)")
	workers := flag.Int("workers", 32, "concurrent download workers")
	timeout := flag.Int("timeout", 60, "per-request timeout in seconds")
	flag.Parse()

	if strings.TrimSpace(*manifest) == "" {
		return errors.New("--manifest is required")
	}
	if *limit < 0 {
		return errors.New("--limit must be >= 0")
	}
	if *workers < 1 {
		return errors.New("--workers must be >= 1")
	}

	result, err := download.Run(ctx, download.Options{
		ManifestPath: *manifest,
		OutputDir:    *output,
		Limit:        *limit,
		Workers:      *workers,
		Timeout:      time.Duration(*timeout) * time.Second,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Downloaded %d, skipped %d existing, failed %d\n", result.Completed, result.Skipped, len(result.Failures))
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d downloads failed, see %s", len(result.Failures), "_failed.txt")
	}
	return nil
}
