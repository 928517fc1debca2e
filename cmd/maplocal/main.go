package main

/*
maplocal rewrites a JSONL dataset adding a local_input_image field that
points at the locally cached Open Images source file for each record.

Usage:
  go run ./cmd/maplocal \
    --metadata_csv openimages/metadata/train-images-boxable.csv \
    --jsonl_in openimages/jsonl/sft.jsonl \
    --jsonl_out openimages/jsonl/sft_with_local_source_image_path.jsonl \
    --image_root openimages/original

Flags:
  --metadata_csv  Open Images metadata CSV (OriginalURL, ImageID columns).
  --jsonl_in      Input JSONL path.
  --jsonl_out     Output JSONL path.
  --image_root    Directory tree holding the downloaded .jpg files.
  --multi_turn    Read the source URL from the files[] entry whose id is
                  original_input_image instead of open_image_input_url.
*/

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/maplocal"
)

func main() {
	log.SetFlags(0)
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	metadataCSV := flag.String("metadata_csv", "", "Open Images metadata CSV path")
	jsonlIn := flag.String("jsonl_in", "", "input JSONL path")
	jsonlOut := flag.String("jsonl_out", "", "output JSONL path")
	imageRoot := flag.String("image_root", "", "directory tree holding downloaded .jpg files")
	multiTurn := flag.Bool("multi_turn", false, "read the source URL from the files[] entries")
	flag.Parse()

	for name, value := range map[string]string{
		"--metadata_csv": *metadataCSV,
		"--jsonl_in":     *jsonlIn,
		"--jsonl_out":    *jsonlOut,
		"--image_root":   *imageRoot,
	} {
		if strings.TrimSpace(value) == "" {
			return errors.New(name + " is required")
		}
	}

	counters, err := maplocal.Run(maplocal.Options{
		MetadataCSV: *metadataCSV,
		JSONLIn:     *jsonlIn,
		JSONLOut:    *jsonlOut,
		ImageRoot:   *imageRoot,
		MultiTurn:   *multiTurn,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Matched %d records -> %s\n", counters.Matched, *jsonlOut)
	fmt.Printf("URL not found: %d, file missing: %d\n", counters.URLNotFound, counters.FileMissing)
	return nil
}
