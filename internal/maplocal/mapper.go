// Package maplocal maps Open Images URLs in a JSONL stream to locally
// cached image files. A batch lookup job: no retries, no concurrency.
package maplocal

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Options selects the inputs for one mapping run.
type Options struct {
	MetadataCSV string
	JSONLIn     string
	JSONLOut    string
	ImageRoot   string
	// MultiTurn switches the input shape from a top-level
	// open_image_input_url field to a files[] entry whose id is
	// original_input_image.
	MultiTurn bool
}

// Counters summarizes one mapping run. Every input line lands in
// exactly one bucket.
type Counters struct {
	Matched     int
	URLNotFound int
	FileMissing int
}

// Run rewrites the JSONL stream adding a local_input_image field to
// every record: the resolved path, or null when the URL is unknown or
// the file is absent. Line order is preserved.
func Run(opts Options) (Counters, error) {
	urlToID, err := loadURLToID(opts.MetadataCSV)
	if err != nil {
		return Counters{}, err
	}
	idToPath, err := indexLocalImages(opts.ImageRoot)
	if err != nil {
		return Counters{}, err
	}

	in, err := os.Open(opts.JSONLIn)
	if err != nil {
		return Counters{}, fmt.Errorf("open %q: %w", opts.JSONLIn, err)
	}
	defer in.Close()

	out, err := os.Create(opts.JSONLOut)
	if err != nil {
		return Counters{}, fmt.Errorf("create %q: %w", opts.JSONLOut, err)
	}
	defer out.Close()

	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var counters Counters
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return counters, fmt.Errorf("parse %q line %d: %w", opts.JSONLIn, lineNo, err)
		}

		url := extractSourceURL(record, opts.MultiTurn)
		record["local_input_image"] = nil
		switch {
		case url == "":
			counters.URLNotFound++
		default:
			imageID, ok := urlToID[url]
			if !ok {
				counters.URLNotFound++
				break
			}
			localPath, ok := idToPath[imageID]
			if !ok || !fileExists(localPath) {
				counters.FileMissing++
				break
			}
			record["local_input_image"] = localPath
			counters.Matched++
		}

		if err := encoder.Encode(record); err != nil {
			return counters, fmt.Errorf("write %q: %w", opts.JSONLOut, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return counters, fmt.Errorf("read %q: %w", opts.JSONLIn, err)
	}
	return counters, nil
}

func extractSourceURL(record map[string]any, multiTurn bool) string {
	if !multiTurn {
		url, _ := record["open_image_input_url"].(string)
		return url
	}
	files, _ := record["files"].([]any)
	for _, raw := range files {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if entry["id"] == "original_input_image" {
			url, _ := entry["url"].(string)
			return url
		}
	}
	return ""
}

// loadURLToID reads the Open Images metadata CSV and builds the
// OriginalURL -> ImageID index.
func loadURLToID(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata csv %q: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read %q header: %w", path, err)
	}
	urlCol, idCol := -1, -1
	for i, col := range header {
		switch normalizeHeader(col) {
		case "originalurl":
			urlCol = i
		case "imageid":
			idCol = i
		}
	}
	if urlCol == -1 || idCol == -1 {
		return nil, fmt.Errorf("metadata csv %q missing OriginalURL/ImageID columns", path)
	}

	urlToID := make(map[string]string, 1024)
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read %q row: %w", path, err)
		}
		url := strings.TrimSpace(valueAt(record, urlCol))
		imageID := strings.TrimSpace(valueAt(record, idCol))
		if url == "" || imageID == "" {
			continue
		}
		urlToID[url] = imageID
	}
	return urlToID, nil
}

// indexLocalImages maps image ids (jpg basenames) to their paths under
// the image root.
func indexLocalImages(root string) (map[string]string, error) {
	idToPath := make(map[string]string, 1024)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".jpg") {
			return nil
		}
		base := filepath.Base(path)
		imageID := strings.TrimSuffix(base, filepath.Ext(base))
		idToPath[imageID] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", root, err)
	}
	return idToPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func valueAt(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return record[index]
}

func normalizeHeader(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	return s
}
